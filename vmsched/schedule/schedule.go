// Package schedule decodes and validates the messages a scheduler publishes
// to trigger instance start and stop runs.
package schedule

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const (
	FieldZone  = "zone"
	FieldLabel = "label"
)

// Event is the envelope delivered by the trigger. Data carries base64-encoded
// UTF-8 JSON text.
type Event struct {
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Message is a validated schedule request.
type Message struct {
	Zone  string `json:"zone"`
	Label string `json:"label"`
}

// Encode builds the Event a scheduler would publish for this message.
func (m Message) Encode() (Event, error) {
	jsonData, err := json.Marshal(m)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal schedule message: %w", err)
	}
	return Event{Data: base64.StdEncoding.EncodeToString(jsonData)}, nil
}

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Decode turns the raw event data into a generic key/value payload.
func Decode(data string) (map[string]any, error) {
	data = strings.TrimSpace(data)

	var raw []byte
	var decodeErr error
	for _, enc := range encodings {
		raw, decodeErr = enc.DecodeString(data)
		if decodeErr == nil {
			break
		}
	}
	if decodeErr != nil {
		return nil, &DecodeError{Err: decodeErr}
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, &DecodeError{Err: err}
	}

	// Valid JSON that is not an object carries no fields; Validate reports it.
	payload, ok := value.(map[string]any)
	if !ok {
		payload = map[string]any{}
	}
	return payload, nil
}

// Validate returns payload unchanged when both zone and label are present and
// truthy. Zone is always checked first.
func Validate(payload map[string]any) (map[string]any, error) {
	if !truthy(payload[FieldZone]) {
		return nil, &MissingFieldError{Field: FieldZone}
	}
	if !truthy(payload[FieldLabel]) {
		return nil, &MissingFieldError{Field: FieldLabel}
	}
	return payload, nil
}

// MessageFrom converts a validated payload into a Message.
func MessageFrom(payload map[string]any) Message {
	return Message{
		Zone:  stringValue(payload[FieldZone]),
		Label: stringValue(payload[FieldLabel]),
	}
}

// Parse decodes and validates an event. No directory work may start unless
// Parse succeeds.
func Parse(ev Event) (Message, error) {
	payload, err := Decode(ev.Data)
	if err != nil {
		return Message{}, err
	}
	payload, err = Validate(payload)
	if err != nil {
		return Message{}, err
	}
	return MessageFrom(payload), nil
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
