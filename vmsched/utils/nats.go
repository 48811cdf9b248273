package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ResponseError is the payload a responder sends instead of a result when it
// refuses a request.
type ResponseError struct {
	Code    *string `json:"Code"`
	Message *string `json:"Message,omitempty"`
}

// ConnectNATS connects with infinite reconnects, logging disconnects and
// reconnects.
func ConnectNATS(host, token string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("NATS connect failed: %w", err)
	}
	return nc, nil
}

// NATSRequest performs a NATS request-response with JSON marshaling.
// It marshals the input, sends to the given subject, validates the response
// for error payloads, and unmarshals the successful response into Out.
func NATSRequest[Out any](conn *nats.Conn, subject string, input any, timeout time.Duration) (*Out, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	msg, err := conn.Request(subject, jsonData, timeout)
	if err != nil {
		return nil, fmt.Errorf("NATS request failed: %w", err)
	}

	responseError, err := ValidateErrorPayload(msg.Data)
	if err != nil {
		return nil, errors.New(*responseError.Code)
	}

	var output Out
	if err := json.Unmarshal(msg.Data, &output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &output, nil
}

// RespondJSON marshals v and replies to msg. Messages without a reply subject
// are ignored.
func RespondJSON(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}

	response, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal response", "err", err)
		return
	}

	if err := msg.Respond(response); err != nil {
		slog.Error("Failed to respond to NATS request", "err", err)
	}
}

func GenerateErrorPayload(code string) []byte {
	payload, err := json.Marshal(ResponseError{Code: &code})
	if err != nil {
		slog.Error("Failed to marshal error payload", "err", err)
		return nil
	}
	return payload
}

// ValidateErrorPayload reports whether payload is a ResponseError carrying a
// code.
func ValidateErrorPayload(payload []byte) (responseError ResponseError, err error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()

	err = decoder.Decode(&responseError)
	if err == nil && responseError.Code != nil {
		return responseError, errors.New("ResponseError detected")
	}

	return responseError, nil
}
