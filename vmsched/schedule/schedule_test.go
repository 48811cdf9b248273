package schedule

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDecode_ValidPayload(t *testing.T) {
	payload, err := Decode(encode(`{"zone":"us-central1-a","label":"env-prod"}`))
	require.NoError(t, err)
	assert.Equal(t, "us-central1-a", payload["zone"])
	assert.Equal(t, "env-prod", payload["label"])
}

func TestDecode_UnpaddedAndURLSafe(t *testing.T) {
	text := `{"zone":"z","label":"a>b?"}`

	payload, err := Decode(base64.RawStdEncoding.EncodeToString([]byte(text)))
	require.NoError(t, err)
	assert.Equal(t, "a>b?", payload["label"])

	payload, err = Decode(base64.RawURLEncoding.EncodeToString([]byte(text)))
	require.NoError(t, err)
	assert.Equal(t, "a>b?", payload["label"])
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed base64", "%%%not-base64%%%"},
		{"empty data", ""},
		{"not json", encode("zone=us-central1-a")},
		{"truncated json", encode(`{"zone":"us-central1-a"`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Decode(tt.data)
			require.Error(t, err)
			assert.Nil(t, payload)

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T", err)
		})
	}
}

func TestDecode_NonObjectJSONHasNoFields(t *testing.T) {
	for _, text := range []string{`["zone","label"]`, `"us-central1-a"`, `42`, `null`, `true`} {
		t.Run(text, func(t *testing.T) {
			payload, err := Decode(encode(text))
			require.NoError(t, err)
			assert.Empty(t, payload)

			_, err = Parse(Event{Data: encode(text)})
			var missing *MissingFieldError
			require.True(t, errors.As(err, &missing), "expected MissingFieldError, got %T", err)
			assert.Equal(t, "zone", missing.Field)

			var decodeErr *DecodeError
			assert.False(t, errors.As(err, &decodeErr))
		})
	}
}

func TestValidate_MissingZoneReportedFirst(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"both missing", map[string]any{}},
		{"zone missing", map[string]any{"label": "env-prod"}},
		{"zone empty", map[string]any{"zone": "", "label": "env-prod"}},
		{"zone null", map[string]any{"zone": nil, "label": "env-prod"}},
		{"zone false", map[string]any{"zone": false}},
		{"zone zero", map[string]any{"zone": float64(0), "label": "env-prod"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.payload)
			var missing *MissingFieldError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, "zone", missing.Field)
			assert.Equal(t, "Attribute 'zone' missing from payload", err.Error())
		})
	}
}

func TestValidate_MissingLabel(t *testing.T) {
	for _, payload := range []map[string]any{
		{"zone": "us-central1-a"},
		{"zone": "us-central1-a", "label": ""},
		{"zone": "us-central1-a", "label": nil},
	} {
		_, err := Validate(payload)
		var missing *MissingFieldError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "label", missing.Field)
	}
}

func TestValidate_ReturnsPayloadUnchanged(t *testing.T) {
	payload := map[string]any{"zone": "us-central1-a", "label": "env-prod", "extra": 1.0}

	got, err := Validate(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	again, err := Validate(got)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Len(t, again, 3)
}

func TestParse(t *testing.T) {
	msg, err := Parse(Event{Data: encode(`{"zone":"us-central1-a","label":"env-prod"}`)})
	require.NoError(t, err)
	assert.Equal(t, Message{Zone: "us-central1-a", Label: "env-prod"}, msg)

	_, err = Parse(Event{Data: encode(`{"label":"env-prod"}`)})
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "zone", missing.Field)

	_, err = Parse(Event{Data: "!!"})
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
}

func TestMessageFrom_NonStringValues(t *testing.T) {
	msg := MessageFrom(map[string]any{"zone": "z", "label": float64(7)})
	assert.Equal(t, "7", msg.Label)
}

func TestMessage_EncodeRoundTrip(t *testing.T) {
	ev, err := Message{Zone: "europe-west1-b", Label: "team=infra"}.Encode()
	require.NoError(t, err)

	msg, err := Parse(ev)
	require.NoError(t, err)
	assert.Equal(t, "europe-west1-b", msg.Zone)
	assert.Equal(t, "team=infra", msg.Label)
}
