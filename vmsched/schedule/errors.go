package schedule

import "fmt"

// DecodeError reports a schedule event whose data is not base64-encoded JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode schedule payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MissingFieldError reports a required payload attribute that is absent or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Attribute '%s' missing from payload", e.Field)
}
