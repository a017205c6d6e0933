package github

import (
	"encoding/json"
	"fmt"
)

// DecodeError indicates that a response body did not match the expected
// entity shape. It signals API drift and is never retried.
type DecodeError struct {
	Target string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode unmarshals a response body into the target entity shape. Type
// mismatches and malformed JSON surface as *DecodeError.
func Decode[T any](body []byte, target string) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, &DecodeError{Target: target, Err: err}
	}
	return v, nil
}

// DecodeList unmarshals a JSON array response into a slice of entities
func DecodeList[T any](body []byte, target string) ([]T, error) {
	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &DecodeError{Target: target, Err: err}
	}
	return items, nil
}
