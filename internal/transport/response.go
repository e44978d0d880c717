package transport

import (
	"encoding/json"
	"fmt"
)

// DecodeJSON unmarshals the response body into target.
func (r *Response) DecodeJSON(target any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}
