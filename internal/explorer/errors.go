package explorer

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is returned after the retry budget is spent.
var ErrRetriesExhausted = errors.New("max retries exceeded")

// RequestError describes a failed provider HTTP request.
type RequestError struct {
	Provider string
	Endpoint string
	Status   int // HTTP status, 0 for transport errors
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status %d after %d attempt(s): %v",
			e.Provider, e.Endpoint, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s: %d attempt(s): %v", e.Provider, e.Endpoint, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying cannot help (4xx other than 429).
func (e *RequestError) Permanent() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != 429
}
