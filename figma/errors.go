package figma

import (
	"fmt"
	"net/http"
)

// StatusError is returned when the upstream API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("figma: %s: status %d %s", e.URL, e.StatusCode, e.Status)
}

// RateLimited reports whether the upstream rejected the call with 429.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// ErrCircuitOpen is returned by Image while the image breaker is open; no
// request reaches the upstream.
type ErrCircuitOpen struct {
	Endpoint string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("figma: circuit open: %s", e.Endpoint)
}
