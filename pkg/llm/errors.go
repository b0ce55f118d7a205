package llm

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrMalformedFrame marks a streaming frame that could not be parsed. The
// error covers that one frame only; the stream stays consumable.
var ErrMalformedFrame = errors.New("malformed stream frame")

// TransportError is a network or provider-level failure of a whole request:
// a non-success HTTP status, or an error payload the provider sent in place
// of a completion. StatusCode is zero when the failure never reached HTTP.
type TransportError struct {
	StatusCode int
	Type       string
	Message    string

	// Cause is the underlying error when the failure started as one, so that
	// errors.Is can still see context cancellation through the wrapper.
	Cause error
}

func (e *TransportError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("provider error (status %d, type %q): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether the provider asked us to back off.
func (e *TransportError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
