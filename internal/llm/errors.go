package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyReply indicates the backend answered without any text block.
var ErrEmptyReply = errors.New("no text content in reply")

// ErrNoResponses is returned by MockProvider when its queue is exhausted.
var ErrNoResponses = errors.New("mock provider has no queued responses")

// BackendError is the single failure type of the gateway: a non-2xx
// response, a transport failure, a timeout or a caller cancellation.
// StatusCode is zero when no HTTP response was received.
type BackendError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		detail := e.Body
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return fmt.Sprintf("llm backend returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), detail)
	}
	return fmt.Sprintf("llm backend unavailable: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// RateLimited reports whether the backend rejected the call with 429.
func (e *BackendError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Canceled reports whether the call was aborted by the caller's context.
func (e *BackendError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

// TimedOut reports whether the call hit a deadline.
func (e *BackendError) TimedOut() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// backendError wraps a transport-level failure that carries no HTTP status.
func backendError(ctx context.Context, err error) *BackendError {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return &BackendError{Err: err}
}
