package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutProvider is a decorator that bounds every call with a deadline.
// It never retries: the first failure is returned to the caller.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps a Provider with a per-call deadline. A non-positive
// timeout returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &TimeoutProvider{inner: p, timeout: d}
}

func (t *TimeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.inner.Generate(ctx, req)
	if err != nil {
		var be *BackendError
		if !errors.As(err, &be) {
			err = backendError(ctx, err)
		}
		return nil, err
	}
	return resp, nil
}

func (t *TimeoutProvider) ModelID() string {
	return t.inner.ModelID()
}

// WithAPIKey rebuilds the wrapped provider with key and keeps the deadline.
func (t *TimeoutProvider) WithAPIKey(key string) (Provider, error) {
	inner, err := withAPIKey(t.inner, key)
	if err != nil {
		return nil, err
	}
	return &TimeoutProvider{inner: inner, timeout: t.timeout}, nil
}
