package llm

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/vizlearn/internal/logger"
	"github.com/abhisek/vizlearn/internal/store"
)

// LoggingProvider is a decorator that logs every call and, when a recorder
// is configured, appends its metadata to the event log. Prompt text, reply
// text and API keys are never recorded.
type LoggingProvider struct {
	inner    Provider
	name     string
	log      *logger.Logger
	recorder store.EventRecorder
}

// WithLogging wraps a Provider with call logging. recorder may be nil.
func WithLogging(p Provider, name string, log *logger.Logger, recorder store.EventRecorder) Provider {
	if log == nil {
		log = logger.NewNop()
	}
	return &LoggingProvider{inner: p, name: name, log: log, recorder: recorder}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	data := store.LLMRequestEventData{
		RequestID: RequestIDFrom(ctx),
		Provider:  l.name,
		Model:     l.inner.ModelID(),
		Purpose:   PurposeFrom(ctx),
		LatencyMs: time.Since(start).Milliseconds(),
		Success:   err == nil,
	}
	if req.Model != "" {
		data.Model = req.Model
	}

	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		data.StopReason = resp.StopReason
		if resp.Model != "" {
			data.Model = resp.Model
		}
	}

	if err != nil {
		data.ErrorMessage = err.Error()
		var be *BackendError
		if errors.As(err, &be) {
			data.StatusCode = be.StatusCode
		}
		l.log.Warn("llm call failed",
			"request_id", data.RequestID,
			"provider", data.Provider,
			"model", data.Model,
			"purpose", data.Purpose,
			"latency_ms", data.LatencyMs,
			"status_code", data.StatusCode,
			"error", data.ErrorMessage,
		)
	} else {
		l.log.Info("llm call",
			"request_id", data.RequestID,
			"provider", data.Provider,
			"model", data.Model,
			"purpose", data.Purpose,
			"latency_ms", data.LatencyMs,
			"input_tokens", data.InputTokens,
			"output_tokens", data.OutputTokens,
			"stop_reason", data.StopReason,
			"has_image", req.hasImage(),
		)
	}

	// Recording is best effort and never fails the call.
	if l.recorder != nil {
		if logErr := l.recorder.AppendLLMRequest(context.WithoutCancel(ctx), data); logErr != nil {
			l.log.Warn("failed to record llm event", "error", logErr)
		}
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// WithAPIKey rebuilds the wrapped provider with key, keeping the logger and
// recorder.
func (l *LoggingProvider) WithAPIKey(key string) (Provider, error) {
	inner, err := withAPIKey(l.inner, key)
	if err != nil {
		return nil, err
	}
	return &LoggingProvider{inner: inner, name: l.name, log: l.log, recorder: l.recorder}, nil
}
