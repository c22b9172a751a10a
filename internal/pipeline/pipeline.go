// Package pipeline sequences one generation run: validate the request,
// render the prompt, call the model once, extract the JSON payload and
// shape it into a typed result.
//
// Runs share no mutable state. The only blocking step is the model call,
// which is abandoned when the caller's context is done.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/extract"
	"github.com/abhisek/vizlearn/internal/llm"
	"github.com/abhisek/vizlearn/internal/logger"
	"github.com/abhisek/vizlearn/internal/prompt"
	"github.com/abhisek/vizlearn/internal/shape"
)

const tracerName = "github.com/abhisek/vizlearn/internal/pipeline"

// DefaultTaskConfigs returns the model settings each task uses unless
// overridden. MCQ generation runs warmer for varied phrasing.
func DefaultTaskConfigs() map[content.Task]llm.TaskConfig {
	return map[content.Task]llm.TaskConfig{
		content.TaskCode:      {MaxTokens: 4000, Temperature: 0},
		content.TaskImageCode: {MaxTokens: 4000, Temperature: 0},
		content.TaskMCQ:       {MaxTokens: 4000, Temperature: 0.3},
	}
}

// Outcome is a successful run.
type Outcome struct {
	Result   content.Result
	Warnings []shape.Warning
	Timeline Timeline

	// Model is the model that served the call; Usage its token counts.
	Model string
	Usage llm.Usage
}

// Orchestrator runs generation tasks against a single provider.
type Orchestrator struct {
	provider llm.Provider
	tasks    map[content.Task]llm.TaskConfig
	log      *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTaskConfig overrides the model settings for one task.
func WithTaskConfig(task content.Task, tc llm.TaskConfig) Option {
	return func(o *Orchestrator) { o.tasks[task] = tc }
}

// WithTracer sets the tracer. The global tracer provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock replaces time.Now for timeline stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. log may be nil.
func New(provider llm.Provider, log *logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	o := &Orchestrator{
		provider: provider,
		tasks:    DefaultTaskConfigs(),
		log:      log,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithProvider returns a copy of o that calls p instead. Used for requests
// carrying their own API key.
func (o *Orchestrator) WithProvider(p llm.Provider) *Orchestrator {
	cp := *o
	cp.provider = p
	return &cp
}

// Provider returns the provider o calls.
func (o *Orchestrator) Provider() llm.Provider {
	return o.provider
}

// TaskConfig returns the model settings used for task.
func (o *Orchestrator) TaskConfig(task content.Task) llm.TaskConfig {
	return o.tasks[task]
}

// run carries the per-call state of one Run.
type run struct {
	o        *Orchestrator
	task     content.Task
	span     trace.Span
	timeline Timeline
}

func (r *run) enter(s Stage) {
	r.timeline.enter(s, r.o.now())
	r.span.AddEvent(string(s))
}

func (r *run) fail(stage Stage, err error, details string) *Error {
	kind := classify(err)
	if kind == "" {
		kind = stageKind(stage)
	}
	r.enter(StageFailed)
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, string(kind))
	r.span.SetAttributes(attribute.String("pipeline.error_kind", string(kind)))
	return &Error{Kind: kind, Stage: stage, Err: err, Details: details, Timeline: r.timeline}
}

// Run executes task for req. On success exactly one result is returned; on
// failure the error is a *Error.
func (o *Orchestrator) Run(ctx context.Context, task content.Task, req content.GenerationRequest) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("pipeline.task", string(task)),
		attribute.String("pipeline.source", string(req.Source)),
		attribute.String("pipeline.format", string(req.Format)),
	))
	defer span.End()

	r := &run{o: o, task: task, span: span}
	out, err := r.execute(ctx, req)
	span.SetAttributes(attribute.String("pipeline.final_stage", string(r.timeline.Last())))

	fields := []any{
		"task", task,
		"request_id", llm.RequestIDFrom(ctx),
		"stages", r.timeline.Stages(),
		"latency_ms", r.timeline.Total().Milliseconds(),
	}
	if err != nil {
		var pe *Error
		errors.As(err, &pe)
		o.log.Warn("generation failed", append(fields, "kind", pe.Kind, "stage", pe.Stage, "error", pe.Err)...)
		return nil, err
	}

	o.log.Info("generation complete", append(fields, "model", out.Model, "warnings", len(out.Warnings))...)
	span.SetAttributes(attribute.Int("pipeline.warnings", len(out.Warnings)))
	return out, nil
}

func (r *run) execute(ctx context.Context, req content.GenerationRequest) (*Outcome, error) {
	r.enter(StageValidating)
	if err := req.Validate(r.task); err != nil {
		return nil, r.fail(StageValidating, err, "")
	}

	r.enter(StagePrompting)
	doc, err := prompt.Build(r.task, req)
	if err != nil {
		return nil, r.fail(StagePrompting, err, "")
	}

	r.enter(StageInvoking)
	var img *llm.Image
	if doc.Image != nil {
		img = &llm.Image{MIMEType: doc.Image.MIMEType, Data: doc.Image.Data}
	}
	llmReq := r.o.tasks[r.task].Apply(llm.Request{Messages: llm.UserMessage(doc.Text, img)})

	resp, err := r.o.provider.Generate(llm.WithPurpose(ctx, string(r.task)), llmReq)
	if err != nil {
		var be *llm.BackendError
		if !errors.As(err, &be) {
			err = &llm.BackendError{Err: err}
			be = err.(*llm.BackendError)
		}
		return nil, r.fail(StageInvoking, err, be.Body)
	}
	r.span.SetAttributes(
		attribute.String("llm.model", resp.Model),
		attribute.Int64("llm.latency_ms", resp.LatencyMs),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
	)

	var warns []shape.Warning
	if resp.StopReason == "max_tokens" {
		warns = append(warns, shape.Warning{Field: "reply", Message: "model hit the output token limit"})
	}

	r.enter(StageExtracting)
	payload, info, err := extract.ExtractWithInfo(resp.Text)
	if err != nil {
		return nil, r.fail(StageExtracting, err, resp.Text)
	}
	if info.Repaired {
		warns = append(warns, shape.Warning{Field: "reply", Message: "JSON needed repair before parsing"})
	}

	r.enter(StageShaping)
	result, shapeWarns, err := shape.Shape(r.task, req.Format, payload)
	if err != nil {
		return nil, r.fail(StageShaping, err, resp.Text)
	}
	warns = append(warns, shapeWarns...)

	r.enter(StageDone)
	return &Outcome{
		Result:   result,
		Warnings: warns,
		Timeline: r.timeline,
		Model:    resp.Model,
		Usage:    resp.Usage,
	}, nil
}
