package pipeline

import (
	"errors"
	"fmt"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/extract"
	"github.com/abhisek/vizlearn/internal/llm"
	"github.com/abhisek/vizlearn/internal/shape"
)

// Kind discriminates pipeline failures so callers can give task-specific
// guidance.
type Kind string

const (
	KindInvalidInput Kind = "InvalidInput"
	KindBackend      Kind = "BackendError"
	KindExtraction   Kind = "ExtractionError"
	KindSchema       Kind = "SchemaError"
)

// Error is the failure returned by Run. Err is the stage's own typed error
// (*content.InvalidInputError, *llm.BackendError, *extract.Error or
// *shape.Error).
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error

	// Details is diagnostic text for the caller: the raw model reply for
	// extraction and schema failures, the backend body for backend failures.
	Details string

	// Timeline ends with StageFailed.
	Timeline Timeline
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not a pipeline error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// classify maps a stage error onto its Kind.
func classify(err error) Kind {
	var (
		invalid *content.InvalidInputError
		backend *llm.BackendError
		ex      *extract.Error
		sch     *shape.Error
	)
	switch {
	case errors.As(err, &invalid):
		return KindInvalidInput
	case errors.As(err, &backend):
		return KindBackend
	case errors.As(err, &ex):
		return KindExtraction
	case errors.As(err, &sch):
		return KindSchema
	}
	return ""
}

// stageKind is the Kind of an error classify does not recognise, judged by
// the stage that raised it.
func stageKind(stage Stage) Kind {
	switch stage {
	case StageValidating, StagePrompting:
		return KindInvalidInput
	case StageExtracting:
		return KindExtraction
	case StageShaping:
		return KindSchema
	}
	return KindBackend
}
