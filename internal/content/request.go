package content

import (
	"fmt"
	"strings"
)

// GenerationRequest holds everything a single pipeline run needs. It is built
// once by the caller and never modified afterwards.
type GenerationRequest struct {
	// Source describes where Text or Image came from.
	Source SourceKind

	// Text is the raw textual input: the free text, the Wikipedia reference,
	// or (for TaskMCQ) the summary the questions are based on.
	Text string

	// Image is set only for SourceImage requests.
	Image *Image

	// Format is the requested visualization target. Ignored for TaskMCQ.
	Format Format

	// Concept is optional. When nil the prompt asks the model to infer it.
	Concept *Concept

	// LearningObjectives is optional.
	LearningObjectives []string

	// InteractivityNotes is optional context passed through to MCQ prompts.
	InteractivityNotes string
}

// InvalidInputError reports a request that was rejected before any network call.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Message)
}

// Validate checks the preconditions task places on r.
func (r GenerationRequest) Validate(task Task) error {
	if !task.Valid() {
		return &InvalidInputError{Field: "task", Message: fmt.Sprintf("unknown task %q", task)}
	}

	switch task {
	case TaskMCQ:
		if strings.TrimSpace(r.Text) == "" {
			return &InvalidInputError{Field: "summary", Message: "must not be empty"}
		}
		return nil

	case TaskImageCode:
		if r.Source != SourceImage {
			return &InvalidInputError{Field: "source", Message: "image task requires an image source"}
		}
		if r.Image == nil || len(r.Image.Data) == 0 {
			return &InvalidInputError{Field: "file", Message: "image must not be empty"}
		}

	case TaskCode:
		if r.Source != SourceText && r.Source != SourceWikipedia {
			return &InvalidInputError{Field: "source", Message: fmt.Sprintf("unsupported source %q", r.Source)}
		}
		if strings.TrimSpace(r.Text) == "" {
			return &InvalidInputError{Field: "input", Message: "must not be empty"}
		}
	}

	if !r.Format.Valid() {
		return &InvalidInputError{Field: "format", Message: fmt.Sprintf("unsupported format %q", r.Format)}
	}
	return nil
}
