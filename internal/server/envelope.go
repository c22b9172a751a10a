package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/pipeline"
	"github.com/abhisek/vizlearn/internal/shape"
)

// Envelope is the uniform response body of every generation route.
type Envelope struct {
	Success bool `json:"success"`

	Summary            string                    `json:"summary,omitempty"`
	SummaryHTML        string                    `json:"summaryHtml,omitempty"`
	Concept            *content.Concept          `json:"concept,omitempty"`
	LearningObjectives []string                  `json:"learningObjectives,omitempty"`
	InteractivityNotes string                    `json:"interactivityNotes,omitempty"`
	CodeOutputs        map[content.Format]string `json:"codeOutputs,omitempty"`

	// P5jsCode repeats the requested format's code for the legacy image route.
	P5jsCode string `json:"p5jsCode,omitempty"`

	MCQ *content.McqSet `json:"mcq,omitempty"`

	Warnings []string `json:"warnings,omitempty"`

	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
	Details   string `json:"details,omitempty"`

	// Fields names the offending request or payload fields.
	Fields []string `json:"fields,omitempty"`

	RequestID string `json:"requestId,omitempty"`
}

func successEnvelope(out *pipeline.Outcome) Envelope {
	env := Envelope{Success: true}

	switch r := out.Result.(type) {
	case *content.CodeBundle:
		concept := r.Concept
		env.Summary = r.Summary
		env.SummaryHTML = renderMarkdown(r.Summary)
		env.Concept = &concept
		env.LearningObjectives = r.LearningObjectives
		env.InteractivityNotes = r.InteractivityNotes
		env.CodeOutputs = r.CodeOutputs
	case *content.McqSet:
		env.MCQ = r
	}

	for _, w := range out.Warnings {
		env.Warnings = append(env.Warnings, w.String())
	}
	return env
}

// failure maps err onto a status code and error envelope.
func failure(err error) (int, Envelope) {
	env := Envelope{Success: false, Error: err.Error()}

	var invalid *content.InvalidInputError
	if errors.As(err, &invalid) {
		env.ErrorKind = string(pipeline.KindInvalidInput)
		env.Error = invalid.Error()
		if invalid.Field != "" {
			env.Fields = []string{invalid.Field}
		}
		return http.StatusBadRequest, env
	}

	var pe *pipeline.Error
	if errors.As(err, &pe) {
		env.ErrorKind = string(pe.Kind)
		env.Error = pe.Err.Error()
		env.Details = pe.Details
	}
	var schemaErr *shape.Error
	if errors.As(err, &schemaErr) {
		env.Fields = schemaErr.Fields()
	}
	return http.StatusInternalServerError, env
}

func respond(c *gin.Context, status int, env Envelope) {
	env.RequestID = c.GetString(ctxRequestID)
	c.JSON(status, env)
}

func respondError(c *gin.Context, err error) {
	status, env := failure(err)
	respond(c, status, env)
}

// renderMarkdown converts a summary to HTML. Raw HTML in the input is
// dropped by goldmark's default renderer.
func renderMarkdown(md string) string {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return ""
	}
	return buf.String()
}
