package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/imagedata"
	"github.com/abhisek/vizlearn/internal/llm"
	"github.com/abhisek/vizlearn/internal/logger"
	"github.com/abhisek/vizlearn/internal/pipeline"
)

// KeyedProviderFunc builds a provider that authenticates with a
// caller-supplied API key.
type KeyedProviderFunc func(ctx context.Context, key string) (llm.Provider, error)

// Handler serves the generation routes.
type Handler struct {
	orch             *pipeline.Orchestrator
	forKey           KeyedProviderFunc
	allowRequestKeys bool
	image            imagedata.Options
	log              *logger.Logger
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	// Orchestrator runs the pipeline. Its provider may be nil when every
	// request is expected to carry its own key.
	Orchestrator *pipeline.Orchestrator

	// ForKey overrides how per-request keys become providers. When nil the
	// orchestrator's provider is re-keyed with llm.ForKey.
	ForKey KeyedProviderFunc

	AllowRequestKeys bool
	Image            imagedata.Options
	Logger           *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	h := &Handler{
		orch:             cfg.Orchestrator,
		forKey:           cfg.ForKey,
		allowRequestKeys: cfg.AllowRequestKeys,
		image:            cfg.Image,
		log:              log,
	}
	if h.forKey == nil {
		base := cfg.Orchestrator.Provider()
		h.forKey = func(_ context.Context, key string) (llm.Provider, error) {
			if base == nil {
				return nil, errors.New("no base provider configured")
			}
			return llm.ForKey(base, key)
		}
	}
	return h
}

type generateBody struct {
	Source             string           `json:"source"`
	Input              string           `json:"input"`
	Format             string           `json:"format"`
	Concept            *content.Concept `json:"concept"`
	LearningObjectives []string         `json:"learningObjectives"`
}

type imageBody struct {
	File   string `json:"file"`
	Format string `json:"format"`

	// Formate is the legacy UI's spelling of Format. Format wins when both
	// are set.
	Formate string `json:"formate"`
}

type mcqBody struct {
	Summary            string           `json:"summary"`
	Concept            *content.Concept `json:"concept"`
	LearningObjectives []string         `json:"learningObjectives"`
	InteractivityNotes string           `json:"interactivityNotes"`
}

// Generate handles the text and Wikipedia code routes. defaultSource is used
// when the body names none.
func (h *Handler) Generate(defaultSource content.SourceKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body generateBody
		if !h.bind(c, &body) {
			return
		}

		source := defaultSource
		if body.Source != "" {
			s, ok := content.ParseSourceKind(body.Source)
			if !ok || s == content.SourceImage {
				respondError(c, &content.InvalidInputError{Field: "source", Message: fmt.Sprintf("unsupported source %q", body.Source)})
				return
			}
			source = s
		}

		req := content.GenerationRequest{
			Source:             source,
			Text:               body.Input,
			Format:             parseFormat(body.Format),
			Concept:            body.Concept,
			LearningObjectives: body.LearningObjectives,
		}
		h.run(c, content.TaskCode, req, false)
	}
}

// GenerateImage handles the image routes. legacy adds p5jsCode to the reply.
func (h *Handler) GenerateImage(legacy bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body imageBody
		if !h.bind(c, &body) {
			return
		}

		if strings.TrimSpace(body.File) == "" {
			respondError(c, &content.InvalidInputError{Field: "file", Message: "must not be empty"})
			return
		}
		img, err := imagedata.Decode(body.File, h.image)
		if err != nil {
			respondError(c, err)
			return
		}

		format := body.Format
		if format == "" {
			format = body.Formate
		}

		req := content.GenerationRequest{
			Source: content.SourceImage,
			Image:  img,
			Format: parseFormat(format),
		}
		h.run(c, content.TaskImageCode, req, legacy)
	}
}

// MCQ handles the question generation routes.
func (h *Handler) MCQ(c *gin.Context) {
	var body mcqBody
	if !h.bind(c, &body) {
		return
	}

	req := content.GenerationRequest{
		Source:             content.SourceText,
		Text:               body.Summary,
		Concept:            body.Concept,
		LearningObjectives: body.LearningObjectives,
		InteractivityNotes: body.InteractivityNotes,
	}
	h.run(c, content.TaskMCQ, req, false)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handler) run(c *gin.Context, task content.Task, req content.GenerationRequest, legacy bool) {
	orch, err := h.orchestrator(c)
	if err != nil {
		respondError(c, err)
		return
	}

	out, err := orch.Run(c.Request.Context(), task, req)
	if err != nil {
		respondError(c, err)
		return
	}

	env := successEnvelope(out)
	if legacy {
		if b, ok := out.Result.(*content.CodeBundle); ok {
			env.P5jsCode, _ = b.Code(req.Format)
		}
	}
	respond(c, http.StatusOK, env)
}

// orchestrator picks the configured orchestrator or one keyed with the
// caller's X-Api-Key.
func (h *Handler) orchestrator(c *gin.Context) (*pipeline.Orchestrator, error) {
	key := strings.TrimSpace(c.GetHeader(headerAPIKey))
	if key == "" || !h.allowRequestKeys {
		if h.orch.Provider() == nil {
			return nil, &content.InvalidInputError{Field: headerAPIKey, Message: "an API key is required"}
		}
		return h.orch, nil
	}

	p, err := h.forKey(c.Request.Context(), key)
	if err != nil {
		h.log.Warn("per-request key rejected", "error", err)
		return nil, &content.InvalidInputError{Field: headerAPIKey, Message: "cannot use the supplied API key"}
	}
	return h.orch.WithProvider(p), nil
}

// bind decodes the JSON body and answers 400 (or 413) itself on failure.
func (h *Handler) bind(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		respond(c, http.StatusRequestEntityTooLarge, Envelope{
			ErrorKind: string(pipeline.KindInvalidInput),
			Error:     fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
	case errors.Is(err, io.EOF):
		respond(c, http.StatusBadRequest, Envelope{
			ErrorKind: string(pipeline.KindInvalidInput),
			Error:     "request body is empty",
		})
	default:
		respond(c, http.StatusBadRequest, Envelope{
			ErrorKind: string(pipeline.KindInvalidInput),
			Error:     "malformed JSON body: " + err.Error(),
		})
	}
	return false
}

// parseFormat resolves aliases. Unknown values pass through so validation
// reports them verbatim.
func parseFormat(s string) content.Format {
	if f, ok := content.ParseFormat(s); ok {
		return f
	}
	return content.Format(s)
}
