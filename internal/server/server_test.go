package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/imagedata"
	"github.com/abhisek/vizlearn/internal/llm"
	"github.com/abhisek/vizlearn/internal/pipeline"
)

const codeReply = `Here you go:
{"summary":"**Cells** divide by mitosis.","concept":{"name":"Mitosis","principles":["DNA is copied first"]},"codeOutputs":{"p5js":"function setup() {}","mermaidjs":"graph TD; A-->B"}}`

const mcqReply = `{"questions":[
 {"question":"Q1","options":["a","b","c","d"],"correctAnswer":0,"bloomsLevel":"recall"},
 {"question":"Q2","options":["a","b","c"],"correctAnswer":1}
]}`

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(p llm.Provider, allowKeys bool) *gin.Engine {
	h := NewHandler(HandlerConfig{
		Orchestrator:     pipeline.New(p, nil),
		AllowRequestKeys: allowKeys,
		Image:            imagedata.Options{},
	})
	return NewRouter(RouterConfig{Handler: h, AllowedOrigins: []string{"*"}, MaxBodyBytes: 1 << 20})
}

func do(t *testing.T, r http.Handler, method, path, body string, headers ...string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env Envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestGenerate_Success(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: codeReply})
	r := newTestRouter(mock, false)

	w, env := do(t, r, http.MethodPost, "/api/generate", `{"input":"Explain mitosis","format":"p5js"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "**Cells** divide by mitosis.", env.Summary)
	assert.Contains(t, env.SummaryHTML, "<strong>Cells</strong>")
	require.NotNil(t, env.Concept)
	assert.Equal(t, "Mitosis", env.Concept.Name)
	assert.Equal(t, "function setup() {}", env.CodeOutputs[content.FormatCanvas2D])
	assert.Equal(t, "graph TD; A-->B", env.CodeOutputs[content.FormatDiagram])
	assert.Empty(t, env.P5jsCode)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, w.Header().Get("X-Request-Id"))

	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "Explain mitosis")
}

func TestGenerate_KeepsCallerRequestID(t *testing.T) {
	r := newTestRouter(llm.NewMockProvider(llm.MockResponse{Text: codeReply}), false)

	_, env := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`, "X-Request-Id", "req-123")
	assert.Equal(t, "req-123", env.RequestID)
}

func TestWiki_DefaultsToWikipediaSource(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: codeReply})
	r := newTestRouter(mock, false)

	w, _ := do(t, r, http.MethodPost, "/api/wiki", `{"input":"https://en.wikipedia.org/wiki/Mitosis","format":"canvas2d"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "Wikipedia")
}

func TestGenerate_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty input", `{"input":"  ","format":"canvas2d"}`, "input"},
		{"bad format", `{"input":"x","format":"flash"}`, "format"},
		{"image source", `{"source":"image","input":"x","format":"canvas2d"}`, "source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider()
			r := newTestRouter(mock, false)

			w, env := do(t, r, http.MethodPost, "/api/generate", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, string(pipeline.KindInvalidInput), env.ErrorKind)
			assert.Contains(t, env.Error, tt.field)
			assert.Equal(t, []string{tt.field}, env.Fields)
			assert.Zero(t, mock.CallCount())
		})
	}
}

func TestGenerate_MalformedBody(t *testing.T) {
	r := newTestRouter(llm.NewMockProvider(), false)

	w, env := do(t, r, http.MethodPost, "/api/generate", `{"input":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(pipeline.KindInvalidInput), env.ErrorKind)
	assert.Contains(t, env.Error, "malformed JSON")

	w, env = do(t, r, http.MethodPost, "/api/generate", ``)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body is empty", env.Error)
}

func TestGenerate_BodyTooLarge(t *testing.T) {
	h := NewHandler(HandlerConfig{Orchestrator: pipeline.New(llm.NewMockProvider(), nil)})
	r := NewRouter(RouterConfig{Handler: h, MaxBodyBytes: 16})

	w, env := do(t, r, http.MethodPost, "/api/generate", `{"input":"a very long input string","format":"canvas2d"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, env.Error, "16 bytes")
}

func TestGenerate_ExtractionError(t *testing.T) {
	raw := `{"summary":"cut off`
	r := newTestRouter(llm.NewMockProvider(llm.MockResponse{Text: raw}), false)

	w, env := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, string(pipeline.KindExtraction), env.ErrorKind)
	assert.Equal(t, raw, env.Details)
}

func TestGenerate_SchemaErrorListsFields(t *testing.T) {
	raw := `{"concept":{"name":"Mitosis","principles":[]},"codeOutputs":{"diagram":"graph TD"}}`
	r := newTestRouter(llm.NewMockProvider(llm.MockResponse{Text: raw}), false)

	w, env := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(pipeline.KindSchema), env.ErrorKind)
	assert.Contains(t, env.Fields, "summary")
	assert.Equal(t, raw, env.Details)
}

func TestGenerate_BackendError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.BackendError{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"rate limited"}`,
	}})
	r := newTestRouter(mock, false)

	w, env := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(pipeline.KindBackend), env.ErrorKind)
	assert.Equal(t, `{"error":"rate limited"}`, env.Details)
	assert.Contains(t, env.Error, "429")
}

func pngDataURI(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestGenerateImage_LegacyRoute(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: codeReply})
	r := newTestRouter(mock, false)

	body, _ := json.Marshal(map[string]string{"file": pngDataURI(t), "formate": "p5js"})
	w, env := do(t, r, http.MethodPost, "/api/upload_gpt4v/route", string(body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "function setup() {}", env.P5jsCode)

	require.Equal(t, 1, mock.CallCount())
	img := mock.Calls[0].Messages[0].Image
	require.NotNil(t, img)
	assert.Equal(t, "image/png", img.MIMEType)
}

func TestGenerateImage_FormatWinsOverFormate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: codeReply})
	r := newTestRouter(mock, false)

	body, _ := json.Marshal(map[string]string{"file": pngDataURI(t), "format": "diagram", "formate": "p5js"})
	w, env := do(t, r, http.MethodPost, "/api/generate-image", string(body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.P5jsCode)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "diagram")
}

func TestGenerateImage_Rejects(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"missing", ""},
		{"not base64", "data:image/png;base64,@@@"},
		{"not an image", "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello world"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider()
			r := newTestRouter(mock, false)

			body, _ := json.Marshal(map[string]string{"file": tt.file, "format": "canvas2d"})
			w, env := do(t, r, http.MethodPost, "/api/generate-image", string(body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(pipeline.KindInvalidInput), env.ErrorKind)
			assert.Contains(t, env.Error, "file")
			assert.Zero(t, mock.CallCount())
		})
	}
}

func TestMCQ_BothRoutes(t *testing.T) {
	for _, path := range []string{"/api/mcq", "/api/enhanced-mcq-generation"} {
		t.Run(path, func(t *testing.T) {
			mock := llm.NewMockProvider(llm.MockResponse{Text: mcqReply})
			r := newTestRouter(mock, false)

			w, env := do(t, r, http.MethodPost, path, `{"summary":"Cells divide.","concept":{"name":"Mitosis","principles":["copy"]},"learningObjectives":["Explain mitosis"]}`)

			require.Equal(t, http.StatusOK, w.Code)
			require.NotNil(t, env.MCQ)
			require.Len(t, env.MCQ.Questions, 1)
			assert.Equal(t, "Q1", env.MCQ.Questions[0].Question)
			require.Len(t, env.Warnings, 1)
			assert.Contains(t, env.Warnings[0], "questions[1]")

			require.Equal(t, 1, mock.CallCount())
			assert.Equal(t, 0.3, mock.Calls[0].Temperature)
			assert.Contains(t, mock.Calls[0].Messages[0].Content, "Mitosis")
		})
	}
}

func TestMCQ_MissingSummary(t *testing.T) {
	mock := llm.NewMockProvider()
	r := newTestRouter(mock, false)

	w, env := do(t, r, http.MethodPost, "/api/mcq", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, "summary")
	assert.Zero(t, mock.CallCount())
}

func TestRequestKey(t *testing.T) {
	t.Run("rekeys the provider", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Text: codeReply})
		r := newTestRouter(mock, true)

		w, _ := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`, "X-Api-Key", "sk-user")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, mock.KeyOverrides)
	})

	t.Run("ignored when disabled", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Text: codeReply})
		r := newTestRouter(mock, false)

		w, _ := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`, "X-Api-Key", "sk-user")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, mock.KeyOverrides)
	})

	t.Run("required without a base provider", func(t *testing.T) {
		r := newTestRouter(nil, true)

		w, env := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, env.Error, "X-Api-Key")
	})

	t.Run("custom builder", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Text: codeReply})
		var got string
		h := NewHandler(HandlerConfig{
			Orchestrator:     pipeline.New(nil, nil),
			AllowRequestKeys: true,
			ForKey: func(_ context.Context, key string) (llm.Provider, error) {
				got = key
				return mock, nil
			},
		})
		r := NewRouter(RouterConfig{Handler: h})

		w, _ := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`, "X-Api-Key", "sk-user")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "sk-user", got)
		assert.Equal(t, 1, mock.CallCount())
	})

	t.Run("builder failure", func(t *testing.T) {
		h := NewHandler(HandlerConfig{
			Orchestrator:     pipeline.New(nil, nil),
			AllowRequestKeys: true,
			ForKey: func(context.Context, string) (llm.Provider, error) {
				return nil, errors.New("bad key")
			},
		})
		r := NewRouter(RouterConfig{Handler: h})

		w, env := do(t, r, http.MethodPost, "/api/generate", `{"input":"x","format":"canvas2d"}`, "X-Api-Key", "sk-user")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotContains(t, env.Error, "sk-user")
	})
}

func TestRouting(t *testing.T) {
	r := newTestRouter(llm.NewMockProvider(), false)

	w, env := do(t, r, http.MethodGet, "/api/generate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.False(t, env.Success)

	w, _ = do(t, r, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestCORS(t *testing.T) {
	h := NewHandler(HandlerConfig{Orchestrator: pipeline.New(llm.NewMockProvider(), nil)})
	r := NewRouter(RouterConfig{Handler: h, AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Api-Key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRenderMarkdown(t *testing.T) {
	assert.Empty(t, renderMarkdown(""))
	assert.Equal(t, "<p><em>hi</em></p>\n", renderMarkdown("*hi*"))
	assert.NotContains(t, renderMarkdown("<script>x</script>"), "<script>")
}
