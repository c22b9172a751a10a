package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openaigo "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider targets the OpenRouter API through the official
// OpenAI SDK, since OpenRouter speaks the chat completions protocol.
type OpenRouterProvider struct {
	client *openaigo.Client
	model  string
	cfg    OpenRouterConfig
}

// NewOpenRouterProvider creates a provider targeting the OpenRouter API.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}

	client := openaigo.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	)

	return &OpenRouterProvider{
		client: &client,
		model:  cfg.Model,
		cfg:    cfg,
	}, nil
}

func (p *OpenRouterProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	params := openaigo.ChatCompletionNewParams{
		Model:    model,
		Messages: buildOpenRouterMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaigo.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openaigo.Float(req.Temperature)
	}

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, mapOpenRouterError(ctx, err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, &BackendError{StatusCode: http.StatusOK, Err: ErrEmptyReply}
	}

	choice := completion.Choices[0]
	stop := "end"
	if choice.FinishReason == "length" {
		stop = "max_tokens"
	}

	return &Response{
		Text:      choice.Message.Content,
		LatencyMs: latency,
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
		Model:      completion.Model,
		StopReason: stop,
	}, nil
}

func (p *OpenRouterProvider) ModelID() string {
	return p.model
}

// WithAPIKey returns a copy of p that authenticates with key.
func (p *OpenRouterProvider) WithAPIKey(key string) (Provider, error) {
	cfg := p.cfg
	cfg.APIKey = key
	return NewOpenRouterProvider(cfg)
}

func buildOpenRouterMessages(req Request) []openaigo.ChatCompletionMessageParamUnion {
	var out []openaigo.ChatCompletionMessageParamUnion
	if req.System != "" {
		out = append(out, openaigo.SystemMessage(req.System))
	}

	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			out = append(out, openaigo.AssistantMessage(m.Content))
			continue
		}
		if m.Image == nil {
			out = append(out, openaigo.UserMessage(m.Content))
			continue
		}
		out = append(out, openaigo.UserMessage([]openaigo.ChatCompletionContentPartUnionParam{
			openaigo.ImageContentPart(openaigo.ChatCompletionContentPartImageImageURLParam{
				URL: dataURI(m.Image),
			}),
			openaigo.TextContentPart(m.Content),
		}))
	}
	return out
}

func mapOpenRouterError(ctx context.Context, err error) error {
	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) {
		return &BackendError{
			StatusCode: apiErr.StatusCode,
			Body:       apiErr.RawJSON(),
			Err:        err,
		}
	}
	return backendError(ctx, err)
}
