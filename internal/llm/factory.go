package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/vizlearn/internal/logger"
	"github.com/abhisek/vizlearn/internal/store"
)

// ErrKeyOverrideUnsupported is returned when a per-request API key is
// supplied for a provider that cannot be re-keyed.
var ErrKeyOverrideUnsupported = errors.New("provider does not accept a per-request API key")

// NewProvider creates a Provider from configuration.
// It returns the provider wrapped with timeout and logging middleware.
// recorder may be nil.
func NewProvider(ctx context.Context, cfg Config, log *logger.Logger, recorder store.EventRecorder) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// Wrap with middleware: caller → logging → timeout → base
	timed := WithTimeout(base, cfg.Timeout)
	logged := WithLogging(timed, cfg.Provider, log, recorder)

	return logged, nil
}

// ForKey returns p re-keyed with key. An empty key returns p unchanged.
func ForKey(p Provider, key string) (Provider, error) {
	if key == "" {
		return p, nil
	}
	return withAPIKey(p, key)
}

func withAPIKey(p Provider, key string) (Provider, error) {
	kp, ok := p.(KeyedProvider)
	if !ok {
		return nil, ErrKeyOverrideUnsupported
	}
	return kp.WithAPIKey(key)
}
