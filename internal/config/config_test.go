package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/vizlearn/internal/content"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigPath, "VIZLEARN_LLM_PROVIDER", "VIZLEARN_LLM_TIMEOUT",
		"VIZLEARN_ANTHROPIC_API_KEY", "VIZLEARN_ANTHROPIC_MODEL",
		"VIZLEARN_OPENAI_API_KEY", "VIZLEARN_OPENAI_MODEL", "VIZLEARN_OPENAI_BASE_URL",
		"VIZLEARN_GEMINI_API_KEY", "VIZLEARN_GEMINI_MODEL",
		"VIZLEARN_OPENROUTER_API_KEY", "VIZLEARN_OPENROUTER_MODEL",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY",
		"VIZLEARN_ADDR", "PORT", "GIN_MODE", "VIZLEARN_ALLOWED_ORIGINS", "VIZLEARN_ALLOW_REQUEST_KEYS",
		"VIZLEARN_LOG_MODE", "VIZLEARN_LOG_LEVEL", "VIZLEARN_EVENTS_DB", "VIZLEARN_EVENTS_ENABLED",
		"VIZLEARN_IMAGE_MAX_BYTES", "OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_EXPORTER_OTLP_HEADERS", "OTEL_SAMPLER_RATIO",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vizlearn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 0.3, cfg.Tasks.MCQ.Temperature)
	assert.Equal(t, 4000, cfg.Tasks.Code.MaxTokens)
	assert.True(t, cfg.Server.AllowRequestKeys)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  addr: ":9090"
  allowed_origins: ["https://vizlearn.example"]
llm:
  provider: openai
  timeout: 45s
  openai:
    model: gpt-4.1
tasks:
  mcq:
    model: gpt-4o-mini
    max_tokens: 2000
    temperature: 0.5
  code:
    max_tokens: 6000
  image_code:
    max_tokens: 6000
otel:
  enabled: true
  sample_ratio: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://vizlearn.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4.1", cfg.LLM.OpenAI.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "claude-sonnet", cfg.LLM.Anthropic.Model)
	assert.True(t, cfg.OTel.Enabled)

	byTask := cfg.Tasks.ByTask()
	assert.Equal(t, "gpt-4o-mini", byTask[content.TaskMCQ].Model)
	assert.Equal(t, 0.5, byTask[content.TaskMCQ].Temperature)
	assert.Equal(t, 6000, byTask[content.TaskCode].MaxTokens)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "server:\n  addr: \":9090\"\n")
	t.Setenv(EnvConfigPath, path)
	t.Setenv("PORT", "8081")
	t.Setenv("VIZLEARN_EVENTS_ENABLED", "false")
	t.Setenv("VIZLEARN_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-team=viz, bad, =empty")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, map[string]string{"x-team": "viz"}, cfg.OTel.Headers)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_DiscoversStandardKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-key")
	path := writeFile(t, "llm:\n  gemini:\n    model: gemini-pro\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "g-key", cfg.LLM.Gemini.APIKey)
	assert.Equal(t, "gemini-pro", cfg.LLM.Gemini.Model)
}

func TestLoad_ExplicitProviderSkipsDiscovery(t *testing.T) {
	clearEnv(t)
	t.Setenv("VIZLEARN_LLM_PROVIDER", "anthropic")
	t.Setenv("OPENAI_API_KEY", "o-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.False(t, cfg.LLM.HasKey())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no key without request keys", func(c *Config) { c.Server.AllowRequestKeys = false }, true},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bedrock" }, true},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"hot mcq", func(c *Config) { c.Tasks.MCQ.Temperature = 1.5 }, true},
		{"zero tokens", func(c *Config) { c.Tasks.Code.MaxTokens = 0 }, true},
		{"sample ratio", func(c *Config) { c.OTel.SampleRatio = 2 }, true},
		{"mock provider", func(c *Config) { c.LLM.Provider = "mock"; c.Server.AllowRequestKeys = false }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
