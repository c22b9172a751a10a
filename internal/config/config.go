// Package config loads service configuration from defaults, an optional
// YAML file and VIZLEARN_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/imagedata"
	"github.com/abhisek/vizlearn/internal/llm"
	"github.com/abhisek/vizlearn/internal/pipeline"
)

// EnvConfigPath names the variable consulted when no path is given.
const EnvConfigPath = "VIZLEARN_CONFIG"

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	LLM    llm.Config   `yaml:"llm"`
	Tasks  TasksConfig  `yaml:"tasks"`
	Image  ImageConfig  `yaml:"image"`
	Events EventsConfig `yaml:"events"`
	OTel   OTelConfig   `yaml:"otel"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`

	// Mode is the gin mode: debug, release or test.
	Mode string `yaml:"mode"`

	// MaxBodyBytes bounds inbound request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowRequestKeys lets callers supply their own API key in X-Api-Key.
	AllowRequestKeys bool `yaml:"allow_request_keys"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"` // development or production
	Level string `yaml:"level"`
}

// TasksConfig holds the per-task model settings.
type TasksConfig struct {
	Code      llm.TaskConfig `yaml:"code"`
	ImageCode llm.TaskConfig `yaml:"image_code"`
	MCQ       llm.TaskConfig `yaml:"mcq"`
}

// ByTask returns the settings keyed by task.
func (t TasksConfig) ByTask() map[content.Task]llm.TaskConfig {
	return map[content.Task]llm.TaskConfig{
		content.TaskCode:      t.Code,
		content.TaskImageCode: t.ImageCode,
		content.TaskMCQ:       t.MCQ,
	}
}

type ImageConfig struct {
	MaxBytes     int `yaml:"max_bytes"`
	MaxDimension int `yaml:"max_dimension"`
	MaxPixels    int `yaml:"max_pixels"`
}

// Options converts c for imagedata.Decode.
func (c ImageConfig) Options() imagedata.Options {
	return imagedata.Options{MaxBytes: c.MaxBytes, MaxDimension: c.MaxDimension, MaxPixels: c.MaxPixels}
}

type EventsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path defaults to store.DefaultDBPath.
	Path string `yaml:"path"`
}

type OTelConfig struct {
	Enabled     bool              `yaml:"enabled"`
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	tasks := pipeline.DefaultTaskConfigs()
	return &Config{
		Server: ServerConfig{
			Addr:              ":3000",
			Mode:              "release",
			MaxBodyBytes:      8 << 20,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			AllowedOrigins:    []string{"*"},
			AllowRequestKeys:  true,
		},
		Log: LogConfig{Mode: "production", Level: "info"},
		LLM: llm.DefaultConfig(),
		Tasks: TasksConfig{
			Code:      tasks[content.TaskCode],
			ImageCode: tasks[content.TaskImageCode],
			MCQ:       tasks[content.TaskMCQ],
		},
		Image: ImageConfig{
			MaxBytes:     imagedata.DefaultMaxBytes,
			MaxDimension: imagedata.DefaultMaxDimension,
			MaxPixels:    imagedata.DefaultMaxPixels,
		},
		Events: EventsConfig{Enabled: true},
		OTel:   OTelConfig{ServiceName: "vizlearn", Environment: "development", SampleRatio: 0.1},
	}
}

// Load reads path (or $VIZLEARN_CONFIG when path is empty) over the
// defaults and then applies environment overrides. A missing file is only
// an error when a path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
		explicit = path != ""
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(cfg)

	if !cfg.LLM.HasKey() && os.Getenv("VIZLEARN_LLM_PROVIDER") == "" {
		if found, ok := llm.DiscoverConfig(); ok {
			adoptKey(&cfg.LLM, found)
		}
	}

	return cfg, nil
}

// adoptKey switches dst to the provider found in src and copies its key,
// keeping any model or base URL settings already in dst.
func adoptKey(dst *llm.Config, src llm.Config) {
	dst.Provider = src.Provider
	switch src.Provider {
	case "anthropic":
		dst.Anthropic.APIKey = src.Anthropic.APIKey
	case "openai":
		dst.OpenAI.APIKey = src.OpenAI.APIKey
	case "gemini":
		dst.Gemini.APIKey = src.Gemini.APIKey
	case "openrouter":
		dst.OpenRouter.APIKey = src.OpenRouter.APIKey
	}
}

func applyEnv(cfg *Config) {
	llm.ApplyEnv(&cfg.LLM)

	if v := getEnv("VIZLEARN_ADDR"); v != "" {
		cfg.Server.Addr = v
	} else if port := getEnv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if v := getEnv("GIN_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := getEnv("VIZLEARN_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := getBool("VIZLEARN_ALLOW_REQUEST_KEYS"); ok {
		cfg.Server.AllowRequestKeys = v
	}

	if v := getEnv("VIZLEARN_LOG_MODE"); v != "" {
		cfg.Log.Mode = v
	}
	if v := getEnv("VIZLEARN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := getEnv("VIZLEARN_EVENTS_DB"); v != "" {
		cfg.Events.Path = v
	}
	if v, ok := getBool("VIZLEARN_EVENTS_ENABLED"); ok {
		cfg.Events.Enabled = v
	}

	if v := getEnv("VIZLEARN_IMAGE_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Image.MaxBytes = n
		}
	}

	if v, ok := getBool("OTEL_ENABLED"); ok {
		cfg.OTel.Enabled = v
	}
	if v := getEnv("OTEL_SERVICE_NAME"); v != "" {
		cfg.OTel.ServiceName = v
	}
	if v := getEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTel.Endpoint = v
	}
	if v, ok := getBool("OTEL_EXPORTER_OTLP_INSECURE"); ok {
		cfg.OTel.Insecure = v
	}
	if v := getEnv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTel.Headers = parseHeaders(v)
	}
	if v := getEnv("OTEL_SAMPLER_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.OTel.SampleRatio = f
		}
	}
}

// Validate checks the configuration. Without a configured key the service
// can still run when callers are allowed to bring their own.
func (c *Config) Validate() error {
	if c.LLM.HasKey() || !c.Server.AllowRequestKeys {
		if err := c.LLM.Validate(); err != nil {
			return err
		}
	} else if !llm.KnownProvider(c.LLM.Provider) {
		return fmt.Errorf("unknown LLM provider: %q", c.LLM.Provider)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server max_body_bytes must be positive")
	}
	if c.Image.MaxBytes <= 0 {
		return fmt.Errorf("image max_bytes must be positive")
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		return fmt.Errorf("otel sample_ratio must be within [0, 1]")
	}
	for name, tc := range map[string]llm.TaskConfig{"code": c.Tasks.Code, "image_code": c.Tasks.ImageCode, "mcq": c.Tasks.MCQ} {
		if tc.Temperature < 0 || tc.Temperature > 1 {
			return fmt.Errorf("tasks.%s.temperature must be within [0, 1]", name)
		}
		if tc.MaxTokens <= 0 {
			return fmt.Errorf("tasks.%s.max_tokens must be positive", name)
		}
	}
	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getBool(key string) (bool, bool) {
	switch strings.ToLower(getEnv(key)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range splitList(raw) {
		key, val, ok := strings.Cut(part, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			continue
		}
		headers[key] = val
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
