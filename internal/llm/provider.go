package llm

import "context"

// Provider is the core abstraction for LLM interaction.
// One Generate call is exactly one round trip to the backend.
type Provider interface {
	// Generate sends the request and returns the first text block of the
	// reply. Failures are reported as *BackendError.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// KeyedProvider is implemented by providers that can be re-created with a
// different API key, e.g. one supplied per HTTP request.
type KeyedProvider interface {
	Provider
	WithAPIKey(key string) (Provider, error)
}

// Request describes what to send to the LLM.
type Request struct {
	// Model overrides the provider's configured model when non-empty.
	// Friendly names are resolved the same way as in the config.
	Model string

	// System is the system prompt. Optional.
	System string

	// Messages is the conversation. Content generation always sends a single
	// user message.
	Messages []Message

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Zero leaves the provider default.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string

	// Image is sent as a separate content part ahead of the text.
	Image *Image
}

// Image is an inline image attachment.
type Image struct {
	MIMEType string
	Data     []byte
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response holds the LLM's output.
type Response struct {
	// Text is the raw text of the first text block. No parsing is applied.
	Text string

	// LatencyMs is the wall time of the backend round trip.
	LatencyMs int64

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason indicates why generation stopped.
	// Normalized to: "end", "max_tokens"
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// UserMessage builds the single-message conversation used for generation.
func UserMessage(text string, img *Image) []Message {
	return []Message{{Role: RoleUser, Content: text, Image: img}}
}

func (r Request) hasImage() bool {
	for _, m := range r.Messages {
		if m.Image != nil {
			return true
		}
	}
	return false
}
