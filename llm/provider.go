package llm

import (
	"context"
	"fmt"
)

// Provider is the interface to a text-completion service.
type Provider interface {
	// Complete sends a single completion request and returns the full text.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteStream sends a completion request in streaming mode, invoking
	// onChunk for every received fragment. The returned Response carries the
	// full accumulated text.
	CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error)

	// Name identifies the provider for logging.
	Name() string
}

// Request is one logical completion request.
type Request struct {
	Prompt          string  `json:"prompt"`
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	// JSONMode asks the service to constrain output to a JSON object.
	JSONMode bool `json:"json_mode,omitempty"`
}

// Response is the result of a completion request.
type Response struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	TokensUsed   int    `json:"tokens_used"`
}

// ChunkHandler receives each streamed fragment along with the text
// accumulated so far.
type ChunkHandler func(delta, accumulated string)

// Config configures a completion provider.
type Config struct {
	Provider string `json:"provider"` // gemini, openai, openrouter, groq, ollama, lmstudio, xai, custom
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

// NewProvider creates a completion provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "openrouter":
		return NewOpenRouter(cfg), nil
	case "groq":
		return NewGroq(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "lmstudio":
		return NewLMStudio(cfg), nil
	case "xai":
		return NewXAI(cfg), nil
	case "custom":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom llm provider requires base_url")
		}
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
