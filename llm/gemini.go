package llm

import "context"

// geminiProvider implements Provider for Google's Gemini API using the
// OpenAI-compatible endpoint. Gemini uses a different path prefix than
// standard OpenAI providers (no /v1).
//
// Supported models:
//
//	gemini-2.5-flash       — fast, cost-effective
//	gemini-2.5-pro         — highest capability
//	gemini-2.0-flash       — previous gen fast
//
// API key: set via config or GEMINI_API_KEY env var.
type geminiProvider struct {
	base openAICompatClient
}

// NewGemini creates a provider for Google Gemini.
func NewGemini(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &geminiProvider{base: newOpenAICompatClientPrefix(cfg, "")}
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.base.complete(ctx, req)
}

func (p *geminiProvider) CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return p.base.completeStream(ctx, req, onChunk)
}

func (p *geminiProvider) Name() string { return "gemini" }
