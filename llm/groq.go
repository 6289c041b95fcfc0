package llm

import "context"

// groqProvider implements Provider for Groq's inference API.
// Groq uses the OpenAI-compatible API format and provides extremely
// fast inference for open-source models (Llama, Mixtral, Gemma, etc.).
//
// API key: set via config or GROQ_API_KEY env var.
type groqProvider struct {
	base openAICompatClient
}

// NewGroq creates a provider for Groq.
func NewGroq(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	return &groqProvider{base: newOpenAICompatClient(cfg)}
}

func (p *groqProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.base.complete(ctx, req)
}

func (p *groqProvider) CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return p.base.completeStream(ctx, req, onChunk)
}

func (p *groqProvider) Name() string { return "groq" }
