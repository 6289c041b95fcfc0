package llm

import "context"

// openAIProvider implements Provider for the OpenAI API.
//
// API key: set via config, OPENAI_API_KEY env var, or LAWNOTE_API_KEY.
type openAIProvider struct {
	base openAICompatClient
}

// NewOpenAI creates a provider for OpenAI.
func NewOpenAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &openAIProvider{base: newOpenAICompatClient(cfg)}
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.base.complete(ctx, req)
}

func (p *openAIProvider) CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return p.base.completeStream(ctx, req, onChunk)
}

func (p *openAIProvider) Name() string { return "openai" }
