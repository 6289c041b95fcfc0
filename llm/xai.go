package llm

import "context"

// xaiProvider implements Provider for xAI (Grok).
// xAI uses the OpenAI-compatible API format.
type xaiProvider struct {
	base openAICompatClient
}

// NewXAI creates a provider for xAI (Grok).
func NewXAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.x.ai"
	}
	return &xaiProvider{base: newOpenAICompatClient(cfg)}
}

func (p *xaiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.base.complete(ctx, req)
}

func (p *xaiProvider) CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return p.base.completeStream(ctx, req, onChunk)
}

func (p *xaiProvider) Name() string { return "xai" }
