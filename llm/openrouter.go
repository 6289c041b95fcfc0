package llm

import "context"

// openRouterProvider implements Provider for OpenRouter.
// OpenRouter uses the OpenAI-compatible API format.
type openRouterProvider struct {
	base openAICompatClient
}

// NewOpenRouter creates a provider for OpenRouter.
func NewOpenRouter(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api"
	}
	return &openRouterProvider{base: newOpenAICompatClient(cfg)}
}

func (p *openRouterProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.base.complete(ctx, req)
}

func (p *openRouterProvider) CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return p.base.completeStream(ctx, req, onChunk)
}

func (p *openRouterProvider) Name() string { return "openrouter" }
