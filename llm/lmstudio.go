package llm

import "context"

// lmStudioProvider implements Provider for LM Studio.
// LM Studio exposes an OpenAI-compatible API.
type lmStudioProvider struct {
	base openAICompatClient
}

// NewLMStudio creates a provider for LM Studio.
func NewLMStudio(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:1234"
	}
	return &lmStudioProvider{base: newOpenAICompatClient(cfg)}
}

func (p *lmStudioProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.base.complete(ctx, req)
}

func (p *lmStudioProvider) CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return p.base.completeStream(ctx, req, onChunk)
}

func (p *lmStudioProvider) Name() string { return "lmstudio" }
