package llm

import "context"

// ollamaProvider implements Provider for Ollama via its OpenAI-compatible
// endpoint. Useful for fully local extraction runs; no API key required.
type ollamaProvider struct {
	base openAICompatClient
}

// NewOllama creates a provider for Ollama.
func NewOllama(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &ollamaProvider{base: newOpenAICompatClient(cfg)}
}

func (p *ollamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.base.complete(ctx, req)
}

func (p *ollamaProvider) CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return p.base.completeStream(ctx, req, onChunk)
}

func (p *ollamaProvider) Name() string { return "ollama" }
