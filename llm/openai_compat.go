package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// openAICompatClient is the shared base for all chat-completions providers.
// It performs exactly one HTTP request per call and reports failures as
// classified *Fault values; retrying is the orchestrator's job.
type openAICompatClient struct {
	cfg        Config
	client     *http.Client
	pathPrefix string // API path prefix, defaults to "/v1"
}

func newOpenAICompatClient(cfg Config) openAICompatClient {
	return newOpenAICompatClientPrefix(cfg, "/v1")
}

func newOpenAICompatClientPrefix(cfg Config, prefix string) openAICompatClient {
	// Timeout for individual HTTP requests. Kept generous for local providers
	// (Ollama, LM Studio) which may load models on first request, but
	// reasonable enough to avoid multi-minute hangs on stalled connections.
	timeout := 120 * time.Second
	return openAICompatClient{
		cfg:        cfg,
		pathPrefix: prefix,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewOpenAICompat creates a generic OpenAI-compatible provider.
func NewOpenAICompat(cfg Config) Provider {
	return &openAICompatProvider{base: newOpenAICompatClient(cfg)}
}

type openAICompatProvider struct {
	base openAICompatClient
}

func (p *openAICompatProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return p.base.complete(ctx, req)
}

func (p *openAICompatProvider) CompleteStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	return p.base.completeStream(ctx, req, onChunk)
}

func (p *openAICompatProvider) Name() string { return "custom" }

// --- shared implementation ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// streamEvent is one SSE data frame of a streamed completion.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *openAICompatClient) completionBody(req Request, stream bool) chatCompletionRequest {
	body := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
		Stream:      stream,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return body
}

func (c *openAICompatClient) complete(ctx context.Context, req Request) (*Response, error) {
	respBody, err := c.doPost(ctx, c.completionBody(req, false))
	if err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &Fault{Kind: FaultUnknown, Message: fmt.Sprintf("decoding completion response: %v", err)}
	}

	if len(resp.Choices) == 0 {
		return nil, &Fault{Kind: FaultUnknown, Message: "no choices in response"}
	}

	choice := resp.Choices[0]
	if safetyFinish(choice.FinishReason) {
		return nil, &Fault{Kind: FaultSafety, Message: "completion stopped by content filter: " + choice.FinishReason}
	}

	return &Response{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
		TokensUsed:   resp.Usage.TotalTokens,
	}, nil
}

func (c *openAICompatClient) completeStream(ctx context.Context, req Request, onChunk ChunkHandler) (*Response, error) {
	resp, err := c.startPost(ctx, c.completionBody(req, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, classifyHTTP(resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}

	var acc strings.Builder
	out := Response{}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		// Cancellation is polled once per received frame; an aborted call
		// never yields a partial success.
		if ctx.Err() != nil {
			return nil, abortedFault(ctx.Err())
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// Tolerate malformed keep-alive frames.
			continue
		}
		if ev.Model != "" {
			out.Model = ev.Model
		}
		if ev.Usage != nil {
			out.TokensUsed = ev.Usage.TotalTokens
		}
		if len(ev.Choices) == 0 {
			continue
		}
		choice := ev.Choices[0]
		if choice.FinishReason != "" {
			out.FinishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			acc.WriteString(choice.Delta.Content)
			if onChunk != nil {
				onChunk(choice.Delta.Content, acc.String())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, abortedFault(ctx.Err())
		}
		return nil, &Fault{Kind: FaultNetwork, Message: fmt.Sprintf("reading stream: %v", err)}
	}

	if safetyFinish(out.FinishReason) {
		return nil, &Fault{Kind: FaultSafety, Message: "completion stopped by content filter: " + out.FinishReason}
	}

	out.Text = acc.String()
	return &out, nil
}

// doPost sends one request and returns the response body, or a classified
// fault.
func (c *openAICompatClient) doPost(ctx context.Context, body chatCompletionRequest) ([]byte, error) {
	resp, err := c.startPost(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, abortedFault(ctx.Err())
		}
		return nil, &Fault{Kind: FaultNetwork, Message: fmt.Sprintf("reading response body: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP(resp.StatusCode, respBody, resp.Header.Get("Retry-After"))
	}
	return respBody, nil
}

func (c *openAICompatClient) startPost(ctx context.Context, body chatCompletionRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Fault{Kind: FaultUnknown, Message: fmt.Sprintf("encoding request: %v", err)}
	}

	url := c.cfg.BaseURL + c.pathPrefix + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, &Fault{Kind: FaultUnknown, Message: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, abortedFault(ctx.Err())
		}
		return nil, &Fault{Kind: FaultNetwork, Message: fmt.Sprintf("request to %s failed: %v", url, err)}
	}
	return resp, nil
}

// classifyHTTP maps a non-200 status to a fault.
func classifyHTTP(status int, body []byte, retryAfter string) *Fault {
	f := &Fault{Status: status, Message: apiErrorMessage(body)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		f.Kind = FaultAuth
	case status == http.StatusTooManyRequests:
		f.Kind = FaultRateLimited
		f.RetryAfter = parseRetryAfter(retryAfter)
	case status >= 500:
		f.Kind = FaultServer
		f.RetryAfter = parseRetryAfter(retryAfter)
	case safetyMessage(f.Message):
		f.Kind = FaultSafety
	default:
		f.Kind = FaultUnknown
	}
	return f
}

// apiErrorMessage pulls the error message out of a JSON error body, falling
// back to a bounded prefix of the raw body.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// safetyFinish reports whether a finish reason indicates a content-filter
// stop. Gemini's OpenAI-compatible endpoint reports "content_filter";
// others use close variants.
func safetyFinish(reason string) bool {
	switch strings.ToLower(reason) {
	case "content_filter", "safety", "prohibited_content", "blocklist":
		return true
	}
	return false
}

// safetyMessage detects refusal markers in a 4xx error body.
func safetyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "safety") ||
		strings.Contains(lower, "content_filter") ||
		strings.Contains(lower, "blocked")
}
