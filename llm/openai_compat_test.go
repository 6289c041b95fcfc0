package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newMockCompletionServer returns a server that replies with a fixed
// completion text and counts calls.
func newMockCompletionServer(t *testing.T, content string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"total_tokens": 42},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newMockStatusServer(t *testing.T, status int, body string, headers map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(baseURL string) openAICompatClient {
	return newOpenAICompatClient(Config{Provider: "custom", Model: "test-model", BaseURL: baseURL, APIKey: "key"})
}

func TestCompleteParsesResponse(t *testing.T) {
	srv, calls := newMockCompletionServer(t, "the holding was affirmed")
	c := testClient(srv.URL)

	resp, err := c.complete(context.Background(), Request{Prompt: "summarize"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "the holding was affirmed" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d, want 42", resp.TokensUsed)
	}
	if resp.Model != "test-model" {
		t.Errorf("Model = %q", resp.Model)
	}
	if *calls != 1 {
		t.Errorf("server called %d times, want 1", *calls)
	}
}

func TestCompleteSendsJSONMode(t *testing.T) {
	var gotBody chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "{}"}}},
		})
	}))
	defer srv.Close()
	c := testClient(srv.URL)

	_, err := c.complete(context.Background(), Request{Prompt: "p", Temperature: 0.3, MaxOutputTokens: 100, JSONMode: true})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotBody.ResponseFormat == nil || gotBody.ResponseFormat.Type != "json_object" {
		t.Error("JSONMode should set response_format json_object")
	}
	if gotBody.Temperature != 0.3 || gotBody.MaxTokens != 100 {
		t.Errorf("request body = temp %v maxTokens %d", gotBody.Temperature, gotBody.MaxTokens)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" || gotBody.Messages[0].Content != "p" {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
}

func TestCompleteClassifiesStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		headers map[string]string
		want    FaultKind
	}{
		{"unauthorized", 401, `{"error":{"message":"bad key"}}`, nil, FaultAuth},
		{"forbidden", 403, "nope", nil, FaultAuth},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, map[string]string{"Retry-After": "7"}, FaultRateLimited},
		{"server error", 500, "internal", nil, FaultServer},
		{"overloaded", 529, "overloaded", nil, FaultServer},
		{"safety block", 400, `{"error":{"message":"request blocked by safety filters"}}`, nil, FaultSafety},
		{"other 4xx", 404, "not found", nil, FaultUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newMockStatusServer(t, tt.status, tt.body, tt.headers)
			c := testClient(srv.URL)

			_, err := c.complete(context.Background(), Request{Prompt: "p"})
			var f *Fault
			if !errors.As(err, &f) {
				t.Fatalf("error is %T, want *Fault", err)
			}
			if f.Kind != tt.want {
				t.Errorf("kind = %s, want %s", f.Kind, tt.want)
			}
			if f.Status != tt.status {
				t.Errorf("status = %d, want %d", f.Status, tt.status)
			}
			if tt.name == "rate limited" && f.RetryAfter != 7*time.Second {
				t.Errorf("RetryAfter = %v, want 7s", f.RetryAfter)
			}
		})
	}
}

func TestCompleteSafetyFinishReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": ""}, "finish_reason": "content_filter"},
			},
		})
	}))
	defer srv.Close()
	c := testClient(srv.URL)

	_, err := c.complete(context.Background(), Request{Prompt: "p"})
	if KindOf(err) != FaultSafety {
		t.Fatalf("kind = %s, want safety_blocked", KindOf(err))
	}
}

func TestCompleteNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed before use

	c := testClient(srv.URL)
	_, err := c.complete(context.Background(), Request{Prompt: "p"})
	if KindOf(err) != FaultNetwork {
		t.Fatalf("kind = %s, want network_error", KindOf(err))
	}
}

func sseHandler(frames []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}
}

func TestCompleteStreamAccumulates(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"model":"test-model","choices":[{"delta":{"content":"The court "}}]}`,
		`{"choices":[{"delta":{"content":"held that"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"total_tokens":17}}`,
		`[DONE]`,
	}))
	defer srv.Close()
	c := testClient(srv.URL)

	var deltas []string
	var accs []string
	resp, err := c.completeStream(context.Background(), Request{Prompt: "p"}, func(delta, acc string) {
		deltas = append(deltas, delta)
		accs = append(accs, acc)
	})
	if err != nil {
		t.Fatalf("completeStream: %v", err)
	}
	if resp.Text != "The court held that" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.TokensUsed != 17 {
		t.Errorf("TokensUsed = %d, want 17", resp.TokensUsed)
	}
	if len(deltas) != 2 {
		t.Fatalf("got %d chunks, want 2", len(deltas))
	}
	if accs[1] != "The court held that" {
		t.Errorf("accumulated[1] = %q", accs[1])
	}
}

func TestCompleteStreamSafetyStop(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"choices":[{"delta":{"content":"partial"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"content_filter"}]}`,
		`[DONE]`,
	}))
	defer srv.Close()
	c := testClient(srv.URL)

	_, err := c.completeStream(context.Background(), Request{Prompt: "p"}, nil)
	if KindOf(err) != FaultSafety {
		t.Fatalf("kind = %s, want safety_blocked", KindOf(err))
	}
}

func TestCompleteStreamAbortMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		flusher.Flush()
		<-release // hold the stream open until the client has cancelled
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"second\"}}]}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()
	defer close(release)
	c := testClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	_, err := c.completeStream(ctx, Request{Prompt: "p"}, func(delta, acc string) {
		seen++
		cancel()
	})
	if KindOf(err) != FaultAborted {
		t.Fatalf("kind = %s, want aborted (err=%v)", KindOf(err), err)
	}
	if seen != 1 {
		t.Errorf("chunks before abort = %d, want 1", seen)
	}
}

func TestCompleteStreamHTTPError(t *testing.T) {
	srv := newMockStatusServer(t, 429, `{"error":{"message":"slow down"}}`, map[string]string{"Retry-After": "3"})
	c := testClient(srv.URL)

	_, err := c.completeStream(context.Background(), Request{Prompt: "p"}, nil)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("error is %T, want *Fault", err)
	}
	if f.Kind != FaultRateLimited || f.RetryAfter != 3*time.Second {
		t.Errorf("fault = %s retryAfter %v", f.Kind, f.RetryAfter)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"structured", `{"error":{"message":"quota exceeded"}}`, "quota exceeded"},
		{"plain", "  service unavailable  ", "service unavailable"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apiErrorMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("apiErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
