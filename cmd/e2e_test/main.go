// Command e2e_test smoke-checks a running lawnote server: health, a tiny
// inline extraction, and a corpus fetch. It needs a live completion
// provider behind the server, so it is a manual check, not a go test.
//
//	LAWNOTE_E2E_BASE=http://localhost:8080 go run ./cmd/e2e_test
//
// Set LAWNOTE_E2E_TOKEN when the server runs with a bearer token.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const sampleNotes = `Donoghue v Stevenson [1932] AC 562. A consumer fell ill
after drinking ginger beer that contained a decomposed snail. The House of
Lords held that manufacturers owe a duty of care to the ultimate consumer.
The neighbour principle founded the modern law of negligence.`

var (
	base   string
	token  string
	client = &http.Client{Timeout: 5 * time.Minute}
	failed bool
)

func main() {
	base = strings.TrimRight(os.Getenv("LAWNOTE_E2E_BASE"), "/")
	if base == "" {
		fmt.Fprintln(os.Stderr, "LAWNOTE_E2E_BASE not set (e.g. http://localhost:8080)")
		os.Exit(1)
	}
	token = os.Getenv("LAWNOTE_E2E_TOKEN")

	checkHealth()
	extracted := checkExtract()
	if extracted != nil {
		checkMerge(extracted)
		checkCorpus()
	}

	if failed {
		fmt.Fprintln(os.Stderr, "\nFAIL")
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "\nPASS")
}

func checkHealth() {
	var out struct {
		Status string `json:"status"`
	}
	if err := call("GET", "/health", nil, &out); err != nil {
		fail("health", err)
		os.Exit(1)
	}
	if out.Status != "ok" {
		fail("health", fmt.Errorf("status = %q", out.Status))
		os.Exit(1)
	}
	pass("health")
}

func checkExtract() json.RawMessage {
	req := map[string]any{"text": sampleNotes, "auto_retry": 1}
	var out struct {
		Batch   json.RawMessage `json:"batch"`
		Outcome struct {
			Model      string `json:"model"`
			TokensUsed int    `json:"tokensUsed"`
		} `json:"outcome"`
	}
	if err := call("POST", "/extract", req, &out); err != nil {
		fail("extract", err)
		return nil
	}

	var batch struct {
		Concepts []any `json:"concepts"`
		Cases    []any `json:"cases"`
	}
	if err := json.Unmarshal(out.Batch, &batch); err != nil {
		fail("extract", fmt.Errorf("decoding batch: %w", err))
		return nil
	}
	if len(batch.Concepts) == 0 && len(batch.Cases) == 0 {
		fail("extract", fmt.Errorf("no entities extracted"))
		return nil
	}
	pass(fmt.Sprintf("extract (%d concepts, %d cases, %d tokens, model %s)",
		len(batch.Concepts), len(batch.Cases), out.Outcome.TokensUsed, out.Outcome.Model))
	return out.Batch
}

func checkMerge(batch json.RawMessage) {
	req := map[string]any{"batch": batch}
	var out struct {
		Batch json.RawMessage `json:"batch"`
	}
	if err := call("POST", "/merge", req, &out); err != nil {
		fail("merge", err)
		return
	}
	pass("merge")
}

func checkCorpus() {
	var out struct {
		Batch struct {
			Concepts []any `json:"concepts"`
			Cases    []any `json:"cases"`
		} `json:"batch"`
	}
	if err := call("GET", "/corpus", nil, &out); err != nil {
		fail("corpus", err)
		return
	}
	if len(out.Batch.Concepts) == 0 && len(out.Batch.Cases) == 0 {
		fail("corpus", fmt.Errorf("stored corpus is empty"))
		return
	}
	pass(fmt.Sprintf("corpus (%d concepts, %d cases)",
		len(out.Batch.Concepts), len(out.Batch.Cases)))
}

func call(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, truncate(string(data), 200))
	}
	return json.Unmarshal(data, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func pass(name string) {
	fmt.Fprintf(os.Stderr, "ok   %s\n", name)
}

func fail(name string, err error) {
	failed = true
	fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", name, err)
}
