package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Yan-sudo/law-note-restructurer/llm"
)

// ErrNotJSON is returned when a response contains no JSON object at all, so
// repair is not even attempted.
var ErrNotJSON = errors.New("extract: response is not structured json")

const (
	defaultTemperature     = 0.3
	defaultMaxOutputTokens = 8192
)

// Options adjust a single extraction call.
type Options struct {
	// OnChunk switches the call to streaming mode; it receives every
	// fragment as it arrives.
	OnChunk llm.ChunkHandler

	// SourceDocuments is stamped into the batch metadata.
	SourceDocuments []string
}

// Outcome records how one extraction round went, for logging and the
// extraction audit log.
type Outcome struct {
	RepairStage int
	RawChars    int
	TokensUsed  int
	Model       string
	Elapsed     time.Duration
}

// Extractor chains the reliability pipeline for one completion call:
// submit, isolate the candidate, repair, normalize, decode, validate.
type Extractor struct {
	orch        *llm.Orchestrator
	model       string
	temperature float64
	maxTokens   int
	language    string
}

// NewExtractor creates an extractor on top of an orchestrator. model is the
// identifier reported in batch metadata when the service does not name one;
// language is the nameLocalized hint for the prompts.
func NewExtractor(orch *llm.Orchestrator, model string, temperature float64, maxOutputTokens int, language string) *Extractor {
	if temperature < 0 {
		temperature = defaultTemperature
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	return &Extractor{
		orch:        orch,
		model:       model,
		temperature: temperature,
		maxTokens:   maxOutputTokens,
		language:    language,
	}
}

// ExtractBatch extracts all four entity kinds from a block of notes.
// Structural failures carry a bounded preview of the offending raw text so
// an operator can judge whether to retry.
func (e *Extractor) ExtractBatch(ctx context.Context, notes string, opts Options) (*ExtractionBatch, *Outcome, error) {
	resp, out, err := e.complete(ctx, buildBatchPrompt(notes, e.language), opts.OnChunk)
	if err != nil {
		return nil, out, err
	}

	v, err := repairParse(resp.Text, out)
	if err != nil {
		return nil, out, err
	}
	obj, err := NormalizeBatch(v)
	if err != nil {
		return nil, out, fmt.Errorf("%w; raw: %s", err, Preview(resp.Text, rawPreviewLen))
	}
	batch, err := decodeBatch(obj)
	if err != nil {
		return nil, out, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	e.stampMetadata(batch, resp, opts.SourceDocuments)
	if err := ValidateBatch(batch); err != nil {
		return nil, out, fmt.Errorf("%w; raw: %s", err, Preview(resp.Text, rawPreviewLen))
	}

	slog.Info("extract: batch extracted",
		"concepts", len(batch.Concepts), "cases", len(batch.Cases),
		"principles", len(batch.Principles), "rules", len(batch.Rules),
		"repair_stage", out.RepairStage, "tokens", out.TokensUsed,
		"elapsed", out.Elapsed.Round(time.Millisecond))
	return batch, out, nil
}

// ExtractMatrix relates a batch's cases to its concepts. A batch with no
// cases or no concepts yields an empty matrix without a service call.
func (e *Extractor) ExtractMatrix(ctx context.Context, batch *ExtractionBatch, opts Options) (*RelationshipMatrix, *Outcome, error) {
	if batch == nil || len(batch.Cases) == 0 || len(batch.Concepts) == 0 {
		return &RelationshipMatrix{
			Entries:         []RelationshipEntry{},
			CasesInOrder:    []string{},
			ConceptsInOrder: []string{},
		}, &Outcome{Model: e.model}, nil
	}

	resp, out, err := e.complete(ctx, buildMatrixPrompt(batch), opts.OnChunk)
	if err != nil {
		return nil, out, err
	}

	v, err := repairParse(resp.Text, out)
	if err != nil {
		return nil, out, err
	}
	obj, err := NormalizeMatrix(v)
	if err != nil {
		return nil, out, fmt.Errorf("%w; raw: %s", err, Preview(resp.Text, rawPreviewLen))
	}
	matrix, err := decodeMatrix(obj)
	if err != nil {
		return nil, out, fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
	}
	if err := ValidateMatrix(matrix); err != nil {
		return nil, out, fmt.Errorf("%w; raw: %s", err, Preview(resp.Text, rawPreviewLen))
	}

	slog.Info("extract: matrix extracted", "entries", len(matrix.Entries),
		"repair_stage", out.RepairStage, "tokens", out.TokensUsed,
		"elapsed", out.Elapsed.Round(time.Millisecond))
	return matrix, out, nil
}

func (e *Extractor) complete(ctx context.Context, prompt string, onChunk llm.ChunkHandler) (*llm.Response, *Outcome, error) {
	start := time.Now()
	req := llm.Request{
		Prompt:          prompt,
		Temperature:     e.temperature,
		MaxOutputTokens: e.maxTokens,
		JSONMode:        true,
	}

	var resp *llm.Response
	var err error
	if onChunk != nil {
		resp, err = e.orch.SubmitStream(ctx, req, onChunk)
	} else {
		resp, err = e.orch.Submit(ctx, req)
	}
	if err != nil {
		return nil, &Outcome{Model: e.model, Elapsed: time.Since(start)}, err
	}

	out := &Outcome{
		RawChars:   len(resp.Text),
		TokensUsed: resp.TokensUsed,
		Model:      e.model,
		Elapsed:    time.Since(start),
	}
	if resp.Model != "" {
		out.Model = resp.Model
	}
	return resp, out, nil
}

// repairParse isolates the JSON candidate and runs it through the repair
// ladder, recording the stage reached.
func repairParse(raw string, out *Outcome) (any, error) {
	candidate := Candidate(raw)
	if !strings.Contains(candidate, "{") {
		return nil, fmt.Errorf("%w: %s", ErrNotJSON, Preview(raw, rawPreviewLen))
	}

	v, stage, err := Repair(candidate)
	out.RepairStage = stage
	if err != nil {
		return nil, fmt.Errorf("%w; raw: %s", err, Preview(raw, rawPreviewLen))
	}
	if stage > 0 {
		slog.Warn("extract: response repaired", "stage", stage, "raw_chars", len(raw))
	}
	return v, nil
}

func (e *Extractor) stampMetadata(b *ExtractionBatch, resp *llm.Response, docs []string) {
	b.Metadata.ExtractedAt = time.Now().UTC()
	if resp.Model != "" {
		b.Metadata.ModelID = resp.Model
	} else if e.model != "" {
		b.Metadata.ModelID = e.model
	}
	if resp.TokensUsed > 0 {
		b.Metadata.TokensUsed = resp.TokensUsed
	}
	for _, d := range docs {
		if !containsString(b.Metadata.SourceDocuments, d) {
			b.Metadata.SourceDocuments = append(b.Metadata.SourceDocuments, d)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func decodeBatch(obj map[string]any) (*ExtractionBatch, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var b ExtractionBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func decodeMatrix(obj map[string]any) (*RelationshipMatrix, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var m RelationshipMatrix
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
