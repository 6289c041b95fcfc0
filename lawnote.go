package lawnote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Yan-sudo/law-note-restructurer/export"
	"github.com/Yan-sudo/law-note-restructurer/extract"
	"github.com/Yan-sudo/law-note-restructurer/llm"
	"github.com/Yan-sudo/law-note-restructurer/merge"
	"github.com/Yan-sudo/law-note-restructurer/source"
	"github.com/Yan-sudo/law-note-restructurer/store"
)

// Engine is the main entry point for the note restructuring pipeline.
type Engine interface {
	// ExtractFromFiles reads note files, segments them, and extracts one
	// validated batch covering all of them. Each segment runs as its own
	// session; per-segment batches are deduplicated and folded together.
	ExtractFromFiles(ctx context.Context, paths []string, opts ...ExtractOption) (*extract.ExtractionBatch, error)

	// ExtractText extracts a validated batch from one block of note text.
	ExtractText(ctx context.Context, text string, opts ...ExtractOption) (*extract.ExtractionBatch, error)

	// BuildMatrix relates a batch's cases to its concepts.
	BuildMatrix(ctx context.Context, batch *extract.ExtractionBatch) (*extract.RelationshipMatrix, error)

	// MergeIntoCorpus folds a batch and matrix into the stored corpus and
	// persists the result, returning the merged corpus.
	MergeIntoCorpus(ctx context.Context, batch *extract.ExtractionBatch, matrix *extract.RelationshipMatrix) (*extract.ExtractionBatch, *extract.RelationshipMatrix, error)

	// Corpus returns the stored corpus.
	Corpus(ctx context.Context) (*extract.ExtractionBatch, *extract.RelationshipMatrix, error)

	// Search runs a full-text query over stored entities.
	Search(ctx context.Context, query string, limit int) ([]store.SearchHit, error)

	// RecentExtractions returns the newest extraction log records.
	RecentExtractions(ctx context.Context, n int) ([]store.ExtractionRecord, error)

	// ExportXLSX writes the stored corpus as a workbook.
	ExportXLSX(ctx context.Context, path string) error

	// ExportJSON writes the stored corpus as an indented JSON document.
	ExportJSON(ctx context.Context, path string) error

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// ExtractOption adjusts a single extraction run.
type ExtractOption func(*extractOptions)

type extractOptions struct {
	onChunk      llm.ChunkHandler
	segmentChars int
	autoRetry    int
	noDedup      bool
}

// WithStreamHandler streams raw completion fragments to f as they arrive.
func WithStreamHandler(f llm.ChunkHandler) ExtractOption {
	return func(o *extractOptions) { o.onChunk = f }
}

// WithSegmentChars overrides the configured segment size for this run.
func WithSegmentChars(n int) ExtractOption {
	return func(o *extractOptions) { o.segmentChars = n }
}

// WithAutoRetry re-runs a failed session up to n extra rounds before giving
// up, skipping faults that cannot succeed on retry.
func WithAutoRetry(n int) ExtractOption {
	return func(o *extractOptions) { o.autoRetry = n }
}

// WithoutDedup skips in-batch entity deduplication.
func WithoutDedup() ExtractOption {
	return func(o *extractOptions) { o.noDedup = true }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg     Config
	store   *store.Store
	ex      *extract.Extractor
	readers *source.Registry
}

// New creates a law note engine with the given configuration.
func New(cfg Config) (Engine, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = "lawnote.db"
	}
	if cfg.SegmentChars <= 0 {
		cfg.SegmentChars = source.DefaultSegmentChars
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	provider, err := llm.NewProvider(llm.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating completion provider: %w", err)
	}

	var orchOpts []llm.OrchestratorOption
	if cfg.MaxAttempts > 0 {
		orchOpts = append(orchOpts, llm.WithMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.MinRequestIntervalMS > 0 {
		interval := time.Duration(cfg.MinRequestIntervalMS) * time.Millisecond
		orchOpts = append(orchOpts, llm.WithThrottle(llm.NewThrottle(interval)))
	}
	orch := llm.NewOrchestrator(provider, orchOpts...)

	return &engine{
		cfg:     cfg,
		store:   s,
		ex:      extract.NewExtractor(orch, cfg.Model, cfg.Temperature, cfg.MaxOutputTokens, cfg.Language),
		readers: source.NewRegistry(),
	}, nil
}

// ExtractFromFiles runs the full read, segment, extract, fold pipeline.
func (e *engine) ExtractFromFiles(ctx context.Context, paths []string, opts ...ExtractOption) (*extract.ExtractionBatch, error) {
	if len(paths) == 0 {
		return nil, ErrNoSourceDocuments
	}
	options := e.extractOptions(opts)

	var merged *extract.ExtractionBatch
	var sources []string
	for _, path := range paths {
		doc, err := e.readers.ReadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		segments := source.SegmentForExtraction(doc, options.segmentChars)
		name := filepath.Base(path)
		if len(segments) == 0 {
			slog.Warn("lawnote: note file has no extractable text", "path", path)
			continue
		}
		sources = append(sources, name)

		slog.Info("lawnote: extracting file",
			"file", name, "format", doc.Format, "segments", len(segments))
		for i, seg := range segments {
			batch, err := e.extractSegment(ctx, seg, name, options)
			if err != nil {
				return nil, fmt.Errorf("extracting %s segment %d/%d: %w", name, i+1, len(segments), err)
			}
			merged = merge.Merge(merged, batch)
		}
	}
	if merged == nil {
		return nil, ErrNoSourceDocuments
	}

	merged.Metadata.SourceDocuments = sources
	slog.Info("lawnote: extraction complete",
		"files", len(sources),
		"concepts", len(merged.Concepts), "cases", len(merged.Cases),
		"principles", len(merged.Principles), "rules", len(merged.Rules))
	return merged, nil
}

// ExtractText extracts from inline note text, segmenting it when it exceeds
// the segment budget.
func (e *engine) ExtractText(ctx context.Context, text string, opts ...ExtractOption) (*extract.ExtractionBatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyNotes
	}
	options := e.extractOptions(opts)

	doc := &source.Document{Sections: []source.Section{{Content: text}}}
	segments := source.SegmentForExtraction(doc, options.segmentChars)

	var merged *extract.ExtractionBatch
	for i, seg := range segments {
		batch, err := e.extractSegment(ctx, seg, "inline", options)
		if err != nil {
			return nil, fmt.Errorf("extracting segment %d/%d: %w", i+1, len(segments), err)
		}
		merged = merge.Merge(merged, batch)
	}
	if merged == nil {
		return nil, ErrEmptyNotes
	}
	merged.Metadata.SourceDocuments = []string{"inline"}
	return merged, nil
}

// BuildMatrix asks the completion service to relate the batch's cases to
// its concepts and deduplicates the result.
func (e *engine) BuildMatrix(ctx context.Context, batch *extract.ExtractionBatch) (*extract.RelationshipMatrix, error) {
	matrix, out, err := e.ex.ExtractMatrix(ctx, batch, extract.Options{})
	if err != nil {
		return nil, err
	}
	if out != nil && out.TokensUsed > 0 {
		slog.Debug("lawnote: matrix call", "tokens", out.TokensUsed, "repair_stage", out.RepairStage)
	}
	return merge.DedupMatrix(matrix), nil
}

// MergeIntoCorpus loads the stored corpus, folds the batch and matrix in,
// and saves the result. A missing corpus starts from the incoming batch.
func (e *engine) MergeIntoCorpus(ctx context.Context, batch *extract.ExtractionBatch, matrix *extract.RelationshipMatrix) (*extract.ExtractionBatch, *extract.RelationshipMatrix, error) {
	if batch == nil {
		return nil, nil, errors.New("lawnote: nil batch")
	}

	existing, existingMatrix, err := e.store.LoadCorpus(ctx)
	if err != nil && !errors.Is(err, store.ErrCorpusNotFound) {
		return nil, nil, fmt.Errorf("loading corpus: %w", err)
	}

	mergedBatch := merge.Merge(existing, batch)
	mergedMatrix := merge.MergeMatrix(existingMatrix, matrix)

	if err := e.store.SaveCorpus(ctx, mergedBatch, mergedMatrix); err != nil {
		return nil, nil, fmt.Errorf("saving corpus: %w", err)
	}

	slog.Info("lawnote: corpus updated",
		"concepts", len(mergedBatch.Concepts), "cases", len(mergedBatch.Cases),
		"principles", len(mergedBatch.Principles), "rules", len(mergedBatch.Rules),
		"relationships", len(mergedMatrix.Entries))
	return mergedBatch, mergedMatrix, nil
}

// Corpus returns the stored corpus.
func (e *engine) Corpus(ctx context.Context) (*extract.ExtractionBatch, *extract.RelationshipMatrix, error) {
	return e.store.LoadCorpus(ctx)
}

// Search runs a full-text query over stored entities.
func (e *engine) Search(ctx context.Context, query string, limit int) ([]store.SearchHit, error) {
	return e.store.SearchEntities(ctx, query, limit)
}

// RecentExtractions returns the newest extraction log records.
func (e *engine) RecentExtractions(ctx context.Context, n int) ([]store.ExtractionRecord, error) {
	return e.store.RecentExtractions(ctx, n)
}

// ExportXLSX writes the stored corpus as a workbook.
func (e *engine) ExportXLSX(ctx context.Context, path string) error {
	batch, matrix, err := e.store.LoadCorpus(ctx)
	if err != nil {
		return err
	}
	return export.WriteXLSX(path, batch, matrix)
}

// ExportJSON writes the stored corpus as an indented JSON document.
func (e *engine) ExportJSON(ctx context.Context, path string) error {
	batch, matrix, err := e.store.LoadCorpus(ctx)
	if err != nil {
		return err
	}
	return export.WriteJSON(path, batch, matrix)
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}

func (e *engine) extractOptions(opts []ExtractOption) *extractOptions {
	options := &extractOptions{segmentChars: e.cfg.SegmentChars}
	for _, o := range opts {
		o(options)
	}
	if options.segmentChars <= 0 {
		options.segmentChars = source.DefaultSegmentChars
	}
	return options
}

// extractSegment runs one session over one segment of note text, retrying
// failed rounds up to the auto-retry budget, and logs every round.
func (e *engine) extractSegment(ctx context.Context, text, sourceName string, options *extractOptions) (*extract.ExtractionBatch, error) {
	sess := extract.NewSession(e.ex, text, extract.Options{
		OnChunk:         options.onChunk,
		SourceDocuments: []string{sourceName},
	})

	err := sess.Start(ctx)
	for retry := 0; err != nil && retry < options.autoRetry && retryable(err); retry++ {
		slog.Warn("lawnote: extraction round failed, retrying",
			"source", sourceName, "round", retry+2, "error", err)
		err = sess.Retry(ctx)
	}
	e.logRounds(ctx, sess, sourceName)
	if err != nil {
		return nil, err
	}

	batch, err := sess.Accept()
	if err != nil {
		return nil, err
	}
	if !options.noDedup {
		batch = merge.Dedup(batch)
	}
	return batch, nil
}

// retryable reports whether another session round could plausibly succeed.
// Structural failures are retryable because each round samples a fresh
// completion; auth, safety, and cancellation faults are final.
func retryable(err error) bool {
	return llm.KindOf(err).Retryable()
}

// logRounds writes one extraction log record per session round.
func (e *engine) logRounds(ctx context.Context, sess *extract.Session, sourceName string) {
	for _, round := range sess.Rounds() {
		rec := store.ExtractionRecord{
			SessionID: sess.ID(),
			Source:    sourceName,
			Status:    "validated",
		}
		if round.Err != nil {
			rec.Status = "failed"
			rec.Error = round.Err.Error()
		}
		if round.Outcome != nil {
			rec.Model = round.Outcome.Model
			rec.RepairStage = round.Outcome.RepairStage
			rec.TokensUsed = round.Outcome.TokensUsed
		}
		if err := e.store.LogExtraction(ctx, rec); err != nil {
			slog.Warn("lawnote: writing extraction log failed",
				"session", sess.ID(), "error", err)
		}
	}
}
