package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	lawnote "github.com/Yan-sudo/law-note-restructurer"
	"github.com/Yan-sudo/law-note-restructurer/extract"
	"github.com/Yan-sudo/law-note-restructurer/llm"
	"github.com/Yan-sudo/law-note-restructurer/store"
)

type handler struct {
	engine lawnote.Engine
}

func newHandler(e lawnote.Engine) *handler {
	return &handler{engine: e}
}

// POST /extract
// Accepts inline note text or paths to note files on the server.
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		Text      string   `json:"text,omitempty"`
		Paths     []string `json:"paths,omitempty"`
		AutoRetry int      `json:"auto_retry,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Text == "" && len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "text or paths is required")
		return
	}
	if req.Text != "" && len(req.Paths) > 0 {
		writeError(w, http.StatusBadRequest, "pass either text or paths, not both")
		return
	}
	if req.AutoRetry < 0 || req.AutoRetry > 5 {
		req.AutoRetry = 0
	}

	var opts []lawnote.ExtractOption
	if req.AutoRetry > 0 {
		opts = append(opts, lawnote.WithAutoRetry(req.AutoRetry))
	}

	var batch *extract.ExtractionBatch
	var err error
	if req.Text != "" {
		batch, err = h.engine.ExtractText(ctx, req.Text, opts...)
	} else {
		// Validate paths up front (prevents directory traversal probing).
		paths := make([]string, 0, len(req.Paths))
		for _, p := range req.Paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid path")
				return
			}
			info, err := os.Stat(abs)
			if err != nil || info.IsDir() {
				writeError(w, http.StatusBadRequest, "paths must be existing files")
				return
			}
			paths = append(paths, abs)
		}
		batch, err = h.engine.ExtractFromFiles(ctx, paths, opts...)
	}
	if err != nil {
		writeError(w, statusFor(err), "extraction failed: "+err.Error())
		slog.Error("extract error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch": batch,
		"outcome": map[string]any{
			"model":       batch.Metadata.ModelID,
			"tokensUsed":  batch.Metadata.TokensUsed,
			"extractedAt": batch.Metadata.ExtractedAt,
		},
	})
}

// POST /matrix
func (h *handler) handleMatrix(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		Batch *extract.ExtractionBatch `json:"batch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Batch == nil {
		writeError(w, http.StatusBadRequest, "batch is required")
		return
	}

	matrix, err := h.engine.BuildMatrix(ctx, req.Batch)
	if err != nil {
		writeError(w, statusFor(err), "matrix extraction failed: "+err.Error())
		slog.Error("matrix error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"matrix": matrix})
}

// POST /merge
func (h *handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	var req struct {
		Batch  *extract.ExtractionBatch    `json:"batch"`
		Matrix *extract.RelationshipMatrix `json:"matrix,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Batch == nil {
		writeError(w, http.StatusBadRequest, "batch is required")
		return
	}

	batch, matrix, err := h.engine.MergeIntoCorpus(ctx, req.Batch, req.Matrix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "merge failed")
		slog.Error("merge error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"batch": batch, "matrix": matrix})
}

// GET /corpus
func (h *handler) handleCorpus(w http.ResponseWriter, r *http.Request) {
	batch, matrix, err := h.engine.Corpus(r.Context())
	if err != nil {
		if errors.Is(err, lawnote.ErrCorpusNotFound) {
			writeError(w, http.StatusNotFound, "no corpus stored yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading corpus failed")
		slog.Error("corpus error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"batch": batch, "matrix": matrix})
}

// GET /search?q=&limit=
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	hits, err := h.engine.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		slog.Error("search error", "query", query, "error", err)
		return
	}
	if hits == nil {
		hits = []store.SearchHit{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

// GET /export/xlsx
func (h *handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	tmp, err := os.CreateTemp("", "lawnote-*.xlsx")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		slog.Error("creating temp workbook", "error", err)
		return
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := h.engine.ExportXLSX(r.Context(), path); err != nil {
		if errors.Is(err, lawnote.ErrCorpusNotFound) {
			writeError(w, http.StatusNotFound, "no corpus stored yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "export failed")
		slog.Error("export error", "error", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="lawnote-corpus.xlsx"`)
	http.ServeFile(w, r, path)
}

// GET /recent?limit=
func (h *handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	recs, err := h.engine.RecentExtractions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing extractions failed")
		slog.Error("recent error", "error", err)
		return
	}
	if recs == nil {
		recs = []store.ExtractionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"extractions": recs})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusFor maps pipeline errors to response codes: caller mistakes are 400,
// completion service faults are 502, everything else is 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lawnote.ErrEmptyNotes),
		errors.Is(err, lawnote.ErrNoSourceDocuments),
		errors.Is(err, lawnote.ErrUnsupportedFormat):
		return http.StatusBadRequest
	}
	if llm.KindOf(err) != llm.FaultUnknown {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
