// Package store persists the merged legal corpus and the extraction audit
// log in a single SQLite database. The corpus is written as a transactional
// replace so readers always see a complete snapshot, and a standalone FTS5
// table over entity names and bodies backs full-text search.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Yan-sudo/law-note-restructurer/extract"
)

// ErrCorpusNotFound is returned by LoadCorpus before any corpus has been saved.
var ErrCorpusNotFound = errors.New("store: corpus not found")

// ExtractionRecord is one row of the extraction audit log.
type ExtractionRecord struct {
	ID          int64  `json:"id"`
	SessionID   string `json:"session_id"`
	Source      string `json:"source,omitempty"`
	Model       string `json:"model,omitempty"`
	RepairStage int    `json:"repair_stage"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	TokensUsed  int    `json:"tokens_used"`
	CreatedAt   string `json:"created_at"`
}

// SearchHit is one full-text match against the stored corpus.
type SearchHit struct {
	EntityID string  `json:"entity_id"`
	Kind     string  `json:"kind"`
	Name     string  `json:"name"`
	Snippet  string  `json:"snippet"`
	Score    float64 `json:"score"`
}

// CorpusStats holds row counts for the stored corpus.
type CorpusStats struct {
	Concepts      int `json:"concepts"`
	Cases         int `json:"cases"`
	Principles    int `json:"principles"`
	Rules         int `json:"rules"`
	Relationships int `json:"relationships"`
	Extractions   int `json:"extractions"`
}

// Store wraps the SQLite database for all corpus persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the FTS5 entity index.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create schema
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Corpus persistence ---

// SaveCorpus replaces the stored corpus with the given batch and matrix in a
// single transaction, then rebuilds the full-text index. A nil matrix saves
// an empty relationship table.
func (s *Store) SaveCorpus(ctx context.Context, batch *extract.ExtractionBatch, matrix *extract.RelationshipMatrix) error {
	if batch == nil {
		return errors.New("store: nil batch")
	}
	if matrix == nil {
		matrix = &extract.RelationshipMatrix{}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"concepts", "cases", "principles", "rules", "relationships", "entity_fts"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}

		for i, c := range batch.Concepts {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO concepts (id, name, name_localized, definition, category, source_refs, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, c.ID, c.Name, c.NameLocalized, c.Definition, c.Category,
				marshalStrings(c.SourceRefs), i); err != nil {
				return fmt.Errorf("inserting concept %s: %w", c.ID, err)
			}
		}

		for i, cs := range batch.Cases {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cases (id, name, citation, year, court, facts, holding, significance,
					related_concept_ids, source_refs, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, cs.ID, cs.Name, cs.Citation, cs.Year, cs.Court, cs.Facts, cs.Holding, cs.Significance,
				marshalStrings(cs.RelatedConceptIDs), marshalStrings(cs.SourceRefs), i); err != nil {
				return fmt.Errorf("inserting case %s: %w", cs.ID, err)
			}
		}

		for i, p := range batch.Principles {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO principles (id, name, name_localized, description,
					related_concept_ids, supporting_case_ids, source_refs, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, p.ID, p.Name, p.NameLocalized, p.Description,
				marshalStrings(p.RelatedConceptIDs), marshalStrings(p.SupportingCaseIDs),
				marshalStrings(p.SourceRefs), i); err != nil {
				return fmt.Errorf("inserting principle %s: %w", p.ID, err)
			}
		}

		for i, r := range batch.Rules {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rules (id, name, name_localized, statement, elements, exceptions,
					application_steps, related_concept_ids, source_refs, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, r.ID, r.Name, r.NameLocalized, r.Statement,
				marshalStrings(r.Elements), marshalStrings(r.Exceptions),
				marshalStrings(r.ApplicationSteps), marshalStrings(r.RelatedConceptIDs),
				marshalStrings(r.SourceRefs), i); err != nil {
				return fmt.Errorf("inserting rule %s: %w", r.ID, err)
			}
		}

		for i, e := range matrix.Entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO relationships (case_id, concept_id, kind, strength, description, position)
				VALUES (?, ?, ?, ?, ?, ?)
			`, e.CaseID, e.ConceptID, e.Kind, e.Strength, e.Description, i); err != nil {
				return fmt.Errorf("inserting relationship %s/%s: %w", e.CaseID, e.ConceptID, err)
			}
		}

		meta := batch.Metadata
		extractedAt := ""
		if !meta.ExtractedAt.IsZero() {
			extractedAt = meta.ExtractedAt.UTC().Format(time.RFC3339)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO corpus_meta (id, source_documents, extracted_at, model_id, tokens_used,
				cases_in_order, concepts_in_order, updated_at)
			VALUES (1, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET
				source_documents = excluded.source_documents,
				extracted_at = excluded.extracted_at,
				model_id = excluded.model_id,
				tokens_used = excluded.tokens_used,
				cases_in_order = excluded.cases_in_order,
				concepts_in_order = excluded.concepts_in_order,
				updated_at = CURRENT_TIMESTAMP
		`, marshalStrings(meta.SourceDocuments), extractedAt, meta.ModelID, meta.TokensUsed,
			marshalStrings(matrix.CasesInOrder), marshalStrings(matrix.ConceptsInOrder)); err != nil {
			return fmt.Errorf("writing corpus_meta: %w", err)
		}

		return rebuildEntityFTS(ctx, tx, batch)
	})
}

// rebuildEntityFTS reindexes every entity. The caller has already cleared
// entity_fts inside the same transaction.
func rebuildEntityFTS(ctx context.Context, tx *sql.Tx, batch *extract.ExtractionBatch) error {
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO entity_fts (entity_id, kind, name, body) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing fts insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range batch.Concepts {
		body := c.Definition
		if c.NameLocalized != "" {
			body = c.NameLocalized + "\n" + body
		}
		if _, err := stmt.ExecContext(ctx, c.ID, "concept", c.Name, body); err != nil {
			return fmt.Errorf("indexing concept %s: %w", c.ID, err)
		}
	}
	for _, cs := range batch.Cases {
		body := cs.Facts + "\n" + cs.Holding + "\n" + cs.Significance
		if _, err := stmt.ExecContext(ctx, cs.ID, "case", cs.Name, body); err != nil {
			return fmt.Errorf("indexing case %s: %w", cs.ID, err)
		}
	}
	for _, p := range batch.Principles {
		if _, err := stmt.ExecContext(ctx, p.ID, "principle", p.Name, p.Description); err != nil {
			return fmt.Errorf("indexing principle %s: %w", p.ID, err)
		}
	}
	for _, r := range batch.Rules {
		body := r.Statement
		if len(r.Elements) > 0 {
			body += "\n" + strings.Join(r.Elements, "\n")
		}
		if _, err := stmt.ExecContext(ctx, r.ID, "rule", r.Name, body); err != nil {
			return fmt.Errorf("indexing rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// LoadCorpus reads the stored corpus back into record form. Entity arrays
// come back in saved order and are never nil.
func (s *Store) LoadCorpus(ctx context.Context) (*extract.ExtractionBatch, *extract.RelationshipMatrix, error) {
	meta, casesOrder, conceptsOrder, err := s.loadMeta(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrCorpusNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	batch := &extract.ExtractionBatch{Metadata: meta}
	if batch.Concepts, err = s.loadConcepts(ctx); err != nil {
		return nil, nil, err
	}
	if batch.Cases, err = s.loadCases(ctx); err != nil {
		return nil, nil, err
	}
	if batch.Principles, err = s.loadPrinciples(ctx); err != nil {
		return nil, nil, err
	}
	if batch.Rules, err = s.loadRules(ctx); err != nil {
		return nil, nil, err
	}

	matrix := &extract.RelationshipMatrix{
		CasesInOrder:    casesOrder,
		ConceptsInOrder: conceptsOrder,
	}
	if matrix.Entries, err = s.loadEntries(ctx); err != nil {
		return nil, nil, err
	}

	return batch, matrix, nil
}

func (s *Store) loadMeta(ctx context.Context) (extract.BatchMetadata, []string, []string, error) {
	var meta extract.BatchMetadata
	var sourceDocs, extractedAt, casesOrder, conceptsOrder string
	err := s.db.QueryRowContext(ctx, `
		SELECT source_documents, extracted_at, model_id, tokens_used, cases_in_order, concepts_in_order
		FROM corpus_meta WHERE id = 1
	`).Scan(&sourceDocs, &extractedAt, &meta.ModelID, &meta.TokensUsed, &casesOrder, &conceptsOrder)
	if err != nil {
		return meta, nil, nil, err
	}
	meta.SourceDocuments = unmarshalStrings(sourceDocs)
	if extractedAt != "" {
		if ts, perr := time.Parse(time.RFC3339, extractedAt); perr == nil {
			meta.ExtractedAt = ts
		}
	}
	return meta, unmarshalStrings(casesOrder), unmarshalStrings(conceptsOrder), nil
}

func (s *Store) loadConcepts(ctx context.Context) ([]extract.Concept, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, name_localized, definition, category, source_refs
		FROM concepts ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	concepts := []extract.Concept{}
	for rows.Next() {
		var c extract.Concept
		var localized sql.NullString
		var refs string
		if err := rows.Scan(&c.ID, &c.Name, &localized, &c.Definition, &c.Category, &refs); err != nil {
			return nil, err
		}
		c.NameLocalized = localized.String
		c.SourceRefs = unmarshalStrings(refs)
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

func (s *Store) loadCases(ctx context.Context) ([]extract.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, citation, year, court, facts, holding, significance,
			related_concept_ids, source_refs
		FROM cases ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cases := []extract.Case{}
	for rows.Next() {
		var cs extract.Case
		var citation, court sql.NullString
		var related, refs string
		if err := rows.Scan(&cs.ID, &cs.Name, &citation, &cs.Year, &court,
			&cs.Facts, &cs.Holding, &cs.Significance, &related, &refs); err != nil {
			return nil, err
		}
		cs.Citation = citation.String
		cs.Court = court.String
		cs.RelatedConceptIDs = unmarshalStrings(related)
		cs.SourceRefs = unmarshalStrings(refs)
		cases = append(cases, cs)
	}
	return cases, rows.Err()
}

func (s *Store) loadPrinciples(ctx context.Context) ([]extract.Principle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, name_localized, description, related_concept_ids, supporting_case_ids, source_refs
		FROM principles ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	principles := []extract.Principle{}
	for rows.Next() {
		var p extract.Principle
		var localized sql.NullString
		var related, supporting, refs string
		if err := rows.Scan(&p.ID, &p.Name, &localized, &p.Description, &related, &supporting, &refs); err != nil {
			return nil, err
		}
		p.NameLocalized = localized.String
		p.RelatedConceptIDs = unmarshalStrings(related)
		p.SupportingCaseIDs = unmarshalStrings(supporting)
		p.SourceRefs = unmarshalStrings(refs)
		principles = append(principles, p)
	}
	return principles, rows.Err()
}

func (s *Store) loadRules(ctx context.Context) ([]extract.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, name_localized, statement, elements, exceptions,
			application_steps, related_concept_ids, source_refs
		FROM rules ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []extract.Rule{}
	for rows.Next() {
		var r extract.Rule
		var localized sql.NullString
		var elements, exceptions, steps, related, refs string
		if err := rows.Scan(&r.ID, &r.Name, &localized, &r.Statement,
			&elements, &exceptions, &steps, &related, &refs); err != nil {
			return nil, err
		}
		r.NameLocalized = localized.String
		r.Elements = unmarshalStrings(elements)
		r.Exceptions = unmarshalStrings(exceptions)
		r.ApplicationSteps = unmarshalStrings(steps)
		r.RelatedConceptIDs = unmarshalStrings(related)
		r.SourceRefs = unmarshalStrings(refs)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) loadEntries(ctx context.Context) ([]extract.RelationshipEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, concept_id, kind, strength, description
		FROM relationships ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []extract.RelationshipEntry{}
	for rows.Next() {
		var e extract.RelationshipEntry
		var desc sql.NullString
		if err := rows.Scan(&e.CaseID, &e.ConceptID, &e.Kind, &e.Strength, &desc); err != nil {
			return nil, err
		}
		e.Description = desc.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Extraction log ---

// LogExtraction writes one session outcome to the audit log.
func (s *Store) LogExtraction(ctx context.Context, rec ExtractionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_log (session_id, source, model, repair_stage, status, error, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Source, rec.Model, rec.RepairStage, rec.Status, rec.Error, rec.TokensUsed)
	return err
}

// RecentExtractions returns the n most recent log entries, newest first.
func (s *Store) RecentExtractions(ctx context.Context, n int) ([]ExtractionRecord, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, source, model, repair_stage, status, error, tokens_used, created_at
		FROM extraction_log ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ExtractionRecord
	for rows.Next() {
		var r ExtractionRecord
		var source, model, errText sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &source, &model,
			&r.RepairStage, &r.Status, &errText, &r.TokensUsed, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Source = source.String
		r.Model = model.String
		r.Error = errText.String
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// --- Full-text search ---

// SearchEntities performs a full-text search over entity names and bodies
// using FTS5 BM25 ranking. The query is treated as plain terms; all terms
// must match.
func (s *Store) SearchEntities(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, kind, name, snippet(entity_fts, -1, '[', ']', '...', 10), rank
		FROM entity_fts
		WHERE entity_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var rank float64
		if err := rows.Scan(&h.EntityID, &h.Kind, &h.Name, &h.Snippet, &rank); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better), convert to positive score
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsQuery quotes each term so raw user input never trips FTS5 operator
// syntax (hyphens, parens, quotes). Juxtaposed quoted terms are ANDed.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// --- Stats ---

// Stats returns row counts for the stored corpus and the extraction log.
func (s *Store) Stats(ctx context.Context) (*CorpusStats, error) {
	stats := &CorpusStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM concepts", &stats.Concepts},
		{"SELECT COUNT(*) FROM cases", &stats.Cases},
		{"SELECT COUNT(*) FROM principles", &stats.Principles},
		{"SELECT COUNT(*) FROM rules", &stats.Rules},
		{"SELECT COUNT(*) FROM relationships", &stats.Relationships},
		{"SELECT COUNT(*) FROM extraction_log", &stats.Extractions},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// marshalStrings renders a string slice as a JSON array, never null.
func marshalStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}
