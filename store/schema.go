package store

// schemaSQL is the DDL for all corpus tables. Entity tables mirror the
// extraction record shapes; JSON columns hold the string-array fields.
const schemaSQL = `
-- Legal concepts from the merged corpus
CREATE TABLE IF NOT EXISTS concepts (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    name_localized TEXT,
    definition TEXT NOT NULL,
    category TEXT NOT NULL,
    source_refs JSON NOT NULL,
    position INTEGER NOT NULL
);

-- Decided cases with narrative fields
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    citation TEXT,
    year INTEGER,
    court TEXT,
    facts TEXT NOT NULL,
    holding TEXT NOT NULL,
    significance TEXT NOT NULL,
    related_concept_ids JSON NOT NULL,
    source_refs JSON NOT NULL,
    position INTEGER NOT NULL
);

-- Broad legal principles
CREATE TABLE IF NOT EXISTS principles (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    name_localized TEXT,
    description TEXT NOT NULL,
    related_concept_ids JSON NOT NULL,
    supporting_case_ids JSON NOT NULL,
    source_refs JSON NOT NULL,
    position INTEGER NOT NULL
);

-- Black-letter rules with elements and application steps
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    name_localized TEXT,
    statement TEXT NOT NULL,
    elements JSON NOT NULL,
    exceptions JSON NOT NULL,
    application_steps JSON NOT NULL,
    related_concept_ids JSON NOT NULL,
    source_refs JSON NOT NULL,
    position INTEGER NOT NULL
);

-- Case-to-concept relationship matrix entries
CREATE TABLE IF NOT EXISTS relationships (
    case_id TEXT NOT NULL,
    concept_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    strength TEXT NOT NULL,
    description TEXT,
    position INTEGER NOT NULL,
    PRIMARY KEY (case_id, concept_id, kind)
);

-- Single-row corpus metadata; also carries the matrix display orders
CREATE TABLE IF NOT EXISTS corpus_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    source_documents JSON NOT NULL,
    extracted_at TEXT NOT NULL,
    model_id TEXT NOT NULL,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    cases_in_order JSON NOT NULL,
    concepts_in_order JSON NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Per-session extraction audit log
CREATE TABLE IF NOT EXISTS extraction_log (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL,
    source TEXT,
    model TEXT,
    repair_stage INTEGER DEFAULT 0,
    status TEXT NOT NULL,
    error TEXT,
    tokens_used INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text entity search, rebuilt wholesale on every corpus save
CREATE VIRTUAL TABLE IF NOT EXISTS entity_fts USING fts5(
    entity_id UNINDEXED,
    kind UNINDEXED,
    name,
    body,
    tokenize='porter unicode61'
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_relationships_case ON relationships(case_id);
CREATE INDEX IF NOT EXISTS idx_relationships_concept ON relationships(concept_id);
CREATE INDEX IF NOT EXISTS idx_extraction_log_created ON extraction_log(created_at);
`
