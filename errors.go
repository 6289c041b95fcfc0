package lawnote

import (
	"errors"

	"github.com/Yan-sudo/law-note-restructurer/extract"
	"github.com/Yan-sudo/law-note-restructurer/source"
	"github.com/Yan-sudo/law-note-restructurer/store"
)

var (
	// ErrNoSourceDocuments is returned when an extraction run has no note
	// files or no extractable text.
	ErrNoSourceDocuments = errors.New("lawnote: no source documents")

	// ErrEmptyNotes is returned when inline note text is blank.
	ErrEmptyNotes = errors.New("lawnote: empty note text")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("lawnote: invalid configuration")
)

// Sentinels from inner packages, re-exposed so callers can match facade
// errors without importing the package that raised them.
var (
	// ErrUnsupportedFormat is returned for note file formats no reader handles.
	ErrUnsupportedFormat = source.ErrUnsupportedFormat

	// ErrCorpusNotFound is returned before any corpus has been saved.
	ErrCorpusNotFound = store.ErrCorpusNotFound

	// ErrSessionState is returned when a session operation is called from the
	// wrong state.
	ErrSessionState = extract.ErrSessionState

	// ErrNotJSON is returned when a completion contains no JSON object at all.
	ErrNotJSON = extract.ErrNotJSON

	// ErrRepairFailed is returned when no repair stage could produce
	// parseable JSON.
	ErrRepairFailed = extract.ErrRepairFailed

	// ErrInvalidBatch is returned when a parsed batch fails validation.
	ErrInvalidBatch = extract.ErrInvalidBatch
)
