// Package source reads note files into structured documents and packs them
// into prompt-sized segments for extraction. Readers exist for plain text,
// markdown, and PDF notes; the registry dispatches on file extension.
package source

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned when no reader handles a file's format.
var ErrUnsupportedFormat = errors.New("source: unsupported format")

// Document is one parsed note file.
type Document struct {
	Path     string    `json:"path"`
	Format   string    `json:"format"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Section is a logical section of a note.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Content string `json:"content"`
	Level   int    `json:"level"`          // heading level, 1 = top
	Page    int    `json:"page,omitempty"` // 1-based page for paginated formats
}

// Reader reads one note format into a Document.
type Reader interface {
	Read(ctx context.Context, path string) (*Document, error)
	SupportedFormats() []string
}
