package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Registry maps note formats to readers.
type Registry struct {
	readers map[string]Reader
}

// NewRegistry returns a registry with the built-in readers registered.
func NewRegistry() *Registry {
	r := &Registry{readers: make(map[string]Reader)}
	for _, rd := range []Reader{&TextReader{}, &MarkdownReader{}, &PDFReader{}} {
		for _, f := range rd.SupportedFormats() {
			r.readers[f] = rd
		}
	}
	return r
}

// Get returns the reader for a format.
func (r *Registry) Get(format string) (Reader, error) {
	rd, ok := r.readers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return rd, nil
}

// Register adds or replaces the reader for a format.
func (r *Registry) Register(format string, rd Reader) {
	r.readers[strings.ToLower(format)] = rd
}

// ReadFile dispatches to a reader by the file's extension.
func (r *Registry) ReadFile(ctx context.Context, path string) (*Document, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	rd, err := r.Get(format)
	if err != nil {
		return nil, err
	}
	return rd.Read(ctx, path)
}
