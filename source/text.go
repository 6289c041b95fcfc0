package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextReader handles plain text (.txt) notes. The whole file becomes one
// section; long files are broken up later at the segmentation stage.
type TextReader struct{}

func (r *TextReader) SupportedFormats() []string { return []string{"txt", "text"} }

func (r *TextReader) Read(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	doc := &Document{
		Path:   path,
		Format: "txt",
		Title:  titleFromPath(path),
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return doc, nil
	}

	doc.Sections = []Section{{Content: content, Level: 1}}
	return doc, nil
}

// titleFromPath derives a document title from the file name.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
