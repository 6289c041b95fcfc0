package source

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader handles PDF notes via per-page plain-text extraction.
type PDFReader struct{}

func (r *PDFReader) SupportedFormats() []string { return []string{"pdf"} }

func (r *PDFReader) Read(ctx context.Context, path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	doc := &Document{
		Path:   path,
		Format: "pdf",
		Title:  titleFromPath(path),
	}

	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		doc.Sections = append(doc.Sections, splitPageSections(text, i)...)
	}

	for _, sec := range doc.Sections {
		if sec.Level == 1 && sec.Heading != "" {
			doc.Title = sec.Heading
			break
		}
	}
	return doc, nil
}

// splitPageSections breaks page text into sections at detected headings.
func splitPageSections(text string, page int) []Section {
	var sections []Section
	var body strings.Builder
	heading := ""
	level := 0

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		if content == "" && heading == "" {
			return
		}
		sections = append(sections, Section{
			Heading: heading,
			Content: content,
			Level:   level,
			Page:    page,
		})
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if body.Len() > 0 {
				body.WriteString("\n")
			}
			continue
		}
		if isNoteHeading(trimmed) {
			flush()
			heading = trimmed
			level = headingLevel(trimmed)
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(trimmed)
	}
	flush()

	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		return []Section{{Content: strings.TrimSpace(text), Page: page}}
	}
	return sections
}

var (
	// Outline numbers: "1.", "2)", "1.1", "3.9.1". A bare number with no
	// dot or closing mark ("1932 was...") is body text.
	numberedHeading = regexp.MustCompile(`^(\d+(\.\d+)+[.)]?|\d+[.)])\s`)

	// CJK structural markers: 第一章, 第2节, 第三条 and friends.
	cjkHeading = regexp.MustCompile(`^第[0-9一二三四五六七八九十百零]+([章節节編编部篇條条款])`)
)

var headingPrefixes = []string{"part ", "chapter ", "section ", "article "}

// isNoteHeading reports whether a line looks like a heading in a legal
// note: outline numbers, CJK chapter markers, English structural prefixes,
// or short all-caps lines.
func isNoteHeading(line string) bool {
	if len(line) == 0 || len(line) > 120 {
		return false
	}
	if numberedHeading.MatchString(line) {
		return true
	}
	if cjkHeading.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, p := range headingPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	// All caps and short. Requiring a cased letter keeps digit runs and
	// CJK body text (which have no upper/lower distinction) out.
	if len(line) > 2 && len(line) < 100 && line == strings.ToUpper(line) && lower != line {
		return true
	}
	return false
}

// headingLevel derives a level from the numbering depth. Unnumbered
// headings are level 1 except the finer-grained English markers.
func headingLevel(heading string) int {
	parts := strings.SplitN(heading, " ", 2)
	num := strings.TrimRight(parts[0], ".)")
	if num != "" && num[0] >= '0' && num[0] <= '9' {
		return strings.Count(num, ".") + 1
	}
	if m := cjkHeading.FindStringSubmatch(heading); m != nil {
		switch m[1] {
		case "章", "編", "编", "部", "篇":
			return 1
		case "節", "节":
			return 2
		default: // 條, 条, 款
			return 3
		}
	}
	lower := strings.ToLower(heading)
	if strings.HasPrefix(lower, "section ") || strings.HasPrefix(lower, "article ") {
		return 2
	}
	return 1
}
