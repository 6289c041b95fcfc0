package source

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// MarkdownReader handles markdown (.md, .markdown) notes, splitting them
// into sections on ATX headings. Heading-like lines inside fenced code
// blocks are left in the body.
type MarkdownReader struct{}

func (r *MarkdownReader) SupportedFormats() []string { return []string{"md", "markdown"} }

func (r *MarkdownReader) Read(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown file: %w", err)
	}

	doc := &Document{
		Path:   path,
		Format: "md",
		Title:  titleFromPath(path),
	}
	doc.Sections = splitMarkdownSections(string(data))

	for _, sec := range doc.Sections {
		if sec.Level == 1 && sec.Heading != "" {
			doc.Title = sec.Heading
			break
		}
	}
	return doc, nil
}

func splitMarkdownSections(text string) []Section {
	var sections []Section
	var body strings.Builder
	current := Section{}

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		if content == "" && current.Heading == "" {
			return
		}
		current.Content = content
		sections = append(sections, current)
	}

	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if !inFence {
			if level, heading, ok := atxHeading(trimmed); ok {
				flush()
				current = Section{Heading: heading, Level: level}
				continue
			}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections
}

// atxHeading parses an ATX heading line ("## Title", optionally with
// closing hashes). A hash run without a following space is not a heading.
func atxHeading(line string) (level int, heading string, ok bool) {
	if !strings.HasPrefix(line, "#") {
		return 0, "", false
	}
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 {
		return 0, "", false
	}
	rest := line[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	heading = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	return level, heading, true
}
