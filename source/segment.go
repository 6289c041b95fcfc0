package source

import (
	"strings"
	"unicode/utf8"
)

// DefaultSegmentChars is the target size for one extraction prompt's
// worth of note text.
const DefaultSegmentChars = 12000

// SegmentForExtraction packs a document's sections into text segments of
// at most maxChars characters each. Section boundaries are respected
// where possible; oversized sections fall back to paragraph and finally
// hard splits.
func SegmentForExtraction(doc *Document, maxChars int) []string {
	if doc == nil {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultSegmentChars
	}

	var segments []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		segments = append(segments, current.String())
		current.Reset()
	}

	for _, sec := range doc.Sections {
		block := sectionBlock(sec)
		if block == "" {
			continue
		}
		if len(block) > maxChars {
			flush()
			segments = append(segments, splitOversized(block, maxChars)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(block)+2 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
	}
	flush()
	return segments
}

func sectionBlock(sec Section) string {
	heading := strings.TrimSpace(sec.Heading)
	content := strings.TrimSpace(sec.Content)
	switch {
	case heading == "":
		return content
	case content == "":
		return heading
	default:
		return heading + "\n" + content
	}
}

// splitOversized breaks a block that exceeds maxChars at paragraph
// boundaries, hard-splitting any single paragraph that is still too big.
func splitOversized(block string, maxChars int) []string {
	var segments []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		segments = append(segments, current.String())
		current.Reset()
	}

	for _, para := range splitParagraphs(block) {
		if len(para) > maxChars {
			flush()
			segments = append(segments, hardSplit(para, maxChars)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return segments
}

func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// hardSplit cuts text into maxChars-sized pieces, backing up to a rune
// start so multibyte characters are never split, and preferring a space
// in the second half of the window.
func hardSplit(text string, maxChars int) []string {
	var pieces []string
	for len(text) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if idx := strings.LastIndex(text[:cut], " "); idx > maxChars/2 {
			cut = idx
		}
		if cut == 0 {
			cut = maxChars
		}
		piece := strings.TrimSpace(text[:cut])
		if piece != "" {
			pieces = append(pieces, piece)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}
