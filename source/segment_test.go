package source

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSegmentForExtractionNil(t *testing.T) {
	if got := SegmentForExtraction(nil, 100); got != nil {
		t.Errorf("got %v for nil document, want nil", got)
	}
}

func TestSegmentForExtractionEmptyDoc(t *testing.T) {
	doc := &Document{Sections: []Section{{Heading: "", Content: "  "}}}
	if got := SegmentForExtraction(doc, 100); len(got) != 0 {
		t.Errorf("got %d segments for empty sections, want 0", len(got))
	}
}

func TestSegmentForExtractionSingle(t *testing.T) {
	doc := &Document{Sections: []Section{
		{Heading: "Offer", Content: "An offer is a promise."},
		{Content: "Acceptance must mirror the offer."},
	}}

	// maxChars of 0 falls back to the default, which fits everything.
	segments := SegmentForExtraction(doc, 0)
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	want := "Offer\nAn offer is a promise.\n\nAcceptance must mirror the offer."
	if segments[0] != want {
		t.Errorf("segment = %q, want %q", segments[0], want)
	}
}

func TestSegmentForExtractionBoundaries(t *testing.T) {
	block := func(n int, ch string) Section {
		return Section{Content: strings.Repeat(ch, n)}
	}

	tests := []struct {
		name     string
		sections []Section
		maxChars int
		want     int
	}{
		{"two_blocks_overflow", []Section{block(10, "a"), block(10, "b")}, 20, 2},
		{"two_blocks_exact_fit", []Section{block(10, "a"), block(10, "b")}, 22, 1},
		{"three_blocks_pack_two", []Section{block(10, "a"), block(10, "b"), block(10, "c")}, 25, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := SegmentForExtraction(&Document{Sections: tt.sections}, tt.maxChars)
			if len(segments) != tt.want {
				t.Fatalf("got %d segments, want %d: %q", len(segments), tt.want, segments)
			}
			for i, seg := range segments {
				if len(seg) > tt.maxChars {
					t.Errorf("segment[%d] is %d chars, over the %d limit", i, len(seg), tt.maxChars)
				}
			}
		})
	}
}

func TestSegmentForExtractionOversizedSection(t *testing.T) {
	p1 := strings.Repeat("a", 8)
	p2 := strings.Repeat("b", 8)
	p3 := strings.Repeat("c", 10)
	doc := &Document{Sections: []Section{
		{Content: "intro"},
		{Content: p1 + "\n\n" + p2 + "\n\n" + p3},
		{Content: "outro"},
	}}

	segments := SegmentForExtraction(doc, 12)
	want := []string{"intro", p1, p2, p3, "outro"}
	if !reflect.DeepEqual(segments, want) {
		t.Errorf("segments = %q, want %q", segments, want)
	}
}

func TestSectionBlock(t *testing.T) {
	tests := []struct {
		name string
		sec  Section
		want string
	}{
		{"heading_and_content", Section{Heading: "H", Content: "body"}, "H\nbody"},
		{"content_only", Section{Content: "body"}, "body"},
		{"heading_only", Section{Heading: "H"}, "H"},
		{"empty", Section{}, ""},
		{"whitespace_trimmed", Section{Heading: " H ", Content: " body "}, "H\nbody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sectionBlock(tt.sec); got != tt.want {
				t.Errorf("sectionBlock(%+v) = %q, want %q", tt.sec, got, tt.want)
			}
		})
	}
}

func TestSplitParagraphs(t *testing.T) {
	got := splitParagraphs("one\n\n\n\n  two  \n\nthree")
	want := []string{"one", "two", "three"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitParagraphs = %q, want %q", got, want)
	}
}

func TestHardSplit(t *testing.T) {
	got := hardSplit(strings.Repeat("x", 30), 12)
	want := []string{strings.Repeat("x", 12), strings.Repeat("x", 12), strings.Repeat("x", 6)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("hardSplit = %q, want %q", got, want)
	}
}

func TestHardSplitPrefersSpace(t *testing.T) {
	got := hardSplit("aaaa bbbb cccc", 10)
	want := []string{"aaaa bbbb", "cccc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("hardSplit = %q, want %q", got, want)
	}
}

func TestHardSplitIgnoresEarlySpace(t *testing.T) {
	// Space at index 2 is in the first half of the window, so the cut
	// stays at the window edge.
	got := hardSplit("ab cccccccccccc", 10)
	want := []string{"ab ccccccc", "ccccc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("hardSplit = %q, want %q", got, want)
	}
}

func TestHardSplitRuneSafety(t *testing.T) {
	text := strings.Repeat("契約法", 34) // 102 runes, 306 bytes

	pieces := hardSplit(text, 100)
	if len(pieces) < 2 {
		t.Fatalf("got %d pieces, want a real split", len(pieces))
	}
	for i, p := range pieces {
		if !utf8.ValidString(p) {
			t.Errorf("piece[%d] is not valid UTF-8: %q", i, p)
		}
		if len(p) > 100 {
			t.Errorf("piece[%d] is %d bytes, over the limit", i, len(p))
		}
	}
	if joined := strings.Join(pieces, ""); joined != text {
		t.Errorf("joined pieces differ from input:\ngot  %q\nwant %q", joined, text)
	}
}

func TestSegmentForExtractionMultibyte(t *testing.T) {
	doc := &Document{Sections: []Section{{Content: strings.Repeat("約款の解釈 ", 40)}}}

	segments := SegmentForExtraction(doc, 64)
	if len(segments) < 2 {
		t.Fatalf("got %d segments, want a real split", len(segments))
	}
	for i, seg := range segments {
		if !utf8.ValidString(seg) {
			t.Errorf("segment[%d] is not valid UTF-8", i)
		}
		if len(seg) > 64 {
			t.Errorf("segment[%d] is %d bytes, over the limit", i, len(seg))
		}
	}
}
