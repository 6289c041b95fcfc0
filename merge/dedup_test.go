package merge

import (
	"reflect"
	"testing"

	"github.com/Yan-sudo/law-note-restructurer/extract"
)

func TestDedupChainMerge(t *testing.T) {
	// Only consecutive pairs are similar; the chain still collapses to one.
	a := extract.Concept{
		ID:         "agg-principle",
		Name:       "Aggregate Principle",
		Definition: "Partners are taxed individually.",
		Category:   extract.CategoryDoctrine,
		SourceRefs: []string{"p. 1"},
	}
	b := extract.Concept{
		ID:         "agg-principle-2",
		Name:       "Aggregate Principle of Partnership Taxation",
		Definition: "Under the aggregate approach the partnership is a collection of individuals, each taxed on a distributive share.",
		Category:   extract.CategoryDoctrine,
		SourceRefs: []string{"p. 2"},
	}
	c := extract.Concept{
		ID:         "partnership-tax-principle",
		Name:       "The Principle of Partnership Taxation",
		Definition: "Partnership income passes through to the partners.",
		Category:   extract.CategoryDoctrine,
		SourceRefs: []string{"p. 1", "p. 3"},
	}

	if Similar(a.Name, c.Name) {
		t.Fatal("fixture broken: endpoints must not be directly similar")
	}
	if !Similar(a.Name, b.Name) || !Similar(b.Name, c.Name) {
		t.Fatal("fixture broken: consecutive pairs must be similar")
	}

	out := Dedup(&extract.ExtractionBatch{Concepts: []extract.Concept{a, b, c}})
	if got := len(out.Concepts); got != 1 {
		t.Fatalf("concepts = %d, want 1", got)
	}

	survivor := out.Concepts[0]
	if survivor.ID != "agg-principle" {
		t.Errorf("id = %q, want the first survivor's", survivor.ID)
	}
	if survivor.Name != "Aggregate Principle" {
		t.Errorf("name = %q, want the shortest raw name", survivor.Name)
	}
	if survivor.Definition != b.Definition {
		t.Errorf("definition = %q, want the longest", survivor.Definition)
	}
	if want := []string{"p. 1", "p. 2", "p. 3"}; !reflect.DeepEqual(survivor.SourceRefs, want) {
		t.Errorf("sourceRefs = %v, want %v", survivor.SourceRefs, want)
	}
}

func TestDedupKeepsDissimilar(t *testing.T) {
	batch := &extract.ExtractionBatch{Concepts: []extract.Concept{
		{ID: "a", Name: "Duty of Care", Definition: "d"},
		{ID: "b", Name: "Consideration", Definition: "d"},
	}}
	out := Dedup(batch)
	if got := len(out.Concepts); got != 2 {
		t.Fatalf("concepts = %d, want 2", got)
	}
}

func TestDedupPairwiseRule(t *testing.T) {
	first := extract.Case{
		ID:                "donoghue-v-stevenson",
		Name:              "Donoghue v Stevenson House of Lords",
		Facts:             "Snail in bottle.",
		Holding:           "Manufacturers owe consumers a duty of care whenever harm is foreseeable.",
		Significance:      "Foundational.",
		RelatedConceptIDs: []string{"duty-of-care"},
		SourceRefs:        []string{"p. 1"},
	}
	second := extract.Case{
		ID:           "donoghue",
		Name:         "Donoghue v Stevenson",
		Citation:     "[1932] AC 562",
		Year:         1932,
		Court:        "House of Lords",
		Facts:        "A consumer drank ginger beer containing a decomposed snail and fell ill.",
		Holding:      "Duty of care owed.",
		Significance: "Founded the modern law of negligence in the common law world.",
		SourceRefs:   []string{"p. 1", "p. 4"},
	}

	out := Dedup(&extract.ExtractionBatch{Cases: []extract.Case{first, second}})
	if got := len(out.Cases); got != 1 {
		t.Fatalf("cases = %d, want 1", got)
	}
	c := out.Cases[0]

	if c.ID != "donoghue-v-stevenson" {
		t.Errorf("id = %q, want the first survivor's", c.ID)
	}
	if c.Name != "Donoghue v Stevenson" {
		t.Errorf("name = %q, want the shorter raw name", c.Name)
	}
	if c.Citation != "[1932] AC 562" || c.Year != 1932 || c.Court != "House of Lords" {
		t.Errorf("optional scalars not filled: %+v", c)
	}
	if c.Facts != second.Facts {
		t.Errorf("facts = %q, want the longer text", c.Facts)
	}
	if c.Holding != first.Holding {
		t.Errorf("holding = %q, want the longer text", c.Holding)
	}
	if c.Significance != second.Significance {
		t.Errorf("significance = %q, want the longer text", c.Significance)
	}
	if want := []string{"duty-of-care"}; !reflect.DeepEqual(c.RelatedConceptIDs, want) {
		t.Errorf("relatedConceptIds = %v", c.RelatedConceptIDs)
	}
	if want := []string{"p. 1", "p. 4"}; !reflect.DeepEqual(c.SourceRefs, want) {
		t.Errorf("sourceRefs = %v, want unioned %v", c.SourceRefs, want)
	}
}

func TestDedupDoesNotMutateInput(t *testing.T) {
	batch := &extract.ExtractionBatch{Concepts: []extract.Concept{
		{ID: "a", Name: "Duty of Care", Definition: "short", SourceRefs: []string{"p. 1"}},
		{ID: "b", Name: "The Duty of Care", Definition: "a much longer definition", SourceRefs: []string{"p. 2"}},
	}}
	out := Dedup(batch)

	if got := len(out.Concepts); got != 1 {
		t.Fatalf("concepts = %d, want 1", got)
	}
	if len(batch.Concepts) != 2 || batch.Concepts[0].Definition != "short" {
		t.Error("input batch mutated")
	}
	out.Concepts[0].SourceRefs[0] = "mutated"
	if batch.Concepts[0].SourceRefs[0] != "p. 1" {
		t.Error("output aliases input arrays")
	}
}

func TestDedupAllKinds(t *testing.T) {
	batch := &extract.ExtractionBatch{
		Principles: []extract.Principle{
			{ID: "p1", Name: "Neighbour Principle", Description: "short"},
			{ID: "p2", Name: "The Neighbour Principle", Description: "the longer of the two descriptions"},
		},
		Rules: []extract.Rule{
			{ID: "r1", Name: "Hearsay Rule", Statement: "s", Elements: []string{"out-of-court"}},
			{ID: "r2", Name: "The Hearsay Rule", Statement: "statement in full", Elements: []string{"out-of-court", "for truth"}},
		},
	}
	out := Dedup(batch)

	if got := len(out.Principles); got != 1 {
		t.Fatalf("principles = %d, want 1", got)
	}
	if out.Principles[0].Description != "the longer of the two descriptions" {
		t.Errorf("description = %q", out.Principles[0].Description)
	}
	if got := len(out.Rules); got != 1 {
		t.Fatalf("rules = %d, want 1", got)
	}
	if want := []string{"out-of-court", "for truth"}; !reflect.DeepEqual(out.Rules[0].Elements, want) {
		t.Errorf("elements = %v, want unioned %v", out.Rules[0].Elements, want)
	}
}

func TestDedupMatrix(t *testing.T) {
	m := &extract.RelationshipMatrix{Entries: []extract.RelationshipEntry{
		{CaseID: "c1", ConceptID: "k1", Kind: extract.KindApplies, Description: "first", Strength: extract.StrengthPrimary},
		{CaseID: "c1", ConceptID: "k1", Kind: extract.KindApplies, Description: "second", Strength: extract.StrengthSecondary},
		{CaseID: "c1", ConceptID: "k1", Kind: extract.KindEstablishes, Description: "different kind", Strength: extract.StrengthPrimary},
		{CaseID: "c2", ConceptID: "k2", Kind: extract.KindApplies, Description: "other", Strength: extract.StrengthPrimary},
	}}

	out := DedupMatrix(m)
	if got := len(out.Entries); got != 3 {
		t.Fatalf("entries = %d, want 3", got)
	}
	if out.Entries[0].Description != "first" {
		t.Errorf("duplicate resolution kept %q, want the first", out.Entries[0].Description)
	}
	if want := []string{"c1", "c2"}; !reflect.DeepEqual(out.CasesInOrder, want) {
		t.Errorf("casesInOrder = %v, want %v", out.CasesInOrder, want)
	}
	if want := []string{"k1", "k2"}; !reflect.DeepEqual(out.ConceptsInOrder, want) {
		t.Errorf("conceptsInOrder = %v, want %v", out.ConceptsInOrder, want)
	}
	if len(m.Entries) != 4 {
		t.Error("input matrix mutated")
	}
}
