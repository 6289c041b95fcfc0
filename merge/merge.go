// Package merge combines freshly extracted batches with previously accepted
// ones and collapses near-duplicate entities within a batch, using fuzzy
// name similarity. Every operation works on deep copies and never aliases
// caller state, so a caller may keep using its originals while a merge is
// in flight.
package merge

import (
	"slices"

	"github.com/tiendc/go-deepcopy"

	"github.com/Yan-sudo/law-note-restructurer/extract"
)

// Merge folds an incoming batch into an existing one and returns the result.
// For each incoming entity the first similar existing entity of the same
// kind absorbs it: the existing id and name stay (stable identity for
// relationship references), current-state fields take the incoming value
// when it is non-empty, and reference arrays are unioned. Entities with no
// similar counterpart are appended. Neither argument is mutated.
func Merge(existing, incoming *extract.ExtractionBatch) *extract.ExtractionBatch {
	if existing == nil {
		return cloneBatch(incoming)
	}
	merged := cloneBatch(existing)
	if incoming == nil {
		return merged
	}
	inc := cloneBatch(incoming)

	for i := range inc.Concepts {
		c := &inc.Concepts[i]
		if m := matchConcept(merged.Concepts, c.Name); m != nil {
			overwriteConcept(m, c)
		} else {
			merged.Concepts = append(merged.Concepts, *c)
		}
	}
	for i := range inc.Cases {
		c := &inc.Cases[i]
		if m := matchCase(merged.Cases, c.Name); m != nil {
			overwriteCase(m, c)
		} else {
			merged.Cases = append(merged.Cases, *c)
		}
	}
	for i := range inc.Principles {
		p := &inc.Principles[i]
		if m := matchPrinciple(merged.Principles, p.Name); m != nil {
			overwritePrinciple(m, p)
		} else {
			merged.Principles = append(merged.Principles, *p)
		}
	}
	for i := range inc.Rules {
		r := &inc.Rules[i]
		if m := matchRule(merged.Rules, r.Name); m != nil {
			overwriteRule(m, r)
		} else {
			merged.Rules = append(merged.Rules, *r)
		}
	}

	merged.Metadata.SourceDocuments = unionStrings(
		merged.Metadata.SourceDocuments, inc.Metadata.SourceDocuments)
	if !inc.Metadata.ExtractedAt.IsZero() {
		merged.Metadata.ExtractedAt = inc.Metadata.ExtractedAt
	}
	if inc.Metadata.ModelID != "" {
		merged.Metadata.ModelID = inc.Metadata.ModelID
	}
	merged.Metadata.TokensUsed += inc.Metadata.TokensUsed
	return merged
}

// MergeMatrix unions two relationship matrices keyed on (caseId, conceptId).
// The incoming entry wins an occupied key; new keys append in incoming
// order. Both ordering arrays are re-derived from the merged entries.
func MergeMatrix(existing, incoming *extract.RelationshipMatrix) *extract.RelationshipMatrix {
	merged := cloneMatrix(existing)
	if merged.Entries == nil {
		merged.Entries = []extract.RelationshipEntry{}
	}
	if incoming != nil {
		inc := cloneMatrix(incoming)
		index := make(map[[2]string]int, len(merged.Entries))
		for i, e := range merged.Entries {
			index[[2]string{e.CaseID, e.ConceptID}] = i
		}
		for _, e := range inc.Entries {
			key := [2]string{e.CaseID, e.ConceptID}
			if i, ok := index[key]; ok {
				merged.Entries[i] = e
			} else {
				index[key] = len(merged.Entries)
				merged.Entries = append(merged.Entries, e)
			}
		}
	}
	deriveOrders(merged)
	return merged
}

func matchConcept(list []extract.Concept, name string) *extract.Concept {
	for i := range list {
		if Similar(list[i].Name, name) {
			return &list[i]
		}
	}
	return nil
}

func matchCase(list []extract.Case, name string) *extract.Case {
	for i := range list {
		if Similar(list[i].Name, name) {
			return &list[i]
		}
	}
	return nil
}

func matchPrinciple(list []extract.Principle, name string) *extract.Principle {
	for i := range list {
		if Similar(list[i].Name, name) {
			return &list[i]
		}
	}
	return nil
}

func matchRule(list []extract.Rule, name string) *extract.Rule {
	for i := range list {
		if Similar(list[i].Name, name) {
			return &list[i]
		}
	}
	return nil
}

func overwriteConcept(dst, src *extract.Concept) {
	setIfFilled(&dst.NameLocalized, src.NameLocalized)
	setIfFilled(&dst.Definition, src.Definition)
	setIfFilled(&dst.Category, src.Category)
	dst.SourceRefs = unionStrings(dst.SourceRefs, src.SourceRefs)
}

func overwriteCase(dst, src *extract.Case) {
	setIfFilled(&dst.Citation, src.Citation)
	if src.Year != 0 {
		dst.Year = src.Year
	}
	setIfFilled(&dst.Court, src.Court)
	setIfFilled(&dst.Facts, src.Facts)
	setIfFilled(&dst.Holding, src.Holding)
	setIfFilled(&dst.Significance, src.Significance)
	dst.RelatedConceptIDs = unionStrings(dst.RelatedConceptIDs, src.RelatedConceptIDs)
	dst.SourceRefs = unionStrings(dst.SourceRefs, src.SourceRefs)
}

func overwritePrinciple(dst, src *extract.Principle) {
	setIfFilled(&dst.NameLocalized, src.NameLocalized)
	setIfFilled(&dst.Description, src.Description)
	dst.RelatedConceptIDs = unionStrings(dst.RelatedConceptIDs, src.RelatedConceptIDs)
	dst.SupportingCaseIDs = unionStrings(dst.SupportingCaseIDs, src.SupportingCaseIDs)
	dst.SourceRefs = unionStrings(dst.SourceRefs, src.SourceRefs)
}

func overwriteRule(dst, src *extract.Rule) {
	setIfFilled(&dst.NameLocalized, src.NameLocalized)
	setIfFilled(&dst.Statement, src.Statement)
	if len(src.Elements) > 0 {
		dst.Elements = src.Elements
	}
	if len(src.Exceptions) > 0 {
		dst.Exceptions = src.Exceptions
	}
	if len(src.ApplicationSteps) > 0 {
		dst.ApplicationSteps = src.ApplicationSteps
	}
	dst.RelatedConceptIDs = unionStrings(dst.RelatedConceptIDs, src.RelatedConceptIDs)
	dst.SourceRefs = unionStrings(dst.SourceRefs, src.SourceRefs)
}

// setIfFilled overwrites dst with src unless src is empty; an absent
// incoming value never erases known data.
func setIfFilled(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// unionStrings appends the members of b not already in a, preserving order.
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			a = append(a, s)
		}
	}
	return a
}

func deriveOrders(m *extract.RelationshipMatrix) {
	seenCase := make(map[string]bool)
	seenConcept := make(map[string]bool)
	cases := make([]string, 0, len(m.Entries))
	concepts := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		if e.CaseID != "" && !seenCase[e.CaseID] {
			seenCase[e.CaseID] = true
			cases = append(cases, e.CaseID)
		}
		if e.ConceptID != "" && !seenConcept[e.ConceptID] {
			seenConcept[e.ConceptID] = true
			concepts = append(concepts, e.ConceptID)
		}
	}
	m.CasesInOrder = cases
	m.ConceptsInOrder = concepts
}

// cloneBatch deep-copies the four entity arrays and value-copies the flat
// metadata. Copy cannot fail on these plain exported-field structs.
func cloneBatch(b *extract.ExtractionBatch) *extract.ExtractionBatch {
	out := new(extract.ExtractionBatch)
	if b == nil {
		return out
	}
	_ = deepcopy.Copy(&out.Concepts, &b.Concepts)
	_ = deepcopy.Copy(&out.Cases, &b.Cases)
	_ = deepcopy.Copy(&out.Principles, &b.Principles)
	_ = deepcopy.Copy(&out.Rules, &b.Rules)
	out.Metadata = b.Metadata
	out.Metadata.SourceDocuments = slices.Clone(b.Metadata.SourceDocuments)
	return out
}

// cloneMatrix needs no recursion: entries are flat structs.
func cloneMatrix(m *extract.RelationshipMatrix) *extract.RelationshipMatrix {
	out := new(extract.RelationshipMatrix)
	if m == nil {
		return out
	}
	out.Entries = slices.Clone(m.Entries)
	out.CasesInOrder = slices.Clone(m.CasesInOrder)
	out.ConceptsInOrder = slices.Clone(m.ConceptsInOrder)
	return out
}
