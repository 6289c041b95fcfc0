package merge

import (
	"unicode/utf8"

	"github.com/Yan-sudo/law-note-restructurer/extract"
)

// Dedup collapses near-duplicate entities within one batch, each kind
// independently. Scanning in original order, every later entity similar to
// any name already absorbed into the running survivor is folded in, so
// chains collapse transitively: A~B and B~C end up as one record even when
// A and C alone are not similar. The input is not mutated.
func Dedup(batch *extract.ExtractionBatch) *extract.ExtractionBatch {
	out := cloneBatch(batch)
	out.Concepts = dedupConcepts(out.Concepts)
	out.Cases = dedupCases(out.Cases)
	out.Principles = dedupPrinciples(out.Principles)
	out.Rules = dedupRules(out.Rules)
	return out
}

// DedupMatrix drops repeated (caseId, conceptId, kind) entries, keeping the
// first, and re-derives the ordering arrays. The input is not mutated.
func DedupMatrix(m *extract.RelationshipMatrix) *extract.RelationshipMatrix {
	out := cloneMatrix(m)
	seen := make(map[[3]string]bool, len(out.Entries))
	entries := make([]extract.RelationshipEntry, 0, len(out.Entries))
	for _, e := range out.Entries {
		key := [3]string{e.CaseID, e.ConceptID, e.Kind}
		if seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, e)
	}
	out.Entries = entries
	deriveOrders(out)
	return out
}

func dedupConcepts(list []extract.Concept) []extract.Concept {
	consumed := make([]bool, len(list))
	out := make([]extract.Concept, 0, len(list))
	for i := range list {
		if consumed[i] {
			continue
		}
		current := list[i]
		absorbed := []string{current.Name}
		for j := i + 1; j < len(list); j++ {
			if consumed[j] || !similarToAny(absorbed, list[j].Name) {
				continue
			}
			absorbConcept(&current, &list[j])
			absorbed = append(absorbed, list[j].Name)
			consumed[j] = true
		}
		out = append(out, current)
	}
	return out
}

func dedupCases(list []extract.Case) []extract.Case {
	consumed := make([]bool, len(list))
	out := make([]extract.Case, 0, len(list))
	for i := range list {
		if consumed[i] {
			continue
		}
		current := list[i]
		absorbed := []string{current.Name}
		for j := i + 1; j < len(list); j++ {
			if consumed[j] || !similarToAny(absorbed, list[j].Name) {
				continue
			}
			absorbCase(&current, &list[j])
			absorbed = append(absorbed, list[j].Name)
			consumed[j] = true
		}
		out = append(out, current)
	}
	return out
}

func dedupPrinciples(list []extract.Principle) []extract.Principle {
	consumed := make([]bool, len(list))
	out := make([]extract.Principle, 0, len(list))
	for i := range list {
		if consumed[i] {
			continue
		}
		current := list[i]
		absorbed := []string{current.Name}
		for j := i + 1; j < len(list); j++ {
			if consumed[j] || !similarToAny(absorbed, list[j].Name) {
				continue
			}
			absorbPrinciple(&current, &list[j])
			absorbed = append(absorbed, list[j].Name)
			consumed[j] = true
		}
		out = append(out, current)
	}
	return out
}

func dedupRules(list []extract.Rule) []extract.Rule {
	consumed := make([]bool, len(list))
	out := make([]extract.Rule, 0, len(list))
	for i := range list {
		if consumed[i] {
			continue
		}
		current := list[i]
		absorbed := []string{current.Name}
		for j := i + 1; j < len(list); j++ {
			if consumed[j] || !similarToAny(absorbed, list[j].Name) {
				continue
			}
			absorbRule(&current, &list[j])
			absorbed = append(absorbed, list[j].Name)
			consumed[j] = true
		}
		out = append(out, current)
	}
	return out
}

func similarToAny(names []string, name string) bool {
	for _, n := range names {
		if Similar(n, name) {
			return true
		}
	}
	return false
}

// Pairwise absorption rule: the shorter raw name is assumed more canonical,
// the longer narrative text more complete, optional scalars keep whichever
// side is non-empty, and arrays are unioned. The survivor's id stays.

func absorbConcept(dst, src *extract.Concept) {
	dst.Name = shorterName(dst.Name, src.Name)
	dst.NameLocalized = pickFilled(dst.NameLocalized, src.NameLocalized)
	dst.Definition = longerText(dst.Definition, src.Definition)
	dst.Category = pickFilled(dst.Category, src.Category)
	dst.SourceRefs = unionStrings(dst.SourceRefs, src.SourceRefs)
}

func absorbCase(dst, src *extract.Case) {
	dst.Name = shorterName(dst.Name, src.Name)
	dst.Citation = pickFilled(dst.Citation, src.Citation)
	if dst.Year == 0 {
		dst.Year = src.Year
	}
	dst.Court = pickFilled(dst.Court, src.Court)
	dst.Facts = longerText(dst.Facts, src.Facts)
	dst.Holding = longerText(dst.Holding, src.Holding)
	dst.Significance = longerText(dst.Significance, src.Significance)
	dst.RelatedConceptIDs = unionStrings(dst.RelatedConceptIDs, src.RelatedConceptIDs)
	dst.SourceRefs = unionStrings(dst.SourceRefs, src.SourceRefs)
}

func absorbPrinciple(dst, src *extract.Principle) {
	dst.Name = shorterName(dst.Name, src.Name)
	dst.NameLocalized = pickFilled(dst.NameLocalized, src.NameLocalized)
	dst.Description = longerText(dst.Description, src.Description)
	dst.RelatedConceptIDs = unionStrings(dst.RelatedConceptIDs, src.RelatedConceptIDs)
	dst.SupportingCaseIDs = unionStrings(dst.SupportingCaseIDs, src.SupportingCaseIDs)
	dst.SourceRefs = unionStrings(dst.SourceRefs, src.SourceRefs)
}

func absorbRule(dst, src *extract.Rule) {
	dst.Name = shorterName(dst.Name, src.Name)
	dst.NameLocalized = pickFilled(dst.NameLocalized, src.NameLocalized)
	dst.Statement = longerText(dst.Statement, src.Statement)
	dst.Elements = unionStrings(dst.Elements, src.Elements)
	dst.Exceptions = unionStrings(dst.Exceptions, src.Exceptions)
	dst.ApplicationSteps = unionStrings(dst.ApplicationSteps, src.ApplicationSteps)
	dst.RelatedConceptIDs = unionStrings(dst.RelatedConceptIDs, src.RelatedConceptIDs)
	dst.SourceRefs = unionStrings(dst.SourceRefs, src.SourceRefs)
}

func shorterName(a, b string) string {
	if utf8.RuneCountInString(b) < utf8.RuneCountInString(a) {
		return b
	}
	return a
}

func longerText(a, b string) string {
	if utf8.RuneCountInString(b) > utf8.RuneCountInString(a) {
		return b
	}
	return a
}

func pickFilled(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
