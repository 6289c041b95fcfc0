// Package extract turns raw completion-service output into validated legal
// knowledge records. It hosts the candidate isolator, the JSON repair ladder,
// the pre-validation normalizer, the strict validator, and the extraction
// pipeline that chains them.
package extract

import "time"

// Concept categories (closed vocabulary).
const (
	CategoryDoctrine  = "doctrine"
	CategoryRule      = "rule"
	CategoryStandard  = "standard"
	CategoryDefense   = "defense"
	CategoryRemedy    = "remedy"
	CategoryProcedure = "procedure"
	CategoryOther     = "other"
)

// Relationship kinds between a case and a concept (closed vocabulary).
const (
	KindEstablishes   = "establishes"
	KindApplies       = "applies"
	KindModifies      = "modifies"
	KindDistinguishes = "distinguishes"
	KindOverrules     = "overrules"
	KindIllustrates   = "illustrates"
)

// Relationship strengths (closed vocabulary).
const (
	StrengthPrimary    = "primary"
	StrengthSecondary  = "secondary"
	StrengthTangential = "tangential"
)

var conceptCategories = map[string]bool{
	CategoryDoctrine:  true,
	CategoryRule:      true,
	CategoryStandard:  true,
	CategoryDefense:   true,
	CategoryRemedy:    true,
	CategoryProcedure: true,
	CategoryOther:     true,
}

var relationshipKinds = map[string]bool{
	KindEstablishes:   true,
	KindApplies:       true,
	KindModifies:      true,
	KindDistinguishes: true,
	KindOverrules:     true,
	KindIllustrates:   true,
}

var relationshipStrengths = map[string]bool{
	StrengthPrimary:    true,
	StrengthSecondary:  true,
	StrengthTangential: true,
}

// ExtractionBatch is one extraction call's full output: all entity arrays
// plus metadata. All four arrays are always present after normalization,
// even when the source text omitted a section.
type ExtractionBatch struct {
	Concepts   []Concept     `json:"concepts"`
	Cases      []Case        `json:"cases"`
	Principles []Principle   `json:"principles"`
	Rules      []Rule        `json:"rules"`
	Metadata   BatchMetadata `json:"metadata"`
}

// BatchMetadata records where and how a batch was produced.
type BatchMetadata struct {
	SourceDocuments []string  `json:"sourceDocuments"`
	ExtractedAt     time.Time `json:"extractedAt"`
	ModelID         string    `json:"modelId"`
	TokensUsed      int       `json:"tokensUsed"`
}

// Concept is a named legal concept with its definition.
type Concept struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	NameLocalized string   `json:"nameLocalized,omitempty"`
	Definition    string   `json:"definition"`
	Category      string   `json:"category"`
	SourceRefs    []string `json:"sourceRefs"`
}

// Case is a decided case with its narrative fields.
type Case struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Citation          string   `json:"citation,omitempty"`
	Year              int      `json:"year,omitempty"`
	Court             string   `json:"court,omitempty"`
	Facts             string   `json:"facts"`
	Holding           string   `json:"holding"`
	Significance      string   `json:"significance"`
	RelatedConceptIDs []string `json:"relatedConceptIds"`
	SourceRefs        []string `json:"sourceRefs"`
}

// Principle is a broad legal principle linking concepts and cases.
type Principle struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	NameLocalized     string   `json:"nameLocalized,omitempty"`
	Description       string   `json:"description"`
	RelatedConceptIDs []string `json:"relatedConceptIds"`
	SupportingCaseIDs []string `json:"supportingCaseIds"`
	SourceRefs        []string `json:"sourceRefs"`
}

// Rule is a black-letter rule with its elements and application steps.
type Rule struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	NameLocalized     string   `json:"nameLocalized,omitempty"`
	Statement         string   `json:"statement"`
	Elements          []string `json:"elements"`
	Exceptions        []string `json:"exceptions"`
	ApplicationSteps  []string `json:"applicationSteps"`
	RelatedConceptIDs []string `json:"relatedConceptIds"`
	SourceRefs        []string `json:"sourceRefs"`
}

// RelationshipEntry links one case to one concept.
type RelationshipEntry struct {
	CaseID      string `json:"caseId"`
	ConceptID   string `json:"conceptId"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Strength    string `json:"strength"`
}

// RelationshipMatrix is the full case-by-concept relationship table. The two
// ordering arrays are derived from the entries when the model omits them.
type RelationshipMatrix struct {
	Entries         []RelationshipEntry `json:"entries"`
	CasesInOrder    []string            `json:"casesInOrder"`
	ConceptsInOrder []string            `json:"conceptsInOrder"`
}
