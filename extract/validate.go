package extract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidBatch is returned when a batch still violates the schema
	// after normalization.
	ErrInvalidBatch = errors.New("extract: invalid batch")

	// ErrInvalidMatrix is returned when a relationship matrix still violates
	// the schema after normalization.
	ErrInvalidMatrix = errors.New("extract: invalid matrix")
)

// ValidateBatch is the strict structural gate run after normalization.
// Normalization is expected to have already resolved every recoverable shape
// issue, so any violation reported here is a genuine content problem and is
// terminal; nothing is silently patched.
func ValidateBatch(b *ExtractionBatch) error {
	var issues []string

	seen := make(map[string]bool)
	requireID := func(kind, id, name string, i int) string {
		label := fmt.Sprintf("%s[%d]", kind, i)
		if name != "" {
			label = fmt.Sprintf("%s (%s)", label, name)
		}
		if strings.TrimSpace(id) == "" {
			issues = append(issues, label+": missing id")
		} else if key := kind + ":" + id; seen[key] {
			issues = append(issues, label+": duplicate id "+id)
		} else {
			seen[key] = true
		}
		if strings.TrimSpace(name) == "" {
			issues = append(issues, label+": missing name")
		}
		return label
	}

	for i, c := range b.Concepts {
		label := requireID("concepts", c.ID, c.Name, i)
		if strings.TrimSpace(c.Definition) == "" {
			issues = append(issues, label+": missing definition")
		}
		if !conceptCategories[c.Category] {
			issues = append(issues, fmt.Sprintf("%s: invalid category %q", label, c.Category))
		}
	}
	for i, c := range b.Cases {
		label := requireID("cases", c.ID, c.Name, i)
		if strings.TrimSpace(c.Facts) == "" {
			issues = append(issues, label+": missing facts")
		}
		if strings.TrimSpace(c.Holding) == "" {
			issues = append(issues, label+": missing holding")
		}
		if strings.TrimSpace(c.Significance) == "" {
			issues = append(issues, label+": missing significance")
		}
	}
	for i, p := range b.Principles {
		label := requireID("principles", p.ID, p.Name, i)
		if strings.TrimSpace(p.Description) == "" {
			issues = append(issues, label+": missing description")
		}
	}
	for i, r := range b.Rules {
		label := requireID("rules", r.ID, r.Name, i)
		if strings.TrimSpace(r.Statement) == "" {
			issues = append(issues, label+": missing statement")
		}
	}

	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBatch, strings.Join(issues, "; "))
	}
	return nil
}

// ValidateMatrix is the strict gate for a relationship matrix.
func ValidateMatrix(m *RelationshipMatrix) error {
	var issues []string

	for i, e := range m.Entries {
		label := fmt.Sprintf("entries[%d]", i)
		if strings.TrimSpace(e.CaseID) == "" {
			issues = append(issues, label+": missing caseId")
		}
		if strings.TrimSpace(e.ConceptID) == "" {
			issues = append(issues, label+": missing conceptId")
		}
		if !relationshipKinds[e.Kind] {
			issues = append(issues, fmt.Sprintf("%s: invalid kind %q", label, e.Kind))
		}
		if !relationshipStrengths[e.Strength] {
			issues = append(issues, fmt.Sprintf("%s: invalid strength %q", label, e.Strength))
		}
		if strings.TrimSpace(e.Description) == "" {
			issues = append(issues, label+": missing description")
		}
	}

	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMatrix, strings.Join(issues, "; "))
	}
	return nil
}
