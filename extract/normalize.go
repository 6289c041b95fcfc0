package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// batchArrayKeys are the four top-level entity arrays of a batch.
var batchArrayKeys = []string{"concepts", "cases", "principles", "rules"}

// entityArrayFields lists the array-valued fields defaulted to [] per kind.
var entityArrayFields = map[string][]string{
	"concepts":   {"sourceRefs"},
	"cases":      {"relatedConceptIds", "sourceRefs"},
	"principles": {"relatedConceptIds", "supportingCaseIds", "sourceRefs"},
	"rules":      {"elements", "exceptions", "applicationSteps", "relatedConceptIds", "sourceRefs"},
}

// NormalizeBatch mutates a parsed-but-raw batch tree into the shape the
// strict validator expects: top-level arrays and metadata defaulted, an
// incomplete trailing element dropped from each array, null fields deleted,
// string years coerced, loose enum values canonicalized, and per-entity
// array fields defaulted. It returns the same tree.
func NormalizeBatch(v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is %T, not an object", ErrNotJSON, v)
	}

	for _, key := range batchArrayKeys {
		arr, ok := obj[key].([]any)
		if !ok {
			obj[key] = []any{}
			continue
		}
		obj[key] = dropIncompleteTail(arr, key)
	}

	obj["metadata"] = normalizeMetadata(obj["metadata"])

	cleanValue(obj)

	for _, key := range batchArrayKeys {
		arr := obj[key].([]any)
		for _, el := range arr {
			if entity, ok := el.(map[string]any); ok {
				normalizeEntity(entity, key)
			}
		}
	}
	return obj, nil
}

// NormalizeMatrix is the relationship-matrix counterpart of NormalizeBatch:
// entries defaulted, an incomplete trailing entry dropped, kind and strength
// canonicalized (including the strength-in-kind field swap), and the two
// ordering arrays derived from the entries when absent or empty.
func NormalizeMatrix(v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is %T, not an object", ErrNotJSON, v)
	}

	entries, ok := obj["entries"].([]any)
	if !ok {
		entries = []any{}
	}
	if n := len(entries); n > 0 && !completeEntry(entries[n-1]) {
		entries = entries[:n-1]
	}
	obj["entries"] = entries

	cleanValue(obj)

	entries = obj["entries"].([]any)
	for _, el := range entries {
		if entry, ok := el.(map[string]any); ok {
			normalizeRelationship(entry)
		}
	}

	if len(stringSliceOf(obj["casesInOrder"])) == 0 {
		obj["casesInOrder"] = distinctField(entries, "caseId")
	}
	if len(stringSliceOf(obj["conceptsInOrder"])) == 0 {
		obj["conceptsInOrder"] = distinctField(entries, "conceptId")
	}
	return obj, nil
}

// dropIncompleteTail removes the last element of an entity array when it
// carries the signature of a generation cut off mid-object. The signature is
// best effort: a legitimately minimal final entity that never mentions its
// source refs is dropped too, which is preferred over passing a half-formed
// record downstream.
func dropIncompleteTail(arr []any, kind string) []any {
	if n := len(arr); n > 0 && !completeElement(arr[n-1], kind) {
		return arr[:n-1]
	}
	return arr
}

// completeElement reports whether an entity has everything a finished
// generation emits: non-empty id and name, facts and holding for cases, and
// the sourceRefs key, which is the final field of every entity schema and is
// never reached when the output is cut mid-object.
func completeElement(el any, kind string) bool {
	obj, ok := el.(map[string]any)
	if !ok {
		return false
	}
	if !nonEmptyString(obj["id"]) || !nonEmptyString(obj["name"]) {
		return false
	}
	if kind == "cases" {
		if !nonEmptyString(obj["facts"]) || !nonEmptyString(obj["holding"]) {
			return false
		}
	}
	_, hasRefs := obj["sourceRefs"]
	return hasRefs
}

func completeEntry(el any) bool {
	obj, ok := el.(map[string]any)
	if !ok {
		return false
	}
	return nonEmptyString(obj["caseId"]) && nonEmptyString(obj["conceptId"])
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

// normalizeMetadata defaults missing or malformed metadata fields.
func normalizeMetadata(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		m = map[string]any{}
	}

	docs := stringSliceOf(m["sourceDocuments"])
	anyDocs := make([]any, len(docs))
	for i, d := range docs {
		anyDocs[i] = d
	}
	m["sourceDocuments"] = anyDocs

	if s, ok := m["extractedAt"].(string); !ok || !parseableTime(s) {
		m["extractedAt"] = time.Now().UTC().Format(time.RFC3339)
	}
	if !nonEmptyString(m["modelId"]) {
		m["modelId"] = "unknown"
	}
	switch m["tokensUsed"].(type) {
	case float64, int:
	default:
		m["tokensUsed"] = 0
	}
	return m
}

func parseableTime(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

// cleanValue walks the tree deleting null-valued object fields and filtering
// null elements out of arrays. The input is mutated and returned.
func cleanValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil {
				delete(t, k)
				continue
			}
			t[k] = cleanValue(val)
		}
		return t
	case []any:
		out := t[:0]
		for _, el := range t {
			if el == nil {
				continue
			}
			out = append(out, cleanValue(el))
		}
		return out
	default:
		return v
	}
}

func normalizeEntity(entity map[string]any, kind string) {
	switch kind {
	case "concepts":
		entity["category"] = canonicalizeCategory(lowerTrim(entity["category"]))
	case "cases":
		coerceYear(entity)
	}
	for _, f := range entityArrayFields[kind] {
		if _, ok := entity[f].([]any); !ok {
			entity[f] = []any{}
		}
	}
}

// coerceYear turns a string year into a number, or deletes the field when it
// is not numeric. A bad year is never a parse failure.
func coerceYear(entity map[string]any) {
	v, ok := entity["year"]
	if !ok {
		return
	}
	switch t := v.(type) {
	case float64:
		// already numeric
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			entity["year"] = n
		} else {
			delete(entity, "year")
		}
	default:
		delete(entity, "year")
	}
}

func normalizeRelationship(entry map[string]any) {
	kind := lowerTrim(entry["kind"])
	strength := lowerTrim(entry["strength"])

	// A strength-vocabulary value in the kind field is a field swap, not
	// garbage: adopt it as the strength and let kind take the default.
	if relationshipStrengths[kind] {
		if !relationshipStrengths[strength] {
			strength = kind
		}
		kind = KindIllustrates
	}

	entry["kind"] = canonicalizeKind(kind)
	entry["strength"] = canonicalizeStrength(strength)
}

// categoryFallbacks maps keywords in free-text categories to canonical
// values, checked in order.
var categoryFallbacks = []struct{ keyword, value string }{
	{"doctrine", CategoryDoctrine},
	{"concept", CategoryDoctrine},
	{"principle", CategoryDoctrine},
	{"theory", CategoryDoctrine},
	{"exception", CategoryDefense},
	{"defen", CategoryDefense},
	{"immunity", CategoryDefense},
	{"remed", CategoryRemedy},
	{"relief", CategoryRemedy},
	{"damages", CategoryRemedy},
	{"procedur", CategoryProcedure},
	{"standard", CategoryStandard},
	{"test", CategoryStandard},
	{"rule", CategoryRule},
}

var kindFallbacks = []struct{ keyword, value string }{
	{"establish", KindEstablishes},
	{"creat", KindEstablishes},
	{"appl", KindApplies},
	{"modif", KindModifies},
	{"narrow", KindModifies},
	{"distinguish", KindDistinguishes},
	{"overrul", KindOverrules},
	{"overturn", KindOverrules},
	{"illustrat", KindIllustrates},
	{"example", KindIllustrates},
}

var strengthFallbacks = []struct{ keyword, value string }{
	{"primar", StrengthPrimary},
	{"strong", StrengthPrimary},
	{"central", StrengthPrimary},
	{"tangent", StrengthTangential},
	{"weak", StrengthTangential},
	{"minor", StrengthTangential},
	{"secondar", StrengthSecondary},
}

func canonicalizeCategory(s string) string {
	if conceptCategories[s] {
		return s
	}
	for _, fb := range categoryFallbacks {
		if strings.Contains(s, fb.keyword) {
			return fb.value
		}
	}
	return CategoryOther
}

func canonicalizeKind(s string) string {
	if relationshipKinds[s] {
		return s
	}
	for _, fb := range kindFallbacks {
		if strings.Contains(s, fb.keyword) {
			return fb.value
		}
	}
	return KindIllustrates
}

func canonicalizeStrength(s string) string {
	if relationshipStrengths[s] {
		return s
	}
	for _, fb := range strengthFallbacks {
		if strings.Contains(s, fb.keyword) {
			return fb.value
		}
	}
	return StrengthSecondary
}

func lowerTrim(v any) string {
	s, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(s))
}

// stringSliceOf extracts the string members of a []any value.
func stringSliceOf(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// distinctField collects the distinct values of a string field across
// entries in first-seen order.
func distinctField(entries []any, field string) []any {
	seen := make(map[string]bool)
	var out []any
	for _, el := range entries {
		entry, ok := el.(map[string]any)
		if !ok {
			continue
		}
		s, ok := entry[field].(string)
		if !ok || s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if out == nil {
		out = []any{}
	}
	return out
}
