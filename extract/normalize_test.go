package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

const completeConceptJSON = `{"id": "duty-of-care", "name": "Duty of Care", "definition": "An obligation to avoid foreseeable harm.", "category": "doctrine", "sourceRefs": ["p. 2"]}`

const completeCaseJSON = `{"id": "donoghue-v-stevenson", "name": "Donoghue v Stevenson", "facts": "A snail in a bottle of ginger beer.", "holding": "Manufacturers owe a duty of care to consumers.", "significance": "Founded modern negligence.", "sourceRefs": ["p. 1"]}`

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("test input does not parse: %v", err)
	}
	return v
}

func TestNormalizeBatchDefaultsEmptyObject(t *testing.T) {
	obj, err := NormalizeBatch(decodeJSON(t, `{}`))
	if err != nil {
		t.Fatalf("NormalizeBatch() error = %v", err)
	}

	for _, key := range batchArrayKeys {
		arr, ok := obj[key].([]any)
		if !ok {
			t.Fatalf("%s = %T, want []any", key, obj[key])
		}
		if len(arr) != 0 {
			t.Errorf("%s has %d elements, want 0", key, len(arr))
		}
	}

	md := mustMap(t, obj["metadata"])
	if got := md["modelId"]; got != "unknown" {
		t.Errorf("metadata.modelId = %v, want unknown", got)
	}
	if got := md["tokensUsed"]; got != 0 {
		t.Errorf("metadata.tokensUsed = %v, want 0", got)
	}
	if docs, ok := md["sourceDocuments"].([]any); !ok || len(docs) != 0 {
		t.Errorf("metadata.sourceDocuments = %v, want empty array", md["sourceDocuments"])
	}
	at, _ := md["extractedAt"].(string)
	if _, err := time.Parse(time.RFC3339, at); err != nil {
		t.Errorf("metadata.extractedAt %q is not RFC3339: %v", at, err)
	}
}

func TestNormalizeBatchRejectsNonObject(t *testing.T) {
	for _, raw := range []string{`[1, 2]`, `"text"`, `42`} {
		if _, err := NormalizeBatch(decodeJSON(t, raw)); !errors.Is(err, ErrNotJSON) {
			t.Errorf("NormalizeBatch(%s) error = %v, want ErrNotJSON", raw, err)
		}
	}
}

func TestNormalizeBatchKeepsProvidedMetadata(t *testing.T) {
	raw := `{"metadata": {"sourceDocuments": ["contracts.pdf"], "extractedAt": "2026-01-02T03:04:05Z", "modelId": "gemini-2.0-flash", "tokensUsed": 123}}`
	obj, err := NormalizeBatch(decodeJSON(t, raw))
	if err != nil {
		t.Fatalf("NormalizeBatch() error = %v", err)
	}

	md := mustMap(t, obj["metadata"])
	if got := md["modelId"]; got != "gemini-2.0-flash" {
		t.Errorf("modelId = %v", got)
	}
	if got := md["extractedAt"]; got != "2026-01-02T03:04:05Z" {
		t.Errorf("extractedAt = %v", got)
	}
	if got := md["tokensUsed"]; got != float64(123) {
		t.Errorf("tokensUsed = %v", got)
	}
	if got := stringSliceOf(md["sourceDocuments"]); !reflect.DeepEqual(got, []string{"contracts.pdf"}) {
		t.Errorf("sourceDocuments = %v", got)
	}
}

func TestNormalizeBatchDropsIncompleteTrailingElement(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		key  string
		want int
	}{
		{
			"trailing concept missing sourceRefs",
			fmt.Sprintf(`{"concepts": [%s, {"id": "b", "name": "Estoppel", "definition": "cut off"}]}`, completeConceptJSON),
			"concepts", 1,
		},
		{
			"single concept without sourceRefs",
			`{"concepts": [{"id": "a", "name": "Foo", "definition": "bar"}]}`,
			"concepts", 0,
		},
		{
			"trailing case missing holding",
			fmt.Sprintf(`{"cases": [%s, {"id": "c2", "name": "Doe v Roe", "facts": "some facts", "sourceRefs": []}]}`, completeCaseJSON),
			"cases", 1,
		},
		{
			"complete trailing case kept",
			fmt.Sprintf(`{"cases": [%s]}`, completeCaseJSON),
			"cases", 1,
		},
		{
			"only the tail is inspected",
			fmt.Sprintf(`{"concepts": [{"id": "a", "name": "Foo"}, %s]}`, completeConceptJSON),
			"concepts", 2,
		},
		{
			"trailing non-object dropped",
			fmt.Sprintf(`{"rules": [%s]}`, `"stray string"`),
			"rules", 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := NormalizeBatch(decodeJSON(t, tt.raw))
			if err != nil {
				t.Fatalf("NormalizeBatch() error = %v", err)
			}
			if got := len(mustSlice(t, obj[tt.key])); got != tt.want {
				t.Errorf("len(%s) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestNormalizeBatchTrailingElementWithNullRefs(t *testing.T) {
	// A null sourceRefs still counts as the key being reached, so the element
	// survives the tail check and the field is defaulted after null cleanup.
	raw := `{"concepts": [{"id": "a", "name": "Foo", "definition": "bar", "sourceRefs": null}]}`
	obj, err := NormalizeBatch(decodeJSON(t, raw))
	if err != nil {
		t.Fatalf("NormalizeBatch() error = %v", err)
	}
	concepts := mustSlice(t, obj["concepts"])
	if len(concepts) != 1 {
		t.Fatalf("len(concepts) = %d, want 1", len(concepts))
	}
	refs, ok := mustMap(t, concepts[0])["sourceRefs"].([]any)
	if !ok || len(refs) != 0 {
		t.Errorf("sourceRefs = %v, want empty array", mustMap(t, concepts[0])["sourceRefs"])
	}
}

func TestNormalizeBatchDeletesNulls(t *testing.T) {
	raw := `{"concepts": [{"id": "a", "name": "Foo", "nameLocalized": null, "definition": "bar", "category": "doctrine", "sourceRefs": ["r1", null, "r2"]}]}`
	obj, err := NormalizeBatch(decodeJSON(t, raw))
	if err != nil {
		t.Fatalf("NormalizeBatch() error = %v", err)
	}

	concept := mustMap(t, mustSlice(t, obj["concepts"])[0])
	if _, ok := concept["nameLocalized"]; ok {
		t.Error("null nameLocalized survived cleanup")
	}
	if got := stringSliceOf(concept["sourceRefs"]); !reflect.DeepEqual(got, []string{"r1", "r2"}) {
		t.Errorf("sourceRefs = %v, want [r1 r2]", got)
	}
}

func TestNormalizeBatchDefaultsEntityArrays(t *testing.T) {
	raw := fmt.Sprintf(`{"rules": [{"id": "r1", "name": "Hearsay Rule", "statement": "Out-of-court statements are inadmissible.", "sourceRefs": %s}]}`, `["p. 9"]`)
	obj, err := NormalizeBatch(decodeJSON(t, raw))
	if err != nil {
		t.Fatalf("NormalizeBatch() error = %v", err)
	}

	rule := mustMap(t, mustSlice(t, obj["rules"])[0])
	for _, f := range []string{"elements", "exceptions", "applicationSteps", "relatedConceptIds"} {
		arr, ok := rule[f].([]any)
		if !ok {
			t.Errorf("%s = %T, want []any", f, rule[f])
			continue
		}
		if len(arr) != 0 {
			t.Errorf("%s = %v, want empty", f, arr)
		}
	}
	if got := stringSliceOf(rule["sourceRefs"]); !reflect.DeepEqual(got, []string{"p. 9"}) {
		t.Errorf("sourceRefs = %v", got)
	}
}

func TestNormalizeBatchYearCoercion(t *testing.T) {
	tests := []struct {
		name        string
		year        string
		wantPresent bool
		want        float64
	}{
		{"numeric year untouched", `1932`, true, 1932},
		{"string year coerced", `"1932"`, true, 1932},
		{"padded string year coerced", `" 1905 "`, true, 1905},
		{"prose year deleted", `"circa 1900"`, false, 0},
		{"boolean year deleted", `true`, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := fmt.Sprintf(`{"cases": [{"id": "c1", "name": "X v Y", "facts": "f", "holding": "h", "year": %s, "sourceRefs": []}]}`, tt.year)
			obj, err := NormalizeBatch(decodeJSON(t, raw))
			if err != nil {
				t.Fatalf("NormalizeBatch() error = %v", err)
			}
			v, present := mustMap(t, mustSlice(t, obj["cases"])[0])["year"]
			if present != tt.wantPresent {
				t.Fatalf("year present = %v, want %v", present, tt.wantPresent)
			}
			if !present {
				return
			}
			var got float64
			switch n := v.(type) {
			case int:
				got = float64(n)
			case float64:
				got = n
			default:
				t.Fatalf("year has type %T", v)
			}
			if got != tt.want {
				t.Errorf("year = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeBatchCanonicalizesCategory(t *testing.T) {
	raw := `{"concepts": [{"id": "a", "name": "Consideration", "definition": "d", "category": "Legal Concept", "sourceRefs": []}]}`
	obj, err := NormalizeBatch(decodeJSON(t, raw))
	if err != nil {
		t.Fatalf("NormalizeBatch() error = %v", err)
	}
	concept := mustMap(t, mustSlice(t, obj["concepts"])[0])
	if got := concept["category"]; got != CategoryDoctrine {
		t.Errorf("category = %v, want %v", got, CategoryDoctrine)
	}
}

func TestCanonicalizeCategory(t *testing.T) {
	tests := []struct{ in, want string }{
		{"doctrine", CategoryDoctrine},
		{"legal concept", CategoryDoctrine},
		{"general principle", CategoryDoctrine},
		{"affirmative defense", CategoryDefense},
		{"an exception to hearsay", CategoryDefense},
		{"equitable remedies", CategoryRemedy},
		{"injunctive relief", CategoryRemedy},
		{"civil procedure", CategoryProcedure},
		{"balancing test", CategoryStandard},
		{"rule against perpetuities", CategoryRule},
		{"miscellaneous", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		if got := canonicalizeCategory(tt.in); got != tt.want {
			t.Errorf("canonicalizeCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalizeKind(t *testing.T) {
	tests := []struct{ in, want string }{
		{"applies", KindApplies},
		{"applied the standard", KindApplies},
		{"created a new rule", KindEstablishes},
		{"narrowed", KindModifies},
		{"overturned", KindOverrules},
		{"distinguished from", KindDistinguishes},
		{"cited as an example", KindIllustrates},
		{"unrelated text", KindIllustrates},
	}
	for _, tt := range tests {
		if got := canonicalizeKind(tt.in); got != tt.want {
			t.Errorf("canonicalizeKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalizeStrength(t *testing.T) {
	tests := []struct{ in, want string }{
		{"primary", StrengthPrimary},
		{"strongly supports", StrengthPrimary},
		{"central holding", StrengthPrimary},
		{"weak", StrengthTangential},
		{"a minor point", StrengthTangential},
		{"???", StrengthSecondary},
	}
	for _, tt := range tests {
		if got := canonicalizeStrength(tt.in); got != tt.want {
			t.Errorf("canonicalizeStrength(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func matrixEntry(t *testing.T, obj map[string]any, i int) map[string]any {
	t.Helper()
	return mustMap(t, mustSlice(t, obj["entries"])[i])
}

func TestNormalizeMatrixFieldSwap(t *testing.T) {
	tests := []struct {
		name         string
		entry        string
		wantKind     string
		wantStrength string
	}{
		{
			"strength value in kind field",
			`{"caseId": "c1", "conceptId": "k1", "kind": "primary", "description": "d"}`,
			KindIllustrates, StrengthPrimary,
		},
		{
			"swap keeps an explicit strength",
			`{"caseId": "c1", "conceptId": "k1", "kind": "primary", "strength": "tangential", "description": "d"}`,
			KindIllustrates, StrengthTangential,
		},
		{
			"free-text kind mapped by keyword",
			`{"caseId": "c1", "conceptId": "k1", "kind": "Established the rule that", "strength": "primary", "description": "d"}`,
			KindEstablishes, StrengthPrimary,
		},
		{
			"missing kind and strength take defaults",
			`{"caseId": "c1", "conceptId": "k1", "description": "d"}`,
			KindIllustrates, StrengthSecondary,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := NormalizeMatrix(decodeJSON(t, fmt.Sprintf(`{"entries": [%s]}`, tt.entry)))
			if err != nil {
				t.Fatalf("NormalizeMatrix() error = %v", err)
			}
			entry := matrixEntry(t, obj, 0)
			if got := entry["kind"]; got != tt.wantKind {
				t.Errorf("kind = %v, want %v", got, tt.wantKind)
			}
			if got := entry["strength"]; got != tt.wantStrength {
				t.Errorf("strength = %v, want %v", got, tt.wantStrength)
			}
		})
	}
}

func TestNormalizeMatrixDerivesOrders(t *testing.T) {
	raw := `{"entries": [
		{"caseId": "c1", "conceptId": "k1", "kind": "applies", "strength": "primary", "description": "d"},
		{"caseId": "c2", "conceptId": "k1", "kind": "applies", "strength": "primary", "description": "d"},
		{"caseId": "c1", "conceptId": "k2", "kind": "applies", "strength": "primary", "description": "d"}
	]}`
	obj, err := NormalizeMatrix(decodeJSON(t, raw))
	if err != nil {
		t.Fatalf("NormalizeMatrix() error = %v", err)
	}
	if got := obj["casesInOrder"]; !reflect.DeepEqual(got, []any{"c1", "c2"}) {
		t.Errorf("casesInOrder = %v, want [c1 c2]", got)
	}
	if got := obj["conceptsInOrder"]; !reflect.DeepEqual(got, []any{"k1", "k2"}) {
		t.Errorf("conceptsInOrder = %v, want [k1 k2]", got)
	}
}

func TestNormalizeMatrixKeepsProvidedOrders(t *testing.T) {
	raw := `{"casesInOrder": ["c9"], "conceptsInOrder": ["k9"], "entries": [{"caseId": "c1", "conceptId": "k1", "kind": "applies", "strength": "primary", "description": "d"}]}`
	obj, err := NormalizeMatrix(decodeJSON(t, raw))
	if err != nil {
		t.Fatalf("NormalizeMatrix() error = %v", err)
	}
	if got := obj["casesInOrder"]; !reflect.DeepEqual(got, []any{"c9"}) {
		t.Errorf("casesInOrder = %v, want [c9]", got)
	}
	if got := obj["conceptsInOrder"]; !reflect.DeepEqual(got, []any{"k9"}) {
		t.Errorf("conceptsInOrder = %v, want [k9]", got)
	}
}

func TestNormalizeMatrixDropsIncompleteTrailingEntry(t *testing.T) {
	raw := `{"entries": [
		{"caseId": "c1", "conceptId": "k1", "kind": "applies", "strength": "primary", "description": "d"},
		{"caseId": "c2"}
	]}`
	obj, err := NormalizeMatrix(decodeJSON(t, raw))
	if err != nil {
		t.Fatalf("NormalizeMatrix() error = %v", err)
	}
	if got := len(mustSlice(t, obj["entries"])); got != 1 {
		t.Errorf("len(entries) = %d, want 1", got)
	}
}

func TestNormalizeMatrixDefaultsEmptyObject(t *testing.T) {
	obj, err := NormalizeMatrix(decodeJSON(t, `{}`))
	if err != nil {
		t.Fatalf("NormalizeMatrix() error = %v", err)
	}
	for _, key := range []string{"entries", "casesInOrder", "conceptsInOrder"} {
		arr, ok := obj[key].([]any)
		if !ok {
			t.Fatalf("%s = %T, want []any", key, obj[key])
		}
		if len(arr) != 0 {
			t.Errorf("%s = %v, want empty", key, arr)
		}
	}
}
