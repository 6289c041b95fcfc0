package extract

import (
	"fmt"
	"strings"
)

// batchExtractionPrompt asks the model to extract all four entity kinds from
// a block of study notes in one pass. Vocabularies are closed and the output
// shape is spelled out field by field so the response can be validated
// strictly.
const batchExtractionPrompt = `You are a structured extraction engine for law study notes.
Given the following notes, extract legal concepts, decided cases, legal principles, and black-letter rules.

CONCEPT CATEGORIES (use exactly these values):
- doctrine  : an established body of legal thought (e.g. promissory estoppel)
- rule      : a specific operative rule of law
- standard  : a test or standard of review applied by courts
- defense   : a defense, exception, or immunity
- remedy    : a form of relief or damages
- procedure : a procedural device or requirement
- other     : anything that fits none of the above

Return a JSON object with exactly these keys:
  "concepts"   : array of {"id": string, "name": string, "nameLocalized": string, "definition": string, "category": string, "sourceRefs": array of string}
  "cases"      : array of {"id": string, "name": string, "citation": string, "year": number, "court": string, "facts": string, "holding": string, "significance": string, "relatedConceptIds": array of string, "sourceRefs": array of string}
  "principles" : array of {"id": string, "name": string, "nameLocalized": string, "description": string, "relatedConceptIds": array of string, "supportingCaseIds": array of string, "sourceRefs": array of string}
  "rules"      : array of {"id": string, "name": string, "nameLocalized": string, "statement": string, "elements": array of string, "exceptions": array of string, "applicationSteps": array of string, "relatedConceptIds": array of string, "sourceRefs": array of string}

Rules:
- "id" is a short kebab-case identifier derived from the name (e.g. "promissory-estoppel", "hadley-v-baxendale").
- "sourceRefs" quotes or paraphrases the note passages the record is based on.
- Cross-reference ids: "relatedConceptIds" and "supportingCaseIds" must use ids defined elsewhere in this same response.
- Omit "citation", "year", or "court" when the notes do not state them. Never guess.
- Only include records clearly supported by the notes. An empty array is the correct answer for a kind with no support.
- Do NOT include any text outside the JSON object.

EXAMPLE:

Input: "Hadley v Baxendale (1854): mill shaft broken, carrier delayed delivery, lost profits claimed. Held: damages limited to losses arising naturally or within the parties' contemplation at contracting. This is the foreseeability limit on consequential damages."
Output:
{"concepts": [{"id": "foreseeability-limit", "name": "Foreseeability Limit on Consequential Damages", "definition": "Contract damages are recoverable only for losses arising naturally from the breach or within the contemplation of both parties at the time of contracting.", "category": "doctrine", "sourceRefs": ["This is the foreseeability limit on consequential damages."]}], "cases": [{"id": "hadley-v-baxendale", "name": "Hadley v Baxendale", "year": 1854, "facts": "A mill shaft broke and the carrier delayed its delivery for repair; the mill owner claimed lost profits.", "holding": "Damages are limited to losses arising naturally from the breach or within the contemplation of the parties at contracting.", "significance": "Established the foreseeability limit on consequential contract damages.", "relatedConceptIds": ["foreseeability-limit"], "sourceRefs": ["Hadley v Baxendale (1854): mill shaft broken, carrier delayed delivery, lost profits claimed."]}], "principles": [], "rules": []}

%sNOTES:
%s`

// matrixExtractionPrompt asks the model to relate already-extracted cases to
// already-extracted concepts. The entity sets are fixed, which keeps this
// second call simpler than the batch pass.
const matrixExtractionPrompt = `You are a relationship extraction engine for law study material.
Given the cases and concepts below, identify how each case relates to each concept it touches.

CASES:
%s
CONCEPTS:
%s
RELATIONSHIP KINDS (use exactly these values):
- establishes   : the case created or first recognized the concept
- applies       : the case applied the concept to its facts
- modifies      : the case narrowed, extended, or reshaped the concept
- distinguishes : the case declined to apply the concept on its facts
- overrules     : the case rejected or abolished the concept
- illustrates   : the case is an example of the concept in operation

STRENGTHS (use exactly these values):
- primary    : the concept is central to the case's holding
- secondary  : the concept matters but is not the core of the holding
- tangential : the concept is only touched in passing

Return a JSON object with exactly one key:
  "entries" : array of {"caseId": string, "conceptId": string, "kind": string, "description": string, "strength": string}

Rules:
- "caseId" and "conceptId" must come from the lists above. Do not invent ids.
- One entry per case-concept pair, at most.
- Only include pairs with a genuine relationship. If there are none, return an empty array.
- Do NOT include any text outside the JSON object.`

func buildBatchPrompt(notes, language string) string {
	var langSection string
	if language != "" && !strings.EqualFold(language, "en") {
		langSection = fmt.Sprintf("LANGUAGE: Write \"nameLocalized\" as the %s translation of each name. Omit it when identical to \"name\".\n\n", language)
	}
	return fmt.Sprintf(batchExtractionPrompt, langSection, notes)
}

func buildMatrixPrompt(b *ExtractionBatch) string {
	var cases strings.Builder
	for _, c := range b.Cases {
		fmt.Fprintf(&cases, "- %s : %s. %s\n", c.ID, c.Name, Preview(c.Holding, 200))
	}
	var concepts strings.Builder
	for _, c := range b.Concepts {
		fmt.Fprintf(&concepts, "- %s : %s. %s\n", c.ID, c.Name, Preview(c.Definition, 200))
	}
	return fmt.Sprintf(matrixExtractionPrompt, cases.String(), concepts.String())
}
