// Package export writes the merged corpus to shareable artifacts: an xlsx
// workbook with the case-by-concept relationship matrix plus one sheet per
// entity kind, and a plain JSON dump.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Yan-sudo/law-note-restructurer/extract"
)

const (
	sheetMatrix     = "Matrix"
	sheetConcepts   = "Concepts"
	sheetCases      = "Cases"
	sheetPrinciples = "Principles"
	sheetRules      = "Rules"
)

// WriteXLSX writes the corpus as a workbook. The Matrix sheet has cases as
// rows and concepts as columns with "kind (strength)" cells; entity sheets
// follow batch order.
func WriteXLSX(path string, batch *extract.ExtractionBatch, matrix *extract.RelationshipMatrix) error {
	if batch == nil {
		return errors.New("export: nil batch")
	}
	if matrix == nil {
		matrix = &extract.RelationshipMatrix{}
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", sheetMatrix); err != nil {
		return fmt.Errorf("naming matrix sheet: %w", err)
	}
	if err := writeMatrixSheet(f, header, batch, matrix); err != nil {
		return fmt.Errorf("writing matrix sheet: %w", err)
	}

	if err := writeConceptsSheet(f, header, batch.Concepts); err != nil {
		return fmt.Errorf("writing concepts sheet: %w", err)
	}
	if err := writeCasesSheet(f, header, batch.Cases); err != nil {
		return fmt.Errorf("writing cases sheet: %w", err)
	}
	if err := writePrinciplesSheet(f, header, batch.Principles); err != nil {
		return fmt.Errorf("writing principles sheet: %w", err)
	}
	if err := writeRulesSheet(f, header, batch.Rules); err != nil {
		return fmt.Errorf("writing rules sheet: %w", err)
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// WriteJSON writes the corpus as an indented JSON document.
func WriteJSON(path string, batch *extract.ExtractionBatch, matrix *extract.RelationshipMatrix) error {
	if batch == nil {
		return errors.New("export: nil batch")
	}
	if matrix == nil {
		matrix = &extract.RelationshipMatrix{}
	}

	doc := struct {
		Batch  *extract.ExtractionBatch    `json:"batch"`
		Matrix *extract.RelationshipMatrix `json:"matrix"`
	}{Batch: batch, Matrix: matrix}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling corpus: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// --- matrix sheet ---

func writeMatrixSheet(f *excelize.File, header int, batch *extract.ExtractionBatch, matrix *extract.RelationshipMatrix) error {
	caseNames := make(map[string]string, len(batch.Cases))
	for _, c := range batch.Cases {
		caseNames[c.ID] = c.Name
	}
	conceptNames := make(map[string]string, len(batch.Concepts))
	for _, c := range batch.Concepts {
		conceptNames[c.ID] = c.Name
	}

	caseIDs := matrix.CasesInOrder
	if len(caseIDs) == 0 {
		caseIDs = firstSeen(matrix.Entries, func(e extract.RelationshipEntry) string { return e.CaseID })
	}
	conceptIDs := matrix.ConceptsInOrder
	if len(conceptIDs) == 0 {
		conceptIDs = firstSeen(matrix.Entries, func(e extract.RelationshipEntry) string { return e.ConceptID })
	}

	type pair struct{ caseID, conceptID string }
	cells := make(map[pair][]string, len(matrix.Entries))
	for _, e := range matrix.Entries {
		text := e.Kind
		if e.Strength != "" {
			text = fmt.Sprintf("%s (%s)", e.Kind, e.Strength)
		}
		key := pair{e.CaseID, e.ConceptID}
		cells[key] = append(cells[key], text)
	}

	if err := setCell(f, sheetMatrix, 1, 1, "Case"); err != nil {
		return err
	}
	for i, id := range conceptIDs {
		if err := setCell(f, sheetMatrix, i+2, 1, displayName(conceptNames, id)); err != nil {
			return err
		}
	}
	for r, caseID := range caseIDs {
		if err := setCell(f, sheetMatrix, 1, r+2, displayName(caseNames, caseID)); err != nil {
			return err
		}
		for c, conceptID := range conceptIDs {
			texts := cells[pair{caseID, conceptID}]
			if len(texts) == 0 {
				continue
			}
			if err := setCell(f, sheetMatrix, c+2, r+2, strings.Join(texts, "; ")); err != nil {
				return err
			}
		}
	}

	lastHeader, err := excelize.CoordinatesToCellName(len(conceptIDs)+1, 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetMatrix, "A1", lastHeader, header); err != nil {
		return err
	}
	if len(caseIDs) > 0 {
		if err := f.SetCellStyle(sheetMatrix, "A2", fmt.Sprintf("A%d", len(caseIDs)+1), header); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetMatrix, "A", "A", 40); err != nil {
		return err
	}
	if len(conceptIDs) > 0 {
		lastCol, err := excelize.ColumnNumberToName(len(conceptIDs) + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetMatrix, "B", lastCol, 24); err != nil {
			return err
		}
	}

	// Keep the case column and concept row visible while scrolling.
	return f.SetPanes(sheetMatrix, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	})
}

// --- entity sheets ---

func writeConceptsSheet(f *excelize.File, header int, concepts []extract.Concept) error {
	headers := []string{"ID", "Name", "Localized Name", "Definition", "Category", "Sources"}
	widths := []float64{24, 32, 24, 60, 16, 32}
	rows := make([][]any, 0, len(concepts))
	for _, c := range concepts {
		rows = append(rows, []any{
			c.ID, c.Name, c.NameLocalized, c.Definition, c.Category, joinRefs(c.SourceRefs),
		})
	}
	return writeSheet(f, header, sheetConcepts, headers, widths, rows)
}

func writeCasesSheet(f *excelize.File, header int, cases []extract.Case) error {
	headers := []string{"ID", "Name", "Citation", "Year", "Court", "Facts", "Holding", "Significance", "Related Concepts", "Sources"}
	widths := []float64{24, 36, 24, 8, 24, 60, 60, 48, 32, 32}
	rows := make([][]any, 0, len(cases))
	for _, c := range cases {
		var year any
		if c.Year != 0 {
			year = c.Year
		}
		rows = append(rows, []any{
			c.ID, c.Name, c.Citation, year, c.Court, c.Facts, c.Holding,
			c.Significance, joinRefs(c.RelatedConceptIDs), joinRefs(c.SourceRefs),
		})
	}
	return writeSheet(f, header, sheetCases, headers, widths, rows)
}

func writePrinciplesSheet(f *excelize.File, header int, principles []extract.Principle) error {
	headers := []string{"ID", "Name", "Localized Name", "Description", "Related Concepts", "Supporting Cases", "Sources"}
	widths := []float64{24, 32, 24, 60, 32, 32, 32}
	rows := make([][]any, 0, len(principles))
	for _, p := range principles {
		rows = append(rows, []any{
			p.ID, p.Name, p.NameLocalized, p.Description,
			joinRefs(p.RelatedConceptIDs), joinRefs(p.SupportingCaseIDs), joinRefs(p.SourceRefs),
		})
	}
	return writeSheet(f, header, sheetPrinciples, headers, widths, rows)
}

func writeRulesSheet(f *excelize.File, header int, rules []extract.Rule) error {
	headers := []string{"ID", "Name", "Localized Name", "Statement", "Elements", "Exceptions", "Application Steps", "Related Concepts", "Sources"}
	widths := []float64{24, 32, 24, 60, 48, 48, 48, 32, 32}
	rows := make([][]any, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []any{
			r.ID, r.Name, r.NameLocalized, r.Statement,
			joinRefs(r.Elements), joinRefs(r.Exceptions), joinSteps(r.ApplicationSteps),
			joinRefs(r.RelatedConceptIDs), joinRefs(r.SourceRefs),
		})
	}
	return writeSheet(f, header, sheetRules, headers, widths, rows)
}

// writeSheet creates a sheet with a bold, frozen header row and one row per
// entity. Nil cell values are skipped.
func writeSheet(f *excelize.File, header int, sheet string, headers []string, widths []float64, rows [][]any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	for i, h := range headers {
		if err := setCell(f, sheet, i+1, 1, h); err != nil {
			return err
		}
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, header); err != nil {
		return err
	}

	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			if err := setCell(f, sheet, c+1, r+2, v); err != nil {
				return err
			}
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// --- helpers ---

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, v)
}

func displayName(names map[string]string, id string) string {
	if name := names[id]; name != "" {
		return name
	}
	return id
}

// firstSeen collects each entry's key in first-seen order, dropping repeats.
func firstSeen(entries []extract.RelationshipEntry, key func(extract.RelationshipEntry) string) []string {
	seen := make(map[string]bool, len(entries))
	var out []string
	for _, e := range entries {
		k := key(e)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func joinRefs(refs []string) string {
	return strings.Join(refs, "; ")
}

// joinSteps numbers ordered steps so the sequence survives the flat cell.
func joinSteps(steps []string) string {
	if len(steps) == 0 {
		return ""
	}
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	return strings.Join(parts, "\n")
}
