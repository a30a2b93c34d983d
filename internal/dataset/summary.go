package dataset

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"deviation-classifier-go/internal/aggregator"
	"deviation-classifier-go/internal/types"
)

const (
	ResultsSheet = "classifications"
	SummarySheet = "summary"
)

// Result is the outcome of classifying one Row. Final is nil when Err is set.
type Result struct {
	Row      Row
	Inferred *types.Classification
	Final    *types.Classification
	Err      string
}

// Entry converts the result for aggregation.
func (r Result) Entry() aggregator.Entry {
	e := aggregator.Entry{Location: r.Row.Location, Result: r.Final}
	if r.Final != nil && r.Inferred != nil {
		e.Corrected = *r.Final != *r.Inferred
	}
	return e
}

func Entries(results []Result) []aggregator.Entry {
	out := make([]aggregator.Entry, len(results))
	for i, r := range results {
		out[i] = r.Entry()
	}
	return out
}

var resultHeader = []any{
	"line", "local", "description", "audio",
	types.FieldSeverity, types.FieldUrgency, types.FieldTrend, types.FieldType, types.FieldRouting, types.FieldCategory,
	"severity_label", "urgency_label", "trend_label", "type_label", "routing_label", "category_label",
	"corrected_by_review", "error",
}

func resultRow(r Result) []any {
	row := []any{r.Row.Line, r.Row.Location, r.Row.DescriptionText(), r.Row.AudioPath}
	if r.Final == nil {
		row = append(row, "", "", "", "", "", "", "", "", "", "", "", "", "", r.Err)
		return row
	}
	c := *r.Final
	row = append(row,
		int(c.Severity), int(c.Urgency), int(c.Trend), int(c.Type), int(c.Routing), int(c.Category),
		c.Severity.String(), c.Urgency.String(), c.Trend.String(), c.Type.String(), c.Routing.String(), c.Category.String(),
		r.Entry().Corrected, r.Err,
	)
	return row
}

// Save writes one row per result to the classifications sheet and the
// aggregate to the summary sheet.
func Save(path string, results []Result, summary aggregator.Summary, notes ...[]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ResultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRows(f, ResultsSheet, append([][]any{resultHeader}, mapRows(results)...)); err != nil {
		return err
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := append([][]any{{"metric", "value", "count"}}, summary.Table()...)
	rows = append(rows, notes...)
	if err := writeRows(f, SummarySheet, rows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func mapRows(results []Result) [][]any {
	out := make([][]any, len(results))
	for i, r := range results {
		out[i] = resultRow(r)
	}
	return out
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, addr, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
