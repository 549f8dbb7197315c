package sheets

import (
	"context"

	"wastewater/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordExporter mirrors newly ingested records to a spreadsheet.
	RecordExporter interface {
		// ExportRecords appends one row per parameter reading and returns
		// the updated range reference.
		ExportRecords(ctx context.Context, records []core.Record) (rowRef string, err error)
	}
)

// Header is the column layout written by exporters.
var Header = []string{"date", "sampleNumber", "measuringPoint", "panel", "parameter", "result", "unit"}

// Rows flattens records into spreadsheet rows, one per parameter.
// Null results become empty cells.
func Rows(records []core.Record) [][]string {
	var rows [][]string
	for _, r := range records {
		for _, panel := range r.Results {
			for _, p := range panel.Parameter {
				rows = append(rows, []string{
					r.ExtractionDate.ISO(),
					r.SampleNumber,
					r.MeasuringPoint,
					panel.Name,
					p.Name,
					p.Result.Text(),
					p.Unit,
				})
			}
		}
	}
	return rows
}
