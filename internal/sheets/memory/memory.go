package memory

import (
	"context"
	"fmt"
	"sync"

	"wastewater/internal/core"
	"wastewater/internal/sheets"
)

// Exporter keeps exported rows in memory.
type Exporter struct {
	mu   sync.Mutex
	rows [][]string
	Err  error
}

var _ sheets.RecordExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// ExportRecords stores the flattened rows and returns a synthetic range reference.
func (e *Exporter) ExportRecords(_ context.Context, records []core.Record) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}
	rows := sheets.Rows(records)
	if len(rows) == 0 {
		return "", nil
	}
	start := len(e.rows) + 1
	e.rows = append(e.rows, rows...)
	return fmt.Sprintf("memory!A%d:G%d", start, len(e.rows)), nil
}

// Rows returns a copy of everything exported so far.
func (e *Exporter) Rows() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.rows))
	copy(out, e.rows)
	return out
}
