// Package snapshot writes the dataset as a flat Parquet table for analytics
// tooling.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"wastewater/internal/core"
)

// Row is one parameter reading of one record.
type Row struct {
	SampleNumber   string  `parquet:"sample_number,zstd"`
	ExtractionDay  string  `parquet:"extraction_day,zstd"` // yyyy-mm-dd
	MeasuringPoint string  `parquet:"measuring_point,zstd"`
	Panel          string  `parquet:"panel,zstd"`
	Parameter      string  `parquet:"parameter,zstd"`
	Result         string  `parquet:"result,zstd"`
	Numeric        bool    `parquet:"numeric"`
	Value          float64 `parquet:"value"`
	Unit           string  `parquet:"unit,zstd"`
}

// Rows flattens the dataset, one row per parameter.
func Rows(ds core.Dataset) []Row {
	var rows []Row
	for _, r := range ds {
		for _, panel := range r.Results {
			for _, p := range panel.Parameter {
				row := Row{
					SampleNumber:   r.SampleNumber,
					ExtractionDay:  r.ExtractionDate.ISO(),
					MeasuringPoint: r.MeasuringPoint,
					Panel:          panel.Name,
					Parameter:      p.Name,
					Result:         p.Result.Text(),
					Unit:           p.Unit,
				}
				if d, ok := p.Result.Decimal(); ok {
					row.Numeric = true
					row.Value = d.InexactFloat64()
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// Writer replaces a Parquet file with the full dataset on every update.
type Writer struct {
	path string
}

// NewWriter returns a writer targeting path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the snapshot file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteSnapshot writes the dataset to a temporary file next to the target
// and renames it into place.
func (w *Writer) WriteSnapshot(ctx context.Context, ds core.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	writer := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Zstd))
	if _, err := writer.Write(Rows(ds)); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ReadFile reads all rows of a snapshot file.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows[:n], nil
}
