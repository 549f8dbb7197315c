package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"wastewater/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the dataset in a SQLite table. Panels are stored as a
// JSON column since they are only ever read back whole, and the complete
// record document is kept alongside so upstream members without a column
// survive a round trip.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load implements Store. Query or decode failures degrade to an empty dataset.
func (s *SQLiteStore) Load(ctx context.Context) (core.Dataset, error) {
	ds, err := s.load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Store unreadable, starting empty",
			"error", &ReadError{Path: s.path, Err: err})
		return core.Dataset{}, nil
	}
	return ds, nil
}

func (s *SQLiteStore) load(ctx context.Context) (core.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sample_number, extraction_date, measuring_point, results, document
		FROM records
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	ds := core.Dataset{}
	for rows.Next() {
		var (
			r        core.Record
			dateText string
			results  string
			document string
		)
		if err := rows.Scan(&r.SampleNumber, &dateText, &r.MeasuringPoint, &results, &document); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if document != "" {
			if err := json.Unmarshal([]byte(document), &r); err != nil {
				return nil, fmt.Errorf("record %s document: %w", r.SampleNumber, err)
			}
			ds = append(ds, r)
			continue
		}
		if r.ExtractionDate, err = core.ParseDate(dateText); err != nil {
			return nil, fmt.Errorf("record %s: %w", r.SampleNumber, err)
		}
		if err := json.Unmarshal([]byte(results), &r.Results); err != nil {
			return nil, fmt.Errorf("record %s results: %w", r.SampleNumber, err)
		}
		ds = append(ds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return ds, nil
}

// Save implements Store by replacing the table contents in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, ds core.Dataset) error {
	if err := s.save(ctx, ds); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	slog.InfoContext(ctx, "Store written", "path", s.path, "records", len(ds))
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, ds core.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (position, sample_number, extraction_day, extraction_date, measuring_point, results, document)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range ds {
		results, err := json.Marshal(r.Results)
		if err != nil {
			return fmt.Errorf("encode results of %s: %w", r.SampleNumber, err)
		}
		if r.Results == nil {
			results = []byte("[]")
		}
		document, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.SampleNumber, err)
		}
		if _, err := stmt.ExecContext(ctx, i, r.SampleNumber, r.ExtractionDate.ISO(),
			r.ExtractionDate.String(), r.MeasuringPoint, string(results), string(document)); err != nil {
			return fmt.Errorf("insert record %s: %w", r.SampleNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
