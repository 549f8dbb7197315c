package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"wastewater/internal/core"
	"wastewater/internal/source"
)

// Window is a requested date range, recorded for inspection in tests.
type Window struct {
	Start, End core.Date
}

// Fetcher serves records from memory, filtered by extraction date.
type Fetcher struct {
	mu      sync.Mutex
	records []core.Record
	calls   []Window
	// Err, when set, is returned by every fetch.
	Err error
}

var _ source.RecordFetcher = (*Fetcher)(nil)

func New(records []core.Record) *Fetcher {
	return &Fetcher{records: append([]core.Record(nil), records...)}
}

// NewFromFile seeds the fetcher from a JSON file holding either a record
// array or the API envelope {"body": [...]}.
func NewFromFile(path string) (*Fetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var records []core.Record
	if err := json.Unmarshal(data, &records); err != nil {
		var env struct {
			Body []core.Record `json:"body"`
		}
		if err2 := json.Unmarshal(data, &env); err2 != nil {
			return nil, fmt.Errorf("decode seed file: %w", err)
		}
		records = env.Body
	}
	return New(records), nil
}

// FetchWindow returns the records whose extraction date lies in [start, end].
func (f *Fetcher) FetchWindow(_ context.Context, start, end core.Date) ([]core.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Window{Start: start, End: end})
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]core.Record, 0)
	for _, r := range f.records {
		if r.ExtractionDate.Before(start) || r.ExtractionDate.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Calls returns the windows requested so far.
func (f *Fetcher) Calls() []Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Window(nil), f.calls...)
}
