package storage

import (
	"context"
	"fmt"

	"wastewater/internal/core"
)

// Loader reads the persisted dataset.
type Loader interface {
	// Load returns the persisted dataset. A missing, unreadable or malformed
	// store yields an empty dataset and a nil error.
	Load(ctx context.Context) (core.Dataset, error)
}

// Store persists the full dataset between runs. Implementations are not
// safe for concurrent writers; runs must not overlap.
type Store interface {
	Loader
	// Save replaces the persisted dataset. Failures are *WriteError.
	Save(ctx context.Context, ds core.Dataset) error
}

// ReadError describes a store that could not be read or parsed. It is
// logged and the caller continues with an empty dataset.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read store %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError describes a failed write-back. It aborts the run.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write store %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
