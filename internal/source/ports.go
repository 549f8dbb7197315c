package source

import (
	"context"
	"errors"
	"fmt"

	"wastewater/internal/core"
)

// RecordFetcher retrieves the records extracted within an inclusive date range.
type RecordFetcher interface {
	FetchWindow(ctx context.Context, start, end core.Date) ([]core.Record, error)
}

var (
	// ErrTransport marks network-level failures.
	ErrTransport = errors.New("transport failure")
	// ErrStatus marks a non-successful HTTP status.
	ErrStatus = errors.New("unexpected status")
	// ErrEnvelope marks a response without the expected data envelope.
	ErrEnvelope = errors.New("missing data envelope")
	// ErrTooLarge marks a response body above the client's size limit.
	ErrTooLarge = errors.New("response too large")
)

// RemoteError is returned for any failed fetch. Kind is one of the
// sentinels above and can be matched with errors.Is.
type RemoteError struct {
	Kind       error
	URL        string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
