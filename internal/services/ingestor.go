package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wastewater/internal/amqp"
	"wastewater/internal/core"
	"wastewater/internal/log"
	"wastewater/internal/merge"
	"wastewater/internal/metrics"
	"wastewater/internal/planner"
	"wastewater/internal/sheets"
	"wastewater/internal/source"
	"wastewater/internal/storage"
)

// Status is the outcome of a successful run.
type Status string

const (
	StatusUpdated        Status = metrics.StatusUpdated
	StatusNoNewData      Status = metrics.StatusNoNewData
	StatusNothingToFetch Status = metrics.StatusNothingToFetch
)

// Notifier announces dataset updates to downstream consumers.
type Notifier interface {
	PublishDatasetUpdated(ctx context.Context, msg *amqp.DatasetUpdatedMessage) error
}

// Snapshotter writes a full copy of the dataset after an update.
type Snapshotter interface {
	WriteSnapshot(ctx context.Context, ds core.Dataset) error
}

// Outcome summarizes a run.
type Outcome struct {
	Status  Status
	RunID   string
	Windows []planner.Window
	Fetched int
	Added   int
	Skipped int
	Total   int
}

// IngestorConfig holds the planner settings of a run.
type IngestorConfig struct {
	// Bootstrap is any day in the month fetched when the store is empty.
	Bootstrap core.Date
	// MaxWindowsPerRun bounds catch-up fetching (default 1).
	MaxWindowsPerRun int
}

// Ingestor runs one load, plan, fetch, merge, save cycle.
type Ingestor struct {
	store       storage.Store
	fetcher     source.RecordFetcher
	notifiers   []Notifier
	exporter    sheets.RecordExporter
	snapshotter Snapshotter
	metrics     *metrics.Run
	logger      *log.Logger
	config      IngestorConfig
	newRunID    func() string
}

// NewIngestor creates an ingestor. Sinks and metrics are optional.
func NewIngestor(
	store storage.Store,
	fetcher source.RecordFetcher,
	config IngestorConfig,
	logger *log.Logger,
) *Ingestor {
	if config.MaxWindowsPerRun < 1 {
		config.MaxWindowsPerRun = 1
	}
	return &Ingestor{
		store:    store,
		fetcher:  fetcher,
		config:   config,
		logger:   logger.WithComponent(log.ComponentIngest),
		newRunID: uuid.NewString,
	}
}

// WithNotifier adds an update notifier.
func (i *Ingestor) WithNotifier(n Notifier) *Ingestor {
	i.notifiers = append(i.notifiers, n)
	return i
}

// WithExporter sets the spreadsheet exporter.
func (i *Ingestor) WithExporter(e sheets.RecordExporter) *Ingestor {
	i.exporter = e
	return i
}

// WithSnapshotter sets the dataset snapshot writer.
func (i *Ingestor) WithSnapshotter(s Snapshotter) *Ingestor {
	i.snapshotter = s
	return i
}

// WithMetrics sets the run metrics collector.
func (i *Ingestor) WithMetrics(m *metrics.Run) *Ingestor {
	i.metrics = m
	return i
}

// Run executes the ingest cycle for the given day. Fetch and write failures
// are returned; notification and export failures are only logged.
func (i *Ingestor) Run(ctx context.Context, today core.Date) (out Outcome, err error) {
	started := time.Now()
	out.RunID = i.newRunID()
	logger := i.logger.With(log.FieldRunID, out.RunID)

	defer func() {
		if i.metrics == nil {
			return
		}
		status := string(out.Status)
		if err != nil {
			status = metrics.StatusFailed
		}
		i.metrics.Observe(status, out.Fetched, out.Added, out.Skipped, out.Total, time.Since(started))
	}()

	dataset, err := i.store.Load(ctx)
	if err != nil {
		// read failures degrade to an empty dataset
		var readErr *storage.ReadError
		if !errors.As(err, &readErr) {
			return out, fmt.Errorf("load dataset: %w", err)
		}
		logger.WarnContext(ctx, "Store unreadable, starting empty", log.FieldError, err)
		dataset = core.Dataset{}
	}
	out.Total = len(dataset)

	window := planner.ComputeNextWindow(dataset.LatestDate(), today, i.config.Bootstrap)
	if window.Empty() {
		out.Status = StatusNothingToFetch
		logger.InfoContext(ctx, "Nothing to fetch",
			log.FieldOperation, log.OpPlan,
			log.FieldWindowStart, window.Start.ISO(),
			"today", today.ISO(),
			log.FieldTotal, out.Total)
		return out, nil
	}

	incoming, err := i.fetchWindows(ctx, logger, window, today, &out)
	if err != nil {
		return out, err
	}
	out.Fetched = len(incoming)

	result := merge.Merge(dataset, incoming)
	out.Skipped = result.Skipped
	if !result.HasNewData() {
		out.Status = StatusNoNewData
		logger.InfoContext(ctx, "No new data", log.NewFields().
			WithOperation(log.OpMerge).
			WithMerge(out.Fetched, 0, out.Skipped, out.Total).
			ToSlice()...)
		return out, nil
	}

	if err := i.store.Save(ctx, result.Dataset); err != nil {
		return out, fmt.Errorf("save dataset: %w", err)
	}
	out.Status = StatusUpdated
	out.Added = len(result.Added)
	out.Total = len(result.Dataset)

	logger.InfoContext(ctx, "Dataset updated", log.NewFields().
		WithOperation(log.OpSave).
		WithMerge(out.Fetched, out.Added, out.Skipped, out.Total).
		ToSlice()...)

	i.notify(ctx, logger, out, result)
	i.export(ctx, logger, result.Added)
	i.snapshot(ctx, logger, result.Dataset)

	return out, nil
}

func (i *Ingestor) fetchWindows(ctx context.Context, logger *log.Logger, window planner.Window, today core.Date, out *Outcome) ([]core.Record, error) {
	var incoming []core.Record
	for n := 0; n < i.config.MaxWindowsPerRun && !window.Empty(); n++ {
		records, err := i.fetcher.FetchWindow(ctx, window.Start, window.End)
		if err != nil {
			return nil, fmt.Errorf("fetch window %s: %w", window, err)
		}
		fields := log.NewFields().
			WithOperation(log.OpFetch).
			WithWindow(window.Start.ISO(), window.End.ISO())
		fields[log.FieldFetched] = len(records)
		logger.InfoContext(ctx, "Fetched window", fields.ToSlice()...)

		out.Windows = append(out.Windows, window)
		incoming = append(incoming, records...)
		window = window.Next(today)
	}
	return incoming, nil
}

func (i *Ingestor) notify(ctx context.Context, logger *log.Logger, out Outcome, result merge.Result) {
	if len(i.notifiers) == 0 {
		return
	}
	msg := &amqp.DatasetUpdatedMessage{
		RunID:     out.RunID,
		Added:     out.Added,
		Total:     out.Total,
		Stations:  core.Dataset(result.Added).Stations(),
		Timestamp: time.Now().UTC(),
	}
	if len(out.Windows) > 0 {
		msg.WindowStart = out.Windows[0].Start.ISO()
		msg.WindowEnd = out.Windows[len(out.Windows)-1].End.ISO()
	}
	if latest := result.Dataset.LatestDate(); latest != nil {
		msg.LatestDate = latest.ISO()
	}
	for _, n := range i.notifiers {
		if err := n.PublishDatasetUpdated(ctx, msg); err != nil {
			logger.WarnContext(ctx, "Failed to publish dataset update",
				log.FieldOperation, log.OpNotify,
				log.FieldError, err)
		}
	}
}

func (i *Ingestor) export(ctx context.Context, logger *log.Logger, added []core.Record) {
	if i.exporter == nil {
		return
	}
	if _, err := i.exporter.ExportRecords(ctx, added); err != nil {
		logger.WarnContext(ctx, "Failed to export records",
			log.FieldOperation, log.OpExport,
			log.FieldError, err)
	}
}

func (i *Ingestor) snapshot(ctx context.Context, logger *log.Logger, ds core.Dataset) {
	if i.snapshotter == nil {
		return
	}
	if err := i.snapshotter.WriteSnapshot(ctx, ds); err != nil {
		logger.WarnContext(ctx, "Failed to write snapshot",
			log.FieldOperation, log.OpSnapshot,
			log.FieldError, err)
	}
}
