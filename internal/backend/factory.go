// Package backend builds the store, source and sink implementations selected
// by configuration.
package backend

import (
	"context"
	"fmt"

	"wastewater/internal/amqp"
	"wastewater/internal/config"
	"wastewater/internal/log"
	"wastewater/internal/mqtt"
	"wastewater/internal/sheets"
	gsheet "wastewater/internal/sheets/google"
	"wastewater/internal/snapshot"
	"wastewater/internal/source"
	sourcemem "wastewater/internal/source/memory"
	"wastewater/internal/source/remote"
	"wastewater/internal/storage"
)

// CleanupFunc releases a backend's resources.
type CleanupFunc func() error

func noCleanup() error { return nil }

// Store types
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Source types
const (
	SourceRemote = "remote"
	SourceMemory = "memory"
)

// Factory creates backends from the application config.
type Factory struct {
	cfg    *config.Config
	logger *log.Logger
}

func NewFactory(cfg *config.Config, logger *log.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// Store returns the configured persistence store for the ingest job. A
// malformed store file is backed up before the job overwrites it.
func (f *Factory) Store() (storage.Store, CleanupFunc, error) {
	return f.store(true)
}

// Loader returns the configured store for readers. It never writes to the
// store location.
func (f *Factory) Loader() (storage.Loader, CleanupFunc, error) {
	return f.store(false)
}

func (f *Factory) store(backupCorrupt bool) (storage.Store, CleanupFunc, error) {
	switch f.cfg.StoreBackend {
	case StoreFile:
		store := storage.NewFileStore(f.cfg.StorePath)
		if backupCorrupt {
			store.WithCorruptBackup()
		}
		f.logger.Info("Initialized file store", "path", f.cfg.StorePath)
		return store, noCleanup, nil
	case StoreSQLite:
		store, err := storage.NewSQLiteStore(f.cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", f.cfg.SQLiteDBPath)
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", f.cfg.StoreBackend)
	}
}

// Fetcher returns the configured record source.
func (f *Factory) Fetcher() (source.RecordFetcher, error) {
	switch f.cfg.SourceBackend {
	case SourceRemote:
		f.logger.Info("Initialized remote source",
			"url", f.cfg.SourceURL,
			"timeout", f.cfg.SourceTimeout,
			"max_retries", f.cfg.SourceMaxRetries)
		return remote.New(remote.Config{
			URL:        f.cfg.SourceURL,
			Timeout:    f.cfg.SourceTimeout,
			MaxRetries: f.cfg.SourceMaxRetries,
		}), nil
	case SourceMemory:
		fetcher, err := sourcemem.NewFromFile(f.cfg.SourceSeedFile)
		if err != nil {
			return nil, fmt.Errorf("initialize memory source: %w", err)
		}
		f.logger.Info("Initialized memory source", "seed_file", f.cfg.SourceSeedFile)
		return fetcher, nil
	default:
		return nil, fmt.Errorf("unsupported source backend: %s", f.cfg.SourceBackend)
	}
}

// AMQP connects to the broker when AMQP_URL is set; otherwise it returns nil.
func (f *Factory) AMQP() (*amqp.Client, error) {
	if f.cfg.AMQPURL == "" {
		f.logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil, nil
	}
	client, err := amqp.NewClient(f.cfg.AMQPURL, f.cfg.AMQPExchange, f.cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("initialize AMQP client: %w", err)
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", f.cfg.AMQPExchange,
		"queue", f.cfg.AMQPQueue)
	return client, nil
}

// MQTT connects to the broker when MQTT_BROKER_URL is set; otherwise it
// returns nil.
func (f *Factory) MQTT(ctx context.Context) (*mqtt.Publisher, error) {
	if f.cfg.MQTTBrokerURL == "" {
		f.logger.Info("MQTT disabled - no MQTT_BROKER_URL provided")
		return nil, nil
	}
	publisher, err := mqtt.NewPublisher(ctx, mqtt.Config{
		BrokerURL:   f.cfg.MQTTBrokerURL,
		ClientID:    f.cfg.MQTTClientID,
		TopicPrefix: f.cfg.MQTTTopicPrefix,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize MQTT publisher: %w", err)
	}
	f.logger.Info("Initialized MQTT publisher",
		"broker", f.cfg.MQTTBrokerURL,
		"topic", publisher.DatasetTopic())
	return publisher, nil
}

// Snapshotter returns the Parquet snapshot writer when SNAPSHOT_PATH is set;
// otherwise it returns nil.
func (f *Factory) Snapshotter() *snapshot.Writer {
	if f.cfg.SnapshotPath == "" {
		return nil
	}
	f.logger.Info("Initialized Parquet snapshot", "path", f.cfg.SnapshotPath)
	return snapshot.NewWriter(f.cfg.SnapshotPath)
}

// Exporter creates the Sheets exporter when GOOGLE_SPREADSHEET_ID is set;
// otherwise it returns nil.
func (f *Factory) Exporter(ctx context.Context) (sheets.RecordExporter, error) {
	if f.cfg.GoogleSpreadsheetID == "" {
		f.logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return nil, nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      f.cfg.GoogleSpreadsheetID,
		SheetName:          f.cfg.GoogleSheetName,
		ServiceAccountJSON: f.cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: f.cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets exporter: %w", err)
	}
	f.logger.Info("Initialized Google Sheets exporter",
		"spreadsheet_id", f.cfg.GoogleSpreadsheetID,
		"sheet", f.cfg.GoogleSheetName)
	return client, nil
}
