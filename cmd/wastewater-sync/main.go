package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"wastewater/internal/backend"
	"wastewater/internal/cli"
	"wastewater/internal/config"
	"wastewater/internal/core"
	"wastewater/internal/log"
	"wastewater/internal/metrics"
	"wastewater/internal/services"
)

func main() {
	os.Exit(run())
}

// run performs a single ingest and returns the process exit code.
func run() int {
	fileErr := cli.LoadEnvFile()

	cfg, cfgErr := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, os.Stderr)
	if fileErr != nil {
		logger.Error("Failed to load config file", log.FieldError, fileErr)
		return 1
	}
	if cfgErr != nil {
		logger.Error("Configuration validation failed", log.FieldError, cfgErr)
		return 1
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	runMetrics := metrics.NewRun()
	defer writeMetrics(logger, cfg, runMetrics)

	_, err := ingest(ctx, cfg, logger, runMetrics, core.DateOf(time.Now()))
	if err != nil {
		logger.Error("Ingest run failed", log.FieldError, err)
	}
	return exitCode(err)
}

// exitCode maps an ingest result to the process status. Every successful
// outcome, including "no new data" and "nothing to fetch", exits 0.
func exitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

func ingest(ctx context.Context, cfg *config.Config, logger *log.Logger, runMetrics *metrics.Run, today core.Date) (services.Outcome, error) {
	bootstrap, err := cfg.Bootstrap()
	if err != nil {
		return services.Outcome{}, err
	}

	factory := backend.NewFactory(cfg, logger)

	store, closeStore, err := factory.Store()
	if err != nil {
		return services.Outcome{}, err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close store", log.FieldError, err)
		}
	}()

	fetcher, err := factory.Fetcher()
	if err != nil {
		return services.Outcome{}, err
	}

	ingestor := services.NewIngestor(store, fetcher, services.IngestorConfig{
		Bootstrap:        bootstrap,
		MaxWindowsPerRun: cfg.MaxWindowsPerRun,
	}, logger).WithMetrics(runMetrics)

	// sinks are optional; a broken sink must not block ingestion
	if client, err := factory.AMQP(); err != nil {
		logger.Warn("Notifications disabled", log.FieldError, err)
	} else if client != nil {
		defer client.Close()
		ingestor.WithNotifier(client)
	}
	if publisher, err := factory.MQTT(ctx); err != nil {
		logger.Warn("MQTT notifications disabled", log.FieldError, err)
	} else if publisher != nil {
		defer publisher.Close()
		ingestor.WithNotifier(publisher)
	}
	if exporter, err := factory.Exporter(ctx); err != nil {
		logger.Warn("Sheets export disabled", log.FieldError, err)
	} else if exporter != nil {
		ingestor.WithExporter(exporter)
	}
	if snapshots := factory.Snapshotter(); snapshots != nil {
		ingestor.WithSnapshotter(snapshots)
	}

	started := time.Now()
	outcome, err := ingestor.Run(ctx, today)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return outcome, fmt.Errorf("interrupted: %w", err)
		}
		return outcome, err
	}

	logger.Info("Ingest run finished",
		"status", string(outcome.Status),
		log.FieldRunID, outcome.RunID,
		log.FieldAdded, outcome.Added,
		log.FieldTotal, outcome.Total,
		log.FieldDurationHuman, time.Since(started).String())
	return outcome, nil
}

func writeMetrics(logger *log.Logger, cfg *config.Config, runMetrics *metrics.Run) {
	if cfg.MetricsTextfile == "" {
		return
	}
	if err := runMetrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		logger.Warn("Failed to write metrics textfile", log.FieldError, err, "path", cfg.MetricsTextfile)
	}
}
