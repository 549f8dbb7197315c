package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"wastewater/internal/amqp"
	"wastewater/internal/backend"
	"wastewater/internal/cli"
	"wastewater/internal/config"
	apphttp "wastewater/internal/http"
	"wastewater/internal/log"
	"wastewater/internal/metrics"
	appweb "wastewater/web"
)

func main() {
	fileErr := cli.LoadEnvFile()

	cfg, cfgErr := cli.LoadAndValidateConfig((*config.Config).ValidateServer)
	logger := cli.SetupLogger(cfg, os.Stdout)
	if fileErr != nil {
		logger.Error("Failed to load config file", log.FieldError, fileErr)
		os.Exit(1)
	}
	if cfgErr != nil {
		logger.Error("Configuration validation failed", log.FieldError, cfgErr)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	factory := backend.NewFactory(cfg, logger)
	store, closeStore, err := factory.Loader()
	if err != nil {
		logger.Error("Failed to initialize store", log.FieldError, err)
		os.Exit(1)
	}
	defer closeStore()

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
		static = nil
	}

	srv := apphttp.NewServer(apphttp.ServerConfig{
		Addr:           ":" + cfg.Port,
		CacheTTL:       cfg.CacheTTL,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Static:         static,
	}, store, metrics.NewHTTP(), logger)

	// Invalidate the dataset cache as soon as an ingest run reports new data.
	amqpClient, err := factory.AMQP()
	if err != nil {
		logger.Warn("Dataset update notifications disabled", log.FieldError, err)
	} else if amqpClient != nil {
		defer amqpClient.Close()
		go consumeUpdates(ctx, logger, amqpClient, srv)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting wastewater server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"store", cfg.StoreBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func consumeUpdates(ctx context.Context, logger *log.Logger, client *amqp.Client, srv *apphttp.Server) {
	err := client.ConsumeDatasetUpdated(ctx, srv.HandleDatasetUpdated)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
	}
}
