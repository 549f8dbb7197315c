// Package cli provides the initialization shared by cmd/wastewater-sync and
// cmd/wastewater.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"wastewater/internal/config"
	"wastewater/internal/log"
)

// LoadEnvFile loads the .env file for local development, then the YAML file
// named by CONFIG_FILE if set. A missing .env is ignored; a broken
// CONFIG_FILE is an error.
func LoadEnvFile() error {
	_ = godotenv.Load()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFile(path)
	}
	return nil
}

// SetupLogger builds the application logger from the runtime settings and
// sets it as the slog default. An invalid LOG_LEVEL falls back to info.
func SetupLogger(cfg *config.Config, out io.Writer) *log.Logger {
	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Component: log.ComponentApp,
		Env:       cfg.AppEnv,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and checks it with validate,
// typically (*config.Config).Validate or ValidateServer.
func LoadAndValidateConfig(validate func(*config.Config) error) (*config.Config, error) {
	cfg := config.Load()
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
