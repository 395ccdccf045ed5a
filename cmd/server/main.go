package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	// Flags override environment variables.
	flags := pflag.NewFlagSet("scriptgate", pflag.ExitOnError)
	flags.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flags.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen address")
	flags.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flags.StringVar(&cfg.Storage.ScriptsDir, "scripts-dir", cfg.Storage.ScriptsDir, "Install userscripts found below this directory")
	flags.StringVar(&cfg.Storage.GrantsFile, "grants-file", cfg.Storage.GrantsFile, "YAML file persisting per-domain permission grants")
	flags.StringVar(&cfg.Storage.DownloadDir, "download-dir", cfg.Storage.DownloadDir, "Directory receiving downloads")
	flags.StringVar(&cfg.Policy.BaselineFile, "baseline", cfg.Policy.BaselineFile, "TOML file overriding the built-in network policy")
	flags.StringSliceVar(&cfg.Locale.Preferred, "locale", cfg.Locale.Preferred, "Preferred locales, most preferred first")
	flags.StringSliceVar(&cfg.Server.AllowedOrigins, "allowed-origin", cfg.Server.AllowedOrigins, "Cross-origin callers of the API, same-origin only when empty")
	flags.StringVar(&cfg.Server.APITokenFile, "api-token-file", cfg.Server.APITokenFile, "File holding the management API token, created when missing")
	_ = flags.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
	undo := zap.ReplaceGlobals(logger.Logger)
	defer undo()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
		if err := srv.Close(); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
			os.Exit(1)
		}
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}
}
