// Releasepulsed serves the feedback analysis query API.
//
// The daemon exposes the latest pipeline run stored in SQLite over HTTP,
// including the RICE backlog, theme signal history, regression and
// persistence queries, and Prometheus metrics.
//
// Usage:
//
//	# Start with defaults (releasepulse.db, port 8080)
//	releasepulsed
//
//	# Configure via file and environment
//	releasepulsed -config config.yaml
//	RELEASEPULSE_SERVER_HTTP_PORT=9000 releasepulsed
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/releasepulse/internal/config"
	"github.com/fyrsmithlabs/releasepulse/internal/httpapi"
	"github.com/fyrsmithlabs/releasepulse/internal/logging"
	"github.com/fyrsmithlabs/releasepulse/internal/store"
	"github.com/fyrsmithlabs/releasepulse/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("releasepulsed %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("releasepulsed: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("trace shutdown failed", zap.Error(err))
		}
	}()

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	server, err := httpapi.NewServer(st, logger, &httpapi.Config{Port: cfg.Server.Port})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
