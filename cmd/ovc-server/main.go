// Command ovc-server runs the OVC merge server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ovclabs/ovc/internal/config"
	"github.com/ovclabs/ovc/internal/events"
	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/merge"
	"github.com/ovclabs/ovc/internal/server"
	"github.com/ovclabs/ovc/internal/store"
)

func main() {
	listen := flag.String("listen", envOrDefault("OVC_LISTEN", "0.0.0.0:8730"), "Listen address")
	storeURL := flag.String("store-url", envOrDefault("OVC_STORE_URL", "http://localhost:8080"), "Graph store URL")
	natsURL := flag.String("nats-url", os.Getenv("OVC_NATS_URL"), "NATS URL for merge events (empty disables)")
	dataDir := flag.String("data-dir", envOrDefault("OVC_DATA_DIR", "/var/lib/ovc-server"), "Data directory")
	logLevel := flag.String("log-level", envOrDefault("OVC_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("OVC_LOG_FORMAT", "json"), "Log format (json, text)")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err, "path", *dataDir)
		os.Exit(1)
	}

	client, err := graphstore.NewClient(*storeURL)
	if err != nil {
		logger.Error("failed to create graph store client", "error", err)
		os.Exit(1)
	}

	st, err := store.New(filepath.Join(*dataDir, config.DatabaseFile))
	if err != nil {
		logger.Error("failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Initialize(); err != nil {
		logger.Error("failed to initialize audit store", "error", err)
		os.Exit(1)
	}

	ledger, err := store.NewLedger(filepath.Join(*dataDir, config.LedgerFile))
	if err != nil {
		logger.Error("failed to open resolution ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()
	if err := ledger.Initialize(); err != nil {
		logger.Error("failed to initialize resolution ledger", "error", err)
		os.Exit(1)
	}

	publisher, err := events.Connect(*natsURL, logger)
	if err != nil {
		logger.Warn("event publisher unavailable, continuing without events", "error", err)
	}
	defer publisher.Close()

	engine := merge.NewEngine(client, config.DefaultPolicy(), ledger, st, publisher, logger)

	h, handlerCleanup := server.Handler(engine, st, ledger, client, server.DefaultServerConfig(), logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:              *listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting ovc-server", "listen", *listen, "store_url", *storeURL, "data_dir", *dataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
