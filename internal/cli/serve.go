package cli

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovclabs/ovc/internal/config"
	"github.com/ovclabs/ovc/internal/events"
	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/merge"
	"github.com/ovclabs/ovc/internal/server"
	"github.com/ovclabs/ovc/internal/store"
)

var (
	serveListen    string
	serveStoreURL  string
	serveDatabase  string
	serveNATSURL   string
	serveDataDir   string
	serveLogLevel  string
	serveLogFormat string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OVC merge server",
	Long: `Run the OVC merge server.

The server exposes conflict analysis, merging, and manual resolution over
HTTP, records merges in a local audit database, and publishes merge events
to NATS when configured.

Examples:
  ovc serve
  ovc serve --listen 0.0.0.0:8730 --store-url http://weaviate:8080
  ovc serve --nats-url nats://localhost:4222`,
	Run: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", envOrDefault("OVC_LISTEN", "127.0.0.1:8730"), "Listen address (host:port)")
	f.StringVar(&serveStoreURL, "store-url", envOrDefault("OVC_STORE_URL", "http://localhost:8080"), "Graph store URL")
	f.StringVar(&serveDatabase, "database", envOrDefault("OVC_DATABASE", "default"), "Default database name")
	f.StringVar(&serveNATSURL, "nats-url", os.Getenv("OVC_NATS_URL"), "NATS URL for merge events (empty disables)")
	f.StringVar(&serveDataDir, "data-dir", envOrDefault("OVC_DATA_DIR", defaultDataDir()), "Directory for audit and ledger databases")
	f.StringVar(&serveLogLevel, "log-level", envOrDefault("OVC_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	f.StringVar(&serveLogFormat, "log-format", envOrDefault("OVC_LOG_FORMAT", "json"), "Log format (json|text)")
}

func runServe(_ *cobra.Command, _ []string) {
	var level slog.Level
	switch serveLogLevel {
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
	if serveLogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if err := os.MkdirAll(serveDataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err, "path", serveDataDir)
		os.Exit(1)
	}

	client, err := graphstore.NewClient(serveStoreURL)
	if err != nil {
		logger.Error("failed to create graph store client", "error", err)
		os.Exit(1)
	}

	st, err := store.New(filepath.Join(serveDataDir, config.DatabaseFile))
	if err != nil {
		logger.Error("failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Initialize(); err != nil {
		logger.Error("failed to initialize audit store", "error", err)
		os.Exit(1)
	}

	ledger, err := store.NewLedger(filepath.Join(serveDataDir, config.LedgerFile))
	if err != nil {
		logger.Error("failed to open resolution ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()
	if err := ledger.Initialize(); err != nil {
		logger.Error("failed to initialize resolution ledger", "error", err)
		os.Exit(1)
	}

	publisher, err := events.Connect(serveNATSURL, logger)
	if err != nil {
		logger.Warn("event publisher unavailable, continuing without events", "error", err)
	}
	defer publisher.Close()

	engine := merge.NewEngine(client, config.DefaultPolicy(), ledger, st, publisher, logger)

	h, handlerCleanup := server.Handler(engine, st, ledger, client, server.DefaultServerConfig(), logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:              serveListen,
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
		logger.Info("starting ovc server",
			"listen", serveListen, "store_url", serveStoreURL, "data_dir", serveDataDir)
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

// defaultDataDir returns the default server data directory (~/.ovc-server).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/ovc-server"
	}
	return filepath.Join(home, ".ovc-server")
}

// envOrDefault returns the value of the environment variable key, or defaultVal if unset.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
