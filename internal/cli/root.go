// Package cli implements the command-line interface for OVC.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ovclabs/ovc/internal/config"
	"github.com/ovclabs/ovc/internal/events"
	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/merge"
	"github.com/ovclabs/ovc/internal/store"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  *store.Store
	Ledger *store.Ledger
	Client graphstore.ClientInterface
	Events *events.Publisher
	Engine *merge.Engine
	Logger *slog.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Ledger != nil {
		c.Ledger.Close()
	}
	c.Events.Close()
}

// initContext initializes config and local stores (no client)
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}
	if err := st.Initialize(); err != nil {
		st.Close()
		exitError("failed to initialize store: %v", err)
	}

	ledger, err := store.NewLedger(cfg.LedgerPath())
	if err != nil {
		st.Close()
		exitError("failed to open ledger: %v", err)
	}
	if err := ledger.Initialize(); err != nil {
		st.Close()
		ledger.Close()
		exitError("failed to initialize ledger: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	return &cmdContext{Config: cfg, Store: st, Ledger: ledger, Logger: logger}
}

// initFullContext initializes config, stores, the graph store client, and
// the merge engine
func initFullContext() *cmdContext {
	ctx := initContext()

	client, err := graphstore.NewClient(ctx.Config.StoreURL)
	if err != nil {
		ctx.Close()
		exitError("failed to create graph store client: %v", err)
	}
	ctx.Client = client

	publisher, err := events.Connect(ctx.Config.NATSURL, ctx.Logger)
	if err != nil {
		ctx.Logger.Warn("event publisher unavailable", "error", err)
	}
	ctx.Events = publisher

	ctx.Engine = merge.NewEngine(client, ctx.Config.Policy, ctx.Ledger, ctx.Store, publisher, ctx.Logger)
	return ctx
}

var rootCmd = &cobra.Command{
	Use:   "ovc",
	Short: "Ontology Version Control",
	Long: `OVC (Ontology Version Control) manages branched schema evolution for
graph databases. Analyze conflicts between branches, merge with automatic
resolution strategies, and keep a full audit trail of every merge.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
