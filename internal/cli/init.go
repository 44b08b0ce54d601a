package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovclabs/ovc/internal/config"
	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new OVC repository",
	Long: `Initialize a new OVC repository in the current directory.
This creates a .ovc directory holding the configuration, the merge audit
database, and the resolution ledger.`,
	Run: runInit,
}

var (
	initURL      string
	initDatabase string
)

func init() {
	initCmd.Flags().StringVar(&initURL, "url", "http://localhost:8080", "Graph store URL")
	initCmd.Flags().StringVar(&initDatabase, "database", "default", "Database name inside the graph store")
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if _, err := config.FindOVCRoot(); err == nil {
		exitError("ovc repository already exists")
	}

	fmt.Printf("Initializing OVC repository...\n")
	fmt.Printf("Graph store URL: %s\n", initURL)

	client, err := graphstore.NewClient(initURL)
	if err != nil {
		exitError("failed to create graph store client: %v", err)
	}

	fmt.Printf("Connecting to graph store...\n")
	if err := client.Ping(ctx); err != nil {
		exitError("failed to connect to graph store: %v", err)
	}

	if err := client.EnsureClasses(ctx); err != nil {
		exitError("failed to create bookkeeping classes: %v", err)
	}

	cfg, err := config.Initialize(initURL, initDatabase)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()
	if err := st.Initialize(); err != nil {
		exitError("failed to initialize store: %v", err)
	}

	ledger, err := store.NewLedger(cfg.LedgerPath())
	if err != nil {
		exitError("failed to create ledger: %v", err)
	}
	defer ledger.Close()
	if err := ledger.Initialize(); err != nil {
		exitError("failed to initialize ledger: %v", err)
	}

	fmt.Printf("\nInitialized empty OVC repository in .ovc/\n")
	fmt.Printf("Tracking database %q at %s\n", initDatabase, initURL)
}
