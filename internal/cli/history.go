package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ovclabs/ovc/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the merge audit history",
	Long: `Show recorded merge invocations in reverse chronological order.

Examples:
  ovc history
  ovc history --limit 10`,
	Run: runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	records, err := c.Store.ListMergeRecords(historyLimit)
	if err != nil {
		exitError("%v", err)
	}

	if len(records) == 0 {
		fmt.Println("No merges recorded.")
		return
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	for _, record := range records {
		printer := yellow
		switch record.Status {
		case models.MergeSuccess, models.MergeDryRunSuccess:
			printer = green
		case models.MergeBlocked, models.MergeFailed:
			printer = red
		}

		printer.Printf("%s  %s -> %s  %s\n",
			record.CreatedAt.Local().Format(time.DateTime),
			record.SourceBranch, record.TargetBranch, record.Status)

		if record.CommitID != "" {
			fmt.Printf("    commit: %s\n", shortID(record.CommitID))
		}
		if record.ConflictCount > 0 {
			fmt.Printf("    conflicts: %d (max severity %s)", record.ConflictCount, record.MaxSeverity)
			if record.AutoResolved {
				fmt.Printf(", auto-resolved")
			}
			fmt.Println()
		}
		if record.Decision != "" {
			fmt.Printf("    decision: %s\n", record.Decision)
		}
	}
}
