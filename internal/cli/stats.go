package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show resolution strategy statistics",
	Long:  `Show per-strategy attempt counts and success rates from the resolution ledger.`,
	Run:   runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	stats, err := c.Ledger.StrategyStats()
	if err != nil {
		exitError("%v", err)
	}

	if len(stats) == 0 {
		fmt.Println("No resolution attempts recorded.")
		return
	}

	fmt.Printf("  %-24s  %8s  %9s  %s\n", "Strategy", "Attempts", "Successes", "Rate")
	for _, stat := range stats {
		fmt.Printf("  %-24s  %8d  %9d  %.0f%%\n",
			stat.Strategy, stat.Attempts, stat.Successes, stat.SuccessRate*100)
	}
}
