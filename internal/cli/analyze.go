package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ovclabs/ovc/internal/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source-branch> <target-branch>",
	Short: "Analyze merge conflicts between two branches",
	Long: `Analyze the conflicts a merge of the source branch into the target
branch would produce, without touching either branch.

Examples:
  ovc analyze feature main
  ovc analyze feature main --json`,
	Args: cobra.ExactArgs(2),
	Run:  runAnalyze,
}

var analyzeJSON bool

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full report as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	report, err := c.Engine.AnalyzeConflicts(ctx, c.Config.Database, args[0], args[1])
	if err != nil {
		exitError("%v", err)
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			exitError("%v", err)
		}
		return
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	if report.TotalConflicts == 0 {
		green.Printf("No conflicts between '%s' and '%s'\n", args[0], args[1])
		return
	}

	fmt.Printf("%d conflict(s) between '%s' and '%s' (max severity: %s)\n\n",
		report.TotalConflicts, args[0], args[1], report.MaxSeverity)

	for _, conflict := range report.Conflicts {
		printer := yellow
		if conflict.Severity >= models.SeverityError {
			printer = red
		}
		printer.Printf("  [%s] %s\n", conflict.Severity, conflict.Type)
		fmt.Printf("      %s: %s\n", conflict.EntityType, conflict.EntityID)
		fmt.Printf("      %s\n", conflict.Description)
		if conflict.AutoResolvable {
			green.Printf("      auto-resolvable\n")
		}
		if conflict.MigrationImpact != nil && conflict.MigrationImpact.DataMigrationRequired {
			yellow.Printf("      data migration required: %s\n", conflict.MigrationImpact.Description)
		}
	}

	fmt.Printf("\n%d of %d conflicts are auto-resolvable\n", report.AutoResolvableCount, report.TotalConflicts)
}
