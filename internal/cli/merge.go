package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ovclabs/ovc/internal/models"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source-branch> <target-branch>",
	Short: "Merge one branch into another",
	Long: `Merge the source branch into the target branch.

When the target branch has not advanced since the branches diverged, the
merge fast-forwards. Otherwise a three-way merge runs: conflicts are
detected, eligible ones are resolved automatically with --auto, and the
business rules decide whether the merge may proceed.

Examples:
  ovc merge feature main                # Analyze and merge if clean
  ovc merge feature main --auto         # Auto-resolve eligible conflicts
  ovc merge feature main --dry-run      # Full analysis without committing
  ovc merge -m "msg" feature main       # Custom merge commit message`,
	Args: cobra.ExactArgs(2),
	Run:  runMerge,
}

var (
	mergeAuto    bool
	mergeDryRun  bool
	mergeMessage string
	mergeAuthor  string
)

func init() {
	mergeCmd.Flags().BoolVar(&mergeAuto, "auto", false, "Automatically resolve eligible conflicts")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Analyze and decide without committing")
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "", "Custom merge commit message")
	mergeCmd.Flags().StringVar(&mergeAuthor, "author", "", "Commit author (defaults to config)")
}

func runMerge(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initFullContext()
	defer c.Close()

	author := mergeAuthor
	if author == "" {
		author = c.Config.Author
	}

	opts := models.MergeOptions{
		AutoResolve: mergeAuto,
		DryRun:      mergeDryRun,
		Message:     mergeMessage,
		Author:      author,
	}

	result, err := c.Engine.MergeBranches(ctx, c.Config.Database, args[0], args[1], opts)
	if err != nil && result == nil {
		exitError("%v", err)
	}

	printMergeResult(result, args[0], args[1])

	if result.Status == models.MergeFailed {
		exitError("merge failed")
	}
}

func printMergeResult(result *models.MergeResult, sourceBranch, targetBranch string) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	switch result.Status {
	case models.MergeSuccess:
		if result.FastForward {
			green.Println("Fast-forward")
		} else {
			green.Printf("Merged '%s' into '%s'\n", sourceBranch, targetBranch)
		}
		if result.CommitID != "" {
			fmt.Printf("  Merge commit: %s\n", shortID(result.CommitID))
		}
		if result.AutoResolved {
			yellow.Printf("  Auto-resolved %d conflict(s)\n", len(result.Resolutions))
		}
		if result.Stats != nil {
			printMergeStats(result.Stats)
		}

	case models.MergeDryRunSuccess:
		green.Println("Dry run: merge would succeed")
		if result.FastForward {
			fmt.Println("  Fast-forward")
		}
		if len(result.Conflicts) > 0 {
			fmt.Printf("  %d conflict(s), all auto-resolvable\n", len(result.Conflicts))
		}

	case models.MergeManualRequired:
		yellow.Printf("Manual resolution required (%d conflict(s))\n", len(result.Conflicts))
		printConflictSummary(result.Conflicts)
		if result.Decision != nil {
			printDecision(result.Decision)
		}
		fmt.Println("\nRun 'ovc analyze' for details, then 'ovc resolve' with a decision document.")

	case models.MergeBlocked:
		red.Printf("Merge blocked (%d conflict(s), max severity %s)\n", len(result.Conflicts), result.MaxSeverity)
		printConflictSummary(result.Conflicts)
		if result.Decision != nil {
			printDecision(result.Decision)
		}

	case models.MergeFailed:
		red.Println("Merge failed")
	}

	for _, warning := range result.Warnings {
		yellow.Printf("  Warning: %s\n", warning)
	}
}

func printConflictSummary(conflicts []*models.MergeConflict) {
	for _, c := range conflicts {
		fmt.Printf("  [%s] %s: %s (%s)\n", c.Severity, c.Type, c.EntityID, shortID(c.ID))
	}
}

func printDecision(decision *models.MergeDecision) {
	fmt.Printf("  Decision: %s\n", decision.Outcome)
	for _, reason := range decision.Reasons {
		fmt.Printf("    %s\n", reason)
	}
	if decision.EstimatedResolutionMins > 0 {
		fmt.Printf("  Estimated resolution time: %d minutes\n", decision.EstimatedResolutionMins)
	}
}

func printMergeStats(stats *models.MergeStats) {
	green := color.New(color.FgGreen)
	if stats.ObjectsMerged > 0 {
		green.Printf("  %d object type(s) merged\n", stats.ObjectsMerged)
	}
	if stats.LinksMerged > 0 {
		green.Printf("  %d link type(s) merged\n", stats.LinksMerged)
	}
	if stats.PropsMerged > 0 {
		green.Printf("  %d propert(ies) merged\n", stats.PropsMerged)
	}
}
