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

var resolveCmd = &cobra.Command{
	Use:   "resolve <decision-file>",
	Short: "Apply a manual resolution document",
	Long: `Complete a merge that required manual resolution by applying a
decision document. The document names the branches and one resolution per
conflict that could not be resolved automatically.

Document format (JSON):
  {
    "source_branch": "feature",
    "target_branch": "main",
    "author": "alice",
    "message": "Merge feature after review",
    "resolutions": [
      {"conflict_id": "abc123", "action": {"action": "use_source"}},
      {"conflict_id": "def456", "action": {"action": "accept_deletion"}}
    ]
  }

Examples:
  ovc resolve decisions.json`,
	Args: cobra.ExactArgs(1),
	Run:  runResolve,
}

func runResolve(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	data, err := os.ReadFile(args[0])
	if err != nil {
		exitError("failed to read decision file: %v", err)
	}

	var doc models.ManualResolutionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		exitError("failed to parse decision file: %v", err)
	}
	if doc.SourceBranch == "" || doc.TargetBranch == "" {
		exitError("decision file must name source_branch and target_branch")
	}
	if len(doc.Resolutions) == 0 {
		exitError("decision file contains no resolutions")
	}

	c := initFullContext()
	defer c.Close()

	if doc.Author == "" {
		doc.Author = c.Config.Author
	}

	result, err := c.Engine.ApplyManualResolution(ctx, c.Config.Database, &doc)
	if err != nil && result == nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	switch result.Status {
	case models.MergeSuccess:
		green.Printf("Merged '%s' into '%s' with %d resolution(s)\n",
			doc.SourceBranch, doc.TargetBranch, len(result.Resolutions))
		fmt.Printf("  Merge commit: %s\n", shortID(result.CommitID))
		for _, warning := range result.Warnings {
			yellow.Printf("  Warning: %s\n", warning)
		}
	default:
		printMergeResult(result, doc.SourceBranch, doc.TargetBranch)
		if result.Status == models.MergeFailed {
			exitError("resolution failed")
		}
	}
}
