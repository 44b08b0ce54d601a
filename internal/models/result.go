package models

import "time"

// MergeStatus is the terminal status of a merge invocation.
type MergeStatus string

const (
	MergeSuccess        MergeStatus = "success"
	MergeManualRequired MergeStatus = "manual_required"
	MergeBlocked        MergeStatus = "blocked"
	MergeFailed         MergeStatus = "failed"
	MergeDryRunSuccess  MergeStatus = "dry_run_success"
)

// MergeOptions configures merge behavior.
type MergeOptions struct {
	AutoResolve bool   // Attempt automatic resolution of eligible conflicts
	DryRun      bool   // Stop after resolution, do not apply
	Message     string // Custom merge commit message
	Author      string // Commit author
}

// MergeStats aggregates conflict counts by type.
type MergeStats struct {
	ByType        map[ConflictType]int `json:"by_type"`
	ObjectsMerged int                  `json:"objects_merged"`
	LinksMerged   int                  `json:"links_merged"`
	PropsMerged   int                  `json:"props_merged"`
}

// MergeResult contains the outcome of a merge operation.
type MergeResult struct {
	Status       MergeStatus           `json:"status"`
	FastForward  bool                  `json:"fast_forward,omitempty"`
	CommitID     string                `json:"commit_id,omitempty"`
	Conflicts    []*MergeConflict      `json:"conflicts,omitempty"`
	Resolutions  []*ConflictResolution `json:"resolutions,omitempty"`
	Decision     *MergeDecision        `json:"decision,omitempty"`
	Warnings     []string              `json:"warnings,omitempty"`
	Duration     time.Duration         `json:"duration"`
	AutoResolved bool                  `json:"auto_resolved"`
	MaxSeverity  Severity              `json:"max_severity"`
	Stats        *MergeStats           `json:"stats,omitempty"`
}

// CountByType builds the per-type conflict counts for a conflict set.
func CountByType(conflicts []*MergeConflict) map[ConflictType]int {
	counts := make(map[ConflictType]int)
	for _, c := range conflicts {
		counts[c.Type]++
	}
	return counts
}

// ConflictReport is the read-only result of conflict analysis.
type ConflictReport struct {
	SourceBranch       string               `json:"source_branch"`
	TargetBranch       string               `json:"target_branch"`
	AncestorCommitID   string               `json:"ancestor_commit_id,omitempty"`
	TotalConflicts     int                  `json:"total_conflicts"`
	ByType             map[ConflictType]int `json:"by_type"`
	MaxSeverity        Severity             `json:"max_severity"`
	AutoResolvableCount int                 `json:"auto_resolvable_count"`
	Conflicts          []*MergeConflict     `json:"conflicts"`
}
