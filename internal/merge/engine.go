// Package merge implements conflict analysis and three-way merging of
// branch schema states: ancestry resolution, conflict detection and
// classification, automated resolution strategies, the business rule
// overlay, and atomic merge application.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ovclabs/ovc/internal/config"
	"github.com/ovclabs/ovc/internal/events"
	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/metrics"
	"github.com/ovclabs/ovc/internal/models"
	"github.com/ovclabs/ovc/internal/store"
)

// AuditSink persists merge audit records. A nil sink disables auditing.
type AuditSink interface {
	SaveMergeRecord(record *store.MergeRecord) error
}

// Engine orchestrates the full merge pipeline against one graph store.
type Engine struct {
	client   graphstore.ClientInterface
	policy   config.Policy
	detector *Detector
	resolver *Resolver
	overlay  *Overlay
	ancestry *AncestryResolver
	locks    *branchLocks
	events   *events.Publisher
	audit    AuditSink
	logger   *slog.Logger
}

// NewEngine creates a merge engine. The ledger, audit sink, and publisher
// may each be nil to disable the corresponding side channel.
func NewEngine(client graphstore.ClientInterface, policy config.Policy, ledger AttemptRecorder, audit AuditSink, publisher *events.Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:   client,
		policy:   policy,
		detector: NewDetector(logger),
		resolver: NewResolver(ledger, logger),
		overlay:  NewOverlay(policy, logger),
		ancestry: NewAncestryResolver(client, policy.MaxAncestorDepth, logger),
		locks:    newBranchLocks(),
		events:   publisher,
		audit:    audit,
		logger:   logger,
	}
}

// analysis bundles everything read and computed before a merge decision.
type analysis struct {
	database     string
	sourceBranch string
	targetBranch string
	sourceHead   string
	targetHead   string
	ancestorID   string
	source       *models.SchemaSnapshot
	target       *models.SchemaSnapshot
	ancestor     *models.SchemaSnapshot
	conflicts    []*models.MergeConflict
}

// analyze reads both branch states, resolves the common ancestor, and
// runs detection plus policy escalation.
func (e *Engine) analyze(ctx context.Context, database, sourceBranch, targetBranch string) (*analysis, error) {
	sourceHead, err := e.client.GetBranchHead(ctx, database, sourceBranch)
	if err != nil {
		return nil, fmt.Errorf("resolve source branch: %w", err)
	}
	targetHead, err := e.client.GetBranchHead(ctx, database, targetBranch)
	if err != nil {
		return nil, fmt.Errorf("resolve target branch: %w", err)
	}

	source, err := e.client.GetSchemaAtCommit(ctx, database, sourceHead)
	if err != nil {
		return nil, fmt.Errorf("load source schema: %w", err)
	}
	target, err := e.client.GetSchemaAtCommit(ctx, database, targetHead)
	if err != nil {
		return nil, fmt.Errorf("load target schema: %w", err)
	}

	a := &analysis{
		database:     database,
		sourceBranch: sourceBranch,
		targetBranch: targetBranch,
		sourceHead:   sourceHead,
		targetHead:   targetHead,
		source:       source,
		target:       target,
	}

	ancestorCtx := ctx
	if timeout := e.policy.AncestorTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ancestorCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if ancestor := e.ancestry.FindCommonAncestor(ancestorCtx, database, sourceHead, targetHead); ancestor != nil {
		a.ancestorID = ancestor.ID
		snapshot, err := e.client.GetSchemaAtCommit(ctx, database, ancestor.ID)
		if err != nil {
			e.logger.Warn("ancestor snapshot unreadable, falling back to pairwise diff",
				"database", database, "commit", ancestor.ID, "error", err)
		} else {
			a.ancestor = snapshot
		}
	}

	a.conflicts = e.detector.Detect(ctx, source, target, a.ancestor)
	e.overlay.Escalate(a.conflicts)

	e.logger.Info("conflict analysis complete",
		"database", database,
		"source", sourceBranch, "target", targetBranch,
		"ancestor", a.ancestorID,
		"conflicts", len(a.conflicts),
		"max_severity", models.MaxSeverity(a.conflicts).String())

	return a, nil
}

// AnalyzeConflicts runs detection and classification without touching any
// branch. The returned report carries suggested resolutions on the
// conflicts themselves.
func (e *Engine) AnalyzeConflicts(ctx context.Context, database, sourceBranch, targetBranch string) (*models.ConflictReport, error) {
	a, err := e.analyze(ctx, database, sourceBranch, targetBranch)
	if err != nil {
		return nil, err
	}

	report := &models.ConflictReport{
		SourceBranch:     sourceBranch,
		TargetBranch:     targetBranch,
		AncestorCommitID: a.ancestorID,
		TotalConflicts:   len(a.conflicts),
		ByType:           models.CountByType(a.conflicts),
		MaxSeverity:      models.MaxSeverity(a.conflicts),
		Conflicts:        a.conflicts,
	}
	for _, c := range a.conflicts {
		if c.AutoResolvable {
			report.AutoResolvableCount++
		}
	}
	return report, nil
}

// MergeBranches performs a full merge of the source branch into the
// target branch. The target branch only advances when the result status
// is success; every other status leaves both branches untouched.
func (e *Engine) MergeBranches(ctx context.Context, database, sourceBranch, targetBranch string, opts models.MergeOptions) (*models.MergeResult, error) {
	started := time.Now()

	a, err := e.analyze(ctx, database, sourceBranch, targetBranch)
	if err != nil {
		return nil, err
	}

	result := &models.MergeResult{Status: models.MergeManualRequired}
	defer func() {
		e.finish(started, a, opts, result)
	}()

	if a.sourceHead == a.targetHead || a.ancestorID == a.sourceHead {
		result.Status = models.MergeSuccess
		result.Warnings = append(result.Warnings, "already up to date")
		return result, nil
	}

	// The target head being the common ancestor means the target gained
	// nothing since the branches diverged: fast-forward.
	if a.ancestorID == a.targetHead {
		result.FastForward = true
		if opts.DryRun {
			result.Status = models.MergeDryRunSuccess
			return result, nil
		}
		commitID, err := e.fastForward(ctx, a, opts)
		if err != nil {
			result.Status = models.MergeFailed
			result.Warnings = append(result.Warnings, err.Error())
			return result, err
		}
		result.Status = models.MergeSuccess
		result.CommitID = commitID
		return result, nil
	}

	resolutions, _ := e.resolver.ResolveAll(a.conflicts)
	impact := e.overlay.AnalyzeImpact(a.conflicts)
	risk := e.overlay.AssessRisk(a.conflicts, impact)
	decision := e.overlay.Decide(a.conflicts, resolutions, impact, risk)

	result.Conflicts = a.conflicts
	result.Resolutions = resolutions
	result.Decision = decision

	switch decision.Outcome {
	case models.DecisionRejectMerge:
		result.Status = models.MergeBlocked
		return result, nil

	case models.DecisionDefer:
		result.Status = models.MergeManualRequired
		result.Warnings = append(result.Warnings, decision.Reasons...)
		return result, nil

	case models.DecisionAutoMerge:
		if len(a.conflicts) > 0 && !opts.AutoResolve {
			result.Status = models.MergeManualRequired
			result.Warnings = append(result.Warnings, "all conflicts are auto-resolvable; re-run with auto-resolve enabled")
			return result, nil
		}
		if opts.DryRun {
			result.Status = models.MergeDryRunSuccess
			result.AutoResolved = len(a.conflicts) > 0
			return result, nil
		}
		commitID, stats, warnings, err := e.apply(ctx, a, resolutions, opts)
		if err != nil {
			result.Status = models.MergeFailed
			result.Warnings = append(result.Warnings, err.Error())
			return result, err
		}
		result.Status = models.MergeSuccess
		result.CommitID = commitID
		result.Stats = stats
		result.Warnings = append(result.Warnings, warnings...)
		result.AutoResolved = len(a.conflicts) > 0
		return result, nil

	default:
		result.Status = models.MergeManualRequired
		return result, nil
	}
}

// ApplyManualResolution completes a previously analyzed merge using a
// human-authored resolution document. Every conflict without an automated
// resolution must be covered by the document; blocking conflicts cannot
// be overridden.
func (e *Engine) ApplyManualResolution(ctx context.Context, database string, doc *models.ManualResolutionDoc) (*models.MergeResult, error) {
	started := time.Now()

	a, err := e.analyze(ctx, database, doc.SourceBranch, doc.TargetBranch)
	if err != nil {
		return nil, err
	}

	opts := models.MergeOptions{Message: doc.Message, Author: doc.Author}
	result := &models.MergeResult{Status: models.MergeManualRequired, Conflicts: a.conflicts}
	defer func() {
		e.finish(started, a, opts, result)
	}()

	if models.MaxSeverity(a.conflicts) >= models.SeverityBlock {
		result.Status = models.MergeBlocked
		result.Warnings = append(result.Warnings, "blocking conflicts cannot be resolved by decision document")
		return result, nil
	}

	known := make(map[string]*models.MergeConflict, len(a.conflicts))
	for _, c := range a.conflicts {
		known[c.ID] = c
	}

	manual := make(map[string]*models.ConflictResolution, len(doc.Resolutions))
	for _, res := range doc.Resolutions {
		if _, ok := known[res.ConflictID]; !ok {
			result.Status = models.MergeFailed
			err := fmt.Errorf("resolution references unknown conflict %q", res.ConflictID)
			result.Warnings = append(result.Warnings, err.Error())
			return result, err
		}
		res.Type = models.ResolutionManual
		res.Automated = false
		manual[res.ConflictID] = res
	}

	var resolutions []*models.ConflictResolution
	var uncovered []string
	for _, c := range a.conflicts {
		if res, ok := manual[c.ID]; ok {
			resolutions = append(resolutions, res)
			continue
		}
		if res := e.resolver.Resolve(c); res != nil && res.FullyResolved() {
			resolutions = append(resolutions, res)
			continue
		}
		uncovered = append(uncovered, c.ID)
	}
	if len(uncovered) > 0 {
		result.Status = models.MergeManualRequired
		for _, id := range uncovered {
			result.Warnings = append(result.Warnings, fmt.Sprintf("conflict %s has no resolution", id))
		}
		return result, nil
	}

	// A complete decision document does not bypass the overlay's
	// rejection rules.
	impact := e.overlay.AnalyzeImpact(a.conflicts)
	risk := e.overlay.AssessRisk(a.conflicts, impact)
	if reason, rejected := e.overlay.RejectionReason(a.conflicts, impact, risk); rejected {
		result.Status = models.MergeBlocked
		result.Warnings = append(result.Warnings, reason)
		return result, nil
	}

	result.Resolutions = resolutions

	commitID, stats, warnings, err := e.apply(ctx, a, resolutions, opts)
	if err != nil {
		result.Status = models.MergeFailed
		result.Warnings = append(result.Warnings, err.Error())
		return result, err
	}
	result.Status = models.MergeSuccess
	result.CommitID = commitID
	result.Stats = stats
	result.Warnings = append(result.Warnings, warnings...)
	return result, nil
}

// fastForward creates a commit on the target branch descending from the
// source head, with the source state carried over unchanged.
func (e *Engine) fastForward(ctx context.Context, a *analysis, opts models.MergeOptions) (string, error) {
	unlock := e.locks.acquire(a.database, a.targetBranch)
	defer unlock()

	if err := e.checkHeadUnmoved(ctx, a); err != nil {
		return "", err
	}

	tx, err := e.client.BeginTransactionAt(ctx, a.database, a.targetBranch, a.sourceHead)
	if err != nil {
		return "", fmt.Errorf("begin fast-forward transaction: %w", err)
	}

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Fast-forward %s to %s", a.targetBranch, a.sourceBranch)
	}
	metadata := map[string]interface{}{
		"merge_type":    "fast_forward",
		"source_branch": a.sourceBranch,
		"source_commit": a.sourceHead,
	}

	commitID, err := tx.Commit(ctx, message, opts.Author, "", metadata)
	if err != nil {
		return "", fmt.Errorf("fast-forward commit: %w", err)
	}

	e.logger.Info("fast-forward merge complete",
		"database", a.database, "target", a.targetBranch, "commit", commitID)
	return commitID, nil
}

// apply builds the merged snapshot, applies resolutions, and commits the
// result as a merge commit on the target branch.
func (e *Engine) apply(ctx context.Context, a *analysis, resolutions []*models.ConflictResolution, opts models.MergeOptions) (string, *models.MergeStats, []string, error) {
	unlock := e.locks.acquire(a.database, a.targetBranch)
	defer unlock()

	if err := e.checkHeadUnmoved(ctx, a); err != nil {
		return "", nil, nil, err
	}

	merged := BuildMergedSnapshot(a.source, a.target, a.ancestor)
	if err := ApplyResolutions(merged, a.conflicts, resolutions); err != nil {
		return "", nil, nil, err
	}

	warnings := ValidateSnapshot(merged)
	for _, w := range warnings {
		e.logger.Warn("post-merge validation", "database", a.database, "finding", w)
	}

	tx, err := e.client.BeginTransaction(ctx, a.database, a.targetBranch)
	if err != nil {
		return "", nil, nil, fmt.Errorf("begin merge transaction: %w", err)
	}

	stats := StageDiff(tx, a.target, merged)
	stats.ByType = models.CountByType(a.conflicts)

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge branch %q into %q", a.sourceBranch, a.targetBranch)
	}
	metadata := map[string]interface{}{
		"merge_type":    "three_way",
		"source_branch": a.sourceBranch,
		"source_commit": a.sourceHead,
		"ancestor":      a.ancestorID,
		"conflicts":     len(a.conflicts),
		"resolutions":   len(resolutions),
	}

	commitID, err := tx.Commit(ctx, message, opts.Author, a.sourceHead, metadata)
	if err != nil {
		return "", nil, nil, fmt.Errorf("merge commit: %w", err)
	}

	e.logger.Info("merge complete",
		"database", a.database,
		"source", a.sourceBranch, "target", a.targetBranch,
		"commit", commitID, "conflicts", len(a.conflicts))
	return commitID, stats, warnings, nil
}

// checkHeadUnmoved guards against a target head advance between analysis
// and the locked apply window.
func (e *Engine) checkHeadUnmoved(ctx context.Context, a *analysis) error {
	head, err := e.client.GetBranchHead(ctx, a.database, a.targetBranch)
	if err != nil {
		return fmt.Errorf("recheck target head: %w", err)
	}
	if head != a.targetHead {
		return fmt.Errorf("target branch %q advanced during merge, re-run the analysis", a.targetBranch)
	}
	return nil
}

// finish stamps the result, records metrics and the audit trail, and
// publishes the merged event for successful merges.
func (e *Engine) finish(started time.Time, a *analysis, opts models.MergeOptions, result *models.MergeResult) {
	result.Duration = time.Since(started)
	result.MaxSeverity = models.MaxSeverity(result.Conflicts)

	metrics.MergesTotal.WithLabelValues(string(result.Status)).Inc()
	metrics.MergeDuration.Observe(result.Duration.Seconds())

	if e.audit != nil {
		record := &store.MergeRecord{
			ID:            uuid.NewString(),
			Database:      a.database,
			SourceBranch:  a.sourceBranch,
			TargetBranch:  a.targetBranch,
			Status:        result.Status,
			CommitID:      result.CommitID,
			ConflictCount: len(result.Conflicts),
			AutoResolved:  result.AutoResolved,
			MaxSeverity:   result.MaxSeverity,
			DurationMS:    result.Duration.Milliseconds(),
			CreatedAt:     time.Now().UTC(),
		}
		if result.Decision != nil {
			record.Decision = string(result.Decision.Outcome)
		}
		if err := e.audit.SaveMergeRecord(record); err != nil {
			e.logger.Warn("audit: save merge record failed", "error", err)
		}
	}

	if result.Status == models.MergeSuccess && result.CommitID != "" {
		e.events.PublishMerged(&events.MergedEvent{
			Database:     a.database,
			SourceBranch: a.sourceBranch,
			TargetBranch: a.targetBranch,
			CommitID:     result.CommitID,
			Conflicts:    len(result.Conflicts),
			AutoResolved: result.AutoResolved,
		})
	}
}
