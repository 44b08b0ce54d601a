package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovclabs/ovc/internal/config"
	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/models"
	"github.com/ovclabs/ovc/internal/store"
)

// memoryAudit collects audit records in memory.
type memoryAudit struct {
	records []*store.MergeRecord
}

func (a *memoryAudit) SaveMergeRecord(record *store.MergeRecord) error {
	a.records = append(a.records, record)
	return nil
}

func newTestEngine(client *graphstore.MockClient, audit AuditSink) *Engine {
	return NewEngine(client, config.DefaultPolicy(), nil, audit, nil, nil)
}

// seedDiverged builds the common fixture:
//
//	base <- t1 (main)
//	     \- s1 (feature)
func seedDiverged(client *graphstore.MockClient, base, source, target *models.SchemaSnapshot) {
	client.SeedBranch(testDB, "main", &models.Commit{ID: "base"}, base)
	client.AddCommit(testDB, &models.Commit{ID: "t1", ParentID: "base"})
	client.SetSnapshot(testDB, "t1", target)
	client.SetBranch(testDB, "main", "t1")
	client.AddCommit(testDB, &models.Commit{ID: "s1", ParentID: "base"})
	client.SetSnapshot(testDB, "s1", source)
	client.SetBranch(testDB, "feature", "s1")
}

func TestMergeBranches_FastForward(t *testing.T) {
	client := graphstore.NewMockClient()

	base := models.NewSchemaSnapshot()
	addObject(base, "article", "Article", "")

	source := models.NewSchemaSnapshot()
	addObject(source, "article", "Article", "")
	addObject(source, "tag", "Tag", "")

	// main never moved past the fork point.
	client.SeedBranch(testDB, "main", &models.Commit{ID: "base"}, base)
	client.AddCommit(testDB, &models.Commit{ID: "s1", ParentID: "base"})
	client.SetSnapshot(testDB, "s1", source)
	client.SetBranch(testDB, "feature", "s1")

	e := newTestEngine(client, nil)

	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.MergeSuccess, result.Status)
	assert.True(t, result.FastForward)
	require.NotEmpty(t, result.CommitID)

	// The new commit descends from the source head, not from main.
	commit, err := client.GetCommitInfo(context.Background(), testDB, result.CommitID)
	require.NoError(t, err)
	assert.Equal(t, "s1", commit.ParentID)
	assert.Empty(t, commit.MergeParentID)
	assert.Equal(t, "fast_forward", commit.Metadata["merge_type"])

	head, err := client.GetBranchHead(context.Background(), testDB, "main")
	require.NoError(t, err)
	assert.Equal(t, result.CommitID, head)

	snapshot, err := client.GetSchemaAtCommit(context.Background(), testDB, result.CommitID)
	require.NoError(t, err)
	assert.Contains(t, snapshot.Objects, "tag")
}

func TestMergeBranches_FastForwardDryRun(t *testing.T) {
	client := graphstore.NewMockClient()
	base := models.NewSchemaSnapshot()
	source := models.NewSchemaSnapshot()
	addObject(source, "tag", "Tag", "")

	client.SeedBranch(testDB, "main", &models.Commit{ID: "base"}, base)
	client.AddCommit(testDB, &models.Commit{ID: "s1", ParentID: "base"})
	client.SetSnapshot(testDB, "s1", source)
	client.SetBranch(testDB, "feature", "s1")

	e := newTestEngine(client, nil)

	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, models.MergeDryRunSuccess, result.Status)
	assert.True(t, result.FastForward)
	assert.Empty(t, result.CommitID)

	head, _ := client.GetBranchHead(context.Background(), testDB, "main")
	assert.Equal(t, "base", head)
}

func TestMergeBranches_AlreadyUpToDate(t *testing.T) {
	client := graphstore.NewMockClient()
	base := models.NewSchemaSnapshot()
	client.SeedBranch(testDB, "main", &models.Commit{ID: "base"}, base)
	client.SetBranch(testDB, "feature", "base")

	e := newTestEngine(client, nil)

	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.MergeSuccess, result.Status)
	assert.Empty(t, result.CommitID)
	assert.Contains(t, result.Warnings, "already up to date")
}

func TestMergeBranches_TargetAheadOfSource(t *testing.T) {
	client := graphstore.NewMockClient()
	base := models.NewSchemaSnapshot()
	target := models.NewSchemaSnapshot()
	addObject(target, "author", "Author", "")

	// feature is stuck at the commit main grew from.
	client.SeedBranch(testDB, "feature", &models.Commit{ID: "base"}, base)
	client.AddCommit(testDB, &models.Commit{ID: "t1", ParentID: "base"})
	client.SetSnapshot(testDB, "t1", target)
	client.SetBranch(testDB, "main", "t1")

	e := newTestEngine(client, nil)

	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.MergeSuccess, result.Status)
	assert.Empty(t, result.CommitID)

	head, _ := client.GetBranchHead(context.Background(), testDB, "main")
	assert.Equal(t, "t1", head)
}

func TestMergeBranches_CleanThreeWay(t *testing.T) {
	client := graphstore.NewMockClient()

	base := models.NewSchemaSnapshot()
	addObject(base, "article", "Article", "")

	source := models.NewSchemaSnapshot()
	addObject(source, "article", "Article", "")
	addObject(source, "tag", "Tag", "")

	target := models.NewSchemaSnapshot()
	addObject(target, "article", "Article", "")
	addObject(target, "author", "Author", "")

	seedDiverged(client, base, source, target)

	audit := &memoryAudit{}
	e := newTestEngine(client, audit)

	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{Author: "kestutis"})
	require.NoError(t, err)
	assert.Equal(t, models.MergeSuccess, result.Status)
	assert.False(t, result.FastForward)
	assert.False(t, result.AutoResolved)
	assert.Empty(t, result.Conflicts)
	require.NotEmpty(t, result.CommitID)

	// A real merge commit: first parent is the old target head, merge
	// parent is the source head.
	commit, err := client.GetCommitInfo(context.Background(), testDB, result.CommitID)
	require.NoError(t, err)
	assert.Equal(t, "t1", commit.ParentID)
	assert.Equal(t, "s1", commit.MergeParentID)
	assert.Equal(t, "three_way", commit.Metadata["merge_type"])

	snapshot, err := client.GetSchemaAtCommit(context.Background(), testDB, result.CommitID)
	require.NoError(t, err)
	assert.Len(t, snapshot.Objects, 3)

	require.NotNil(t, result.Stats)
	assert.Equal(t, 1, result.Stats.ObjectsMerged)

	require.Len(t, audit.records, 1)
	assert.Equal(t, models.MergeSuccess, audit.records[0].Status)
	assert.Equal(t, result.CommitID, audit.records[0].CommitID)
	assert.Equal(t, string(models.DecisionAutoMerge), audit.records[0].Decision)
}

func conflictingPropertyFixture(client *graphstore.MockClient) {
	base := models.NewSchemaSnapshot()
	addObject(base, "article", "Article", "")
	addProperty(base, "article", "memo", "varchar")

	source := models.NewSchemaSnapshot()
	addObject(source, "article", "Article", "")
	addProperty(source, "article", "memo", "text")

	target := models.NewSchemaSnapshot()
	addObject(target, "article", "Article", "")
	addProperty(target, "article", "memo", "string")

	seedDiverged(client, base, source, target)
}

func TestMergeBranches_AutoResolvableNeedsOptIn(t *testing.T) {
	client := graphstore.NewMockClient()
	conflictingPropertyFixture(client)

	e := newTestEngine(client, nil)

	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.MergeManualRequired, result.Status)
	require.NotNil(t, result.Decision)
	assert.Equal(t, models.DecisionAutoMerge, result.Decision.Outcome)
	assert.Contains(t, result.Warnings[0], "auto-resolve")

	head, _ := client.GetBranchHead(context.Background(), testDB, "main")
	assert.Equal(t, "t1", head)
}

func TestMergeBranches_AutoResolve(t *testing.T) {
	client := graphstore.NewMockClient()
	conflictingPropertyFixture(client)

	e := newTestEngine(client, nil)

	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{AutoResolve: true})
	require.NoError(t, err)
	assert.Equal(t, models.MergeSuccess, result.Status)
	assert.True(t, result.AutoResolved)
	require.Len(t, result.Conflicts, 1)
	require.Len(t, result.Resolutions, 1)

	snapshot, err := client.GetSchemaAtCommit(context.Background(), testDB, result.CommitID)
	require.NoError(t, err)
	assert.Equal(t, "text", snapshot.Properties["article"]["memo"].Type)
}

func TestMergeBranches_BlockedByRequiredLinkCycle(t *testing.T) {
	client := graphstore.NewMockClient()

	base := models.NewSchemaSnapshot()
	source := models.NewSchemaSnapshot()
	addLink(source, "a-to-b", "alpha", "beta", models.OneToOne, true)
	target := models.NewSchemaSnapshot()
	addLink(target, "b-to-a", "beta", "alpha", models.OneToOne, true)

	seedDiverged(client, base, source, target)

	e := newTestEngine(client, nil)

	// Blocking conflicts reject the merge even with auto-resolve on.
	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{AutoResolve: true})
	require.NoError(t, err)
	assert.Equal(t, models.MergeBlocked, result.Status)
	assert.Equal(t, models.SeverityBlock, result.MaxSeverity)
	require.NotNil(t, result.Decision)
	assert.Equal(t, models.DecisionRejectMerge, result.Decision.Outcome)

	head, _ := client.GetBranchHead(context.Background(), testDB, "main")
	assert.Equal(t, "t1", head)
}

func TestMergeBranches_CommitFailureLeavesHeadUnmoved(t *testing.T) {
	client := graphstore.NewMockClient()

	base := models.NewSchemaSnapshot()
	source := models.NewSchemaSnapshot()
	addObject(source, "tag", "Tag", "")
	target := models.NewSchemaSnapshot()
	addObject(target, "author", "Author", "")

	seedDiverged(client, base, source, target)
	client.CommitErr = errors.New("store unavailable")

	e := newTestEngine(client, nil)

	result, err := e.MergeBranches(context.Background(), testDB, "feature", "main", models.MergeOptions{})
	require.Error(t, err)
	assert.Equal(t, models.MergeFailed, result.Status)
	assert.Empty(t, result.CommitID)

	head, _ := client.GetBranchHead(context.Background(), testDB, "main")
	assert.Equal(t, "t1", head)
}

func interfaceMismatchFixture(client *graphstore.MockClient) string {
	base := models.NewSchemaSnapshot()
	addObject(base, "article", "Article", "", "Auditable")

	source := models.NewSchemaSnapshot()
	addObject(source, "article", "Article", "", "Auditable", "Taggable")

	target := models.NewSchemaSnapshot()
	addObject(target, "article", "Article", "", "Auditable", "Archivable")

	seedDiverged(client, base, source, target)

	return models.ConflictID(models.EntityObjectType, "article", models.ConflictInterfaceMismatch)
}

func TestApplyManualResolution(t *testing.T) {
	client := graphstore.NewMockClient()
	conflictID := interfaceMismatchFixture(client)

	e := newTestEngine(client, nil)

	doc := &models.ManualResolutionDoc{
		SourceBranch: "feature",
		TargetBranch: "main",
		Author:       "kestutis",
		Resolutions: []*models.ConflictResolution{{
			ConflictID: conflictID,
			Action:     models.ResolutionAction{Action: models.ActionUseSource},
			Rationale:  "the taggable rollout supersedes the archive flag",
		}},
	}

	result, err := e.ApplyManualResolution(context.Background(), testDB, doc)
	require.NoError(t, err)
	assert.Equal(t, models.MergeSuccess, result.Status)
	require.NotEmpty(t, result.CommitID)

	// Document-supplied resolutions are stamped as manual.
	require.Len(t, result.Resolutions, 1)
	assert.Equal(t, models.ResolutionManual, result.Resolutions[0].Type)
	assert.False(t, result.Resolutions[0].Automated)

	snapshot, err := client.GetSchemaAtCommit(context.Background(), testDB, result.CommitID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Auditable", "Taggable"}, snapshot.Objects["article"].Interfaces)
}

func TestApplyManualResolution_UnknownConflictFails(t *testing.T) {
	client := graphstore.NewMockClient()
	interfaceMismatchFixture(client)

	e := newTestEngine(client, nil)

	doc := &models.ManualResolutionDoc{
		SourceBranch: "feature",
		TargetBranch: "main",
		Resolutions: []*models.ConflictResolution{{
			ConflictID: "deadbeefdeadbeef",
			Action:     models.ResolutionAction{Action: models.ActionUseSource},
		}},
	}

	result, err := e.ApplyManualResolution(context.Background(), testDB, doc)
	require.Error(t, err)
	assert.Equal(t, models.MergeFailed, result.Status)

	head, _ := client.GetBranchHead(context.Background(), testDB, "main")
	assert.Equal(t, "t1", head)
}

func TestApplyManualResolution_UncoveredConflict(t *testing.T) {
	client := graphstore.NewMockClient()
	interfaceMismatchFixture(client)

	e := newTestEngine(client, nil)

	doc := &models.ManualResolutionDoc{
		SourceBranch: "feature",
		TargetBranch: "main",
	}

	result, err := e.ApplyManualResolution(context.Background(), testDB, doc)
	require.NoError(t, err)
	assert.Equal(t, models.MergeManualRequired, result.Status)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "has no resolution")
}

func TestApplyManualResolution_BlockingConflict(t *testing.T) {
	client := graphstore.NewMockClient()

	base := models.NewSchemaSnapshot()
	source := models.NewSchemaSnapshot()
	addLink(source, "a-to-b", "alpha", "beta", models.OneToOne, true)
	target := models.NewSchemaSnapshot()
	addLink(target, "b-to-a", "beta", "alpha", models.OneToOne, true)
	seedDiverged(client, base, source, target)

	e := newTestEngine(client, nil)

	doc := &models.ManualResolutionDoc{SourceBranch: "feature", TargetBranch: "main"}

	result, err := e.ApplyManualResolution(context.Background(), testDB, doc)
	require.NoError(t, err)
	assert.Equal(t, models.MergeBlocked, result.Status)
	assert.Contains(t, result.Warnings[0], "blocking conflicts")
}

func TestApplyManualResolution_HighRiskRejected(t *testing.T) {
	client := graphstore.NewMockClient()

	base := models.NewSchemaSnapshot()
	addObject(base, "invoice", "Invoice", "")
	addProperty(base, "invoice", "memo", "string")

	// Deleted on the source side, reworked on the target side: an ERROR
	// conflict on a critical entity grades compliance risk high.
	source := models.NewSchemaSnapshot()

	target := models.NewSchemaSnapshot()
	addObject(target, "invoice", "Invoice", "billable work item")
	addProperty(target, "invoice", "memo", "string")

	seedDiverged(client, base, source, target)

	e := newTestEngine(client, nil)

	conflictID := models.ConflictID(models.EntityObjectType, "invoice", models.ConflictDeleteAfterModify)
	doc := &models.ManualResolutionDoc{
		SourceBranch: "feature",
		TargetBranch: "main",
		Resolutions: []*models.ConflictResolution{{
			ConflictID: conflictID,
			Action:     models.ResolutionAction{Action: models.ActionKeepModification},
		}},
	}

	result, err := e.ApplyManualResolution(context.Background(), testDB, doc)
	require.NoError(t, err)
	assert.Equal(t, models.MergeBlocked, result.Status)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "high risk")

	head, _ := client.GetBranchHead(context.Background(), testDB, "main")
	assert.Equal(t, "t1", head)
}

func TestAnalyzeConflicts(t *testing.T) {
	client := graphstore.NewMockClient()
	conflictingPropertyFixture(client)

	e := newTestEngine(client, nil)

	report, err := e.AnalyzeConflicts(context.Background(), testDB, "feature", "main")
	require.NoError(t, err)

	assert.Equal(t, "feature", report.SourceBranch)
	assert.Equal(t, "main", report.TargetBranch)
	assert.Equal(t, "base", report.AncestorCommitID)
	assert.Equal(t, 1, report.TotalConflicts)
	assert.Equal(t, 1, report.AutoResolvableCount)
	assert.Equal(t, models.SeverityInfo, report.MaxSeverity)
	assert.Equal(t, 1, report.ByType[models.ConflictPropertyTypeChange])

	// Analysis never touches either branch.
	head, _ := client.GetBranchHead(context.Background(), testDB, "main")
	assert.Equal(t, "t1", head)
}

func TestAnalyzeConflicts_UnknownBranch(t *testing.T) {
	client := graphstore.NewMockClient()
	e := newTestEngine(client, nil)

	_, err := e.AnalyzeConflicts(context.Background(), testDB, "feature", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve source branch")
}
