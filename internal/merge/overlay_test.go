package merge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovclabs/ovc/internal/config"
	"github.com/ovclabs/ovc/internal/models"
)

func lowRisk() *models.RiskAssessment {
	return &models.RiskAssessment{
		DataIntegrity: models.RiskLow,
		Financial:     models.RiskLow,
		Operational:   models.RiskLow,
		Compliance:    models.RiskLow,
		Reputation:    models.RiskLow,
	}
}

func TestEscalate_CriticalEntityBumpsSeverity(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{
		{
			ID:                  "c1",
			Type:                models.ConflictPropertyTypeChange,
			Severity:            models.SeverityInfo,
			EntityID:            "billing_account/limit",
			AutoResolvable:      true,
			SuggestedResolution: &models.ResolutionAction{Action: models.ActionWidenType},
		},
		{
			ID:       "c2",
			Type:     models.ConflictPropertyTypeChange,
			Severity: models.SeverityInfo,
			EntityID: "article/title",
		},
	}

	o.Escalate(conflicts)

	// Critical entity: INFO becomes WARN and the automated path is gone,
	// since no strategy covers property type changes at WARN.
	assert.Equal(t, models.SeverityWarn, conflicts[0].Severity)
	assert.True(t, conflicts[0].CriticalEntity)
	assert.False(t, conflicts[0].AutoResolvable)
	assert.Nil(t, conflicts[0].SuggestedResolution)

	// Non-critical entity untouched.
	assert.Equal(t, models.SeverityInfo, conflicts[1].Severity)
	assert.False(t, conflicts[1].CriticalEntity)
}

func TestEscalate_KeepsAutomatedPathWhenRegistryCovers(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	// Cardinality expansion is registered for both INFO and WARN, so the
	// escalated conflict keeps its automated path.
	conflicts := []*models.MergeConflict{{
		ID:                  "c1",
		Type:                models.ConflictCardinalityChange,
		Severity:            models.SeverityInfo,
		EntityID:            "invoice-lines",
		AutoResolvable:      true,
		SuggestedResolution: &models.ResolutionAction{Action: models.ActionExpandCardinality},
	}}

	o.Escalate(conflicts)

	assert.Equal(t, models.SeverityWarn, conflicts[0].Severity)
	assert.True(t, conflicts[0].AutoResolvable)
	assert.NotNil(t, conflicts[0].SuggestedResolution)
}

func TestEscalate_ErrorAndBlockUnchanged(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{
		{ID: "c1", Severity: models.SeverityError, EntityID: "payment_method"},
		{ID: "c2", Severity: models.SeverityBlock, EntityID: "ledger_entry"},
	}

	o.Escalate(conflicts)

	assert.Equal(t, models.SeverityError, conflicts[0].Severity)
	assert.Equal(t, models.SeverityBlock, conflicts[1].Severity)
	// Still flagged as critical even without an escalation step left.
	assert.True(t, conflicts[0].CriticalEntity)
	assert.True(t, conflicts[1].CriticalEntity)
}

func TestAnalyzeImpact_EmptySet(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	impact := o.AnalyzeImpact(nil)
	assert.Zero(t, impact.TotalAffectedEntities)
	assert.Zero(t, impact.EstimatedDowntimeMinutes)
	assert.Equal(t, models.RiskLow, impact.RollbackComplexity)
	assert.Empty(t, impact.TestingRequirements)
}

func TestAnalyzeImpact(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{
		{
			Severity:   models.SeverityWarn,
			EntityType: models.EntityLinkType,
			MigrationImpact: &models.MigrationImpact{
				DataMigrationRequired: true,
				JunctionTableRequired: true,
			},
		},
		{
			Severity:       models.SeverityError,
			EntityType:     models.EntityProperty,
			CriticalEntity: true,
		},
	}

	impact := o.AnalyzeImpact(conflicts)

	assert.Equal(t, 2, impact.TotalAffectedEntities)
	assert.Equal(t, 1, impact.CriticalAffectedEntities)
	// 10 flat + 5 for the WARN + 15 for the ERROR.
	assert.Equal(t, 30, impact.EstimatedDowntimeMinutes)
	assert.Equal(t, models.RiskHigh, impact.RollbackComplexity)
	assert.True(t, impact.ServiceImpacts["graph-traversal"])
	assert.True(t, impact.ServiceImpacts["reporting"])
	assert.Contains(t, impact.TestingRequirements, "junction table backfill verification")
	assert.Contains(t, impact.TestingRequirements, "critical entity smoke tests")
}

func TestAssessRisk(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{{Severity: models.SeverityBlock}}
	impact := &models.ImpactAnalysis{CriticalAffectedEntities: 3, EstimatedDowntimeMinutes: 90}

	risk := o.AssessRisk(conflicts, impact)

	assert.Equal(t, models.RiskHigh, risk.DataIntegrity)
	assert.Equal(t, models.RiskHigh, risk.Financial)
	assert.Equal(t, models.RiskHigh, risk.Operational)
	assert.Equal(t, models.RiskHigh, risk.Compliance)
	assert.Equal(t, models.RiskMedium, risk.Reputation)
	assert.True(t, risk.AnyHigh())
}

func TestAssessRisk_CleanSet(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	risk := o.AssessRisk(nil, &models.ImpactAnalysis{})
	assert.False(t, risk.AnyHigh())
	assert.Equal(t, models.RiskLow, risk.DataIntegrity)
}

func TestDecide_BlockingConflictRejects(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{{Severity: models.SeverityBlock}}
	decision := o.Decide(conflicts, nil, &models.ImpactAnalysis{}, lowRisk())

	assert.Equal(t, models.DecisionRejectMerge, decision.Outcome)
	require.NotEmpty(t, decision.Reasons)
	assert.Contains(t, decision.Reasons[0], "blocking conflict")
}

func TestDecide_HighRiskRejects(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	risk := lowRisk()
	risk.Financial = models.RiskHigh

	conflicts := []*models.MergeConflict{{Severity: models.SeverityWarn}}
	decision := o.Decide(conflicts, nil, &models.ImpactAnalysis{}, risk)

	assert.Equal(t, models.DecisionRejectMerge, decision.Outcome)
}

func TestDecide_TooManyCriticalEntitiesRejects(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	impact := &models.ImpactAnalysis{CriticalAffectedEntities: 3}
	decision := o.Decide(nil, nil, impact, lowRisk())

	assert.Equal(t, models.DecisionRejectMerge, decision.Outcome)
}

func TestDecide_AllAutomatedMergesAutomatically(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{{ID: "c1"}, {ID: "c2"}}
	resolutions := []*models.ConflictResolution{
		{ConflictID: "c1", Automated: true, Confidence: 0.95},
		{ConflictID: "c2", Automated: true, Confidence: 0.85},
	}

	decision := o.Decide(conflicts, resolutions, &models.ImpactAnalysis{}, lowRisk())

	assert.Equal(t, models.DecisionAutoMerge, decision.Outcome)
	// 15 base + 5 per automated resolution.
	assert.Equal(t, 25, decision.EstimatedResolutionMins)
}

func TestDecide_LowConfidenceBlocksAutoMerge(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{{ID: "c1"}}
	resolutions := []*models.ConflictResolution{
		{ConflictID: "c1", Automated: true, Confidence: 0.5},
	}

	decision := o.Decide(conflicts, resolutions, &models.ImpactAnalysis{}, lowRisk())

	assert.Equal(t, models.DecisionManualResolution, decision.Outcome)
}

func TestDecide_PartialResolutionBlocksAutoMerge(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{{ID: "c1"}}
	resolutions := []*models.ConflictResolution{
		{ConflictID: "c1", Automated: true, Confidence: 0.95, UnresolvedKeys: []string{"status"}},
	}

	decision := o.Decide(conflicts, resolutions, &models.ImpactAnalysis{}, lowRisk())

	assert.Equal(t, models.DecisionManualResolution, decision.Outcome)
}

func TestDecide_ConflictCountAboveCeilingDefers(t *testing.T) {
	policy := config.DefaultPolicy()
	o := NewOverlay(policy, nil)

	var conflicts []*models.MergeConflict
	for i := 0; i <= policy.DeferConflictCeiling; i++ {
		conflicts = append(conflicts, &models.MergeConflict{ID: fmt.Sprintf("c%d", i)})
	}

	decision := o.Decide(conflicts, nil, &models.ImpactAnalysis{}, lowRisk())
	assert.Equal(t, models.DecisionDefer, decision.Outcome)
}

func TestDecide_TwoCriticalEntitiesDefer(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{{ID: "c1"}, {ID: "c2"}}
	impact := &models.ImpactAnalysis{CriticalAffectedEntities: 2}

	decision := o.Decide(conflicts, nil, impact, lowRisk())
	assert.Equal(t, models.DecisionDefer, decision.Outcome)
}

func TestDecide_DefaultsToManualResolution(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	conflicts := []*models.MergeConflict{
		{ID: "c1"},
		{ID: "c2", Severity: models.SeverityError},
	}
	resolutions := []*models.ConflictResolution{
		{ConflictID: "c1", Automated: true, Confidence: 0.95},
	}

	decision := o.Decide(conflicts, resolutions, &models.ImpactAnalysis{}, lowRisk())

	assert.Equal(t, models.DecisionManualResolution, decision.Outcome)
	// 15 base + 5 for the automated one + 45 for the manual ERROR.
	assert.Equal(t, 65, decision.EstimatedResolutionMins)
}

func TestDecide_EstimateWeighsManualConflictsBySeverity(t *testing.T) {
	o := NewOverlay(config.DefaultPolicy(), nil)

	estimate := func(s models.Severity) int {
		conflicts := []*models.MergeConflict{{ID: "c1", Severity: s}}
		return o.Decide(conflicts, nil, &models.ImpactAnalysis{}, lowRisk()).EstimatedResolutionMins
	}

	assert.Equal(t, 35, estimate(models.SeverityInfo))
	assert.Equal(t, 45, estimate(models.SeverityWarn))
	assert.Equal(t, 60, estimate(models.SeverityError))
}
