package merge

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ovclabs/ovc/internal/config"
	"github.com/ovclabs/ovc/internal/models"
)

// Overlay applies organizational policy on top of the purely structural
// conflict analysis: severity escalation for critical entities, impact and
// risk grading, and the final merge decision.
type Overlay struct {
	policy config.Policy
	logger *slog.Logger
}

// NewOverlay creates a business rule overlay for the given policy.
func NewOverlay(policy config.Policy, logger *slog.Logger) *Overlay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlay{policy: policy, logger: logger}
}

// isCritical reports whether an entity id matches any critical pattern.
// Matching is case-insensitive substring matching on the entity id.
func (o *Overlay) isCritical(entityID string) bool {
	lower := strings.ToLower(entityID)
	for _, pattern := range o.policy.CriticalPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// Escalate raises the severity of conflicts touching critical entities by
// one step (INFO to WARN, WARN to ERROR). Escalation is strictly upward
// and never reduces a severity. Escalated conflicts are re-checked against
// the strategy registry, since a severity bump can remove the automated
// path.
func (o *Overlay) Escalate(conflicts []*models.MergeConflict) {
	for _, c := range conflicts {
		if !o.isCritical(c.EntityID) {
			continue
		}
		c.CriticalEntity = true

		var escalated models.Severity
		switch c.Severity {
		case models.SeverityInfo:
			escalated = models.SeverityWarn
		case models.SeverityWarn:
			escalated = models.SeverityError
		default:
			continue
		}

		o.logger.Info("escalating conflict on critical entity",
			"conflict", c.ID, "entity", c.EntityID,
			"from", c.Severity.String(), "to", escalated.String())

		c.Severity = escalated
		c.AutoResolvable = autoResolvable(c.Type, c.Severity)
		if !c.AutoResolvable {
			c.SuggestedResolution = nil
		}
	}
}

// downtimeMinutes estimates the deployment window one conflict costs.
func downtimeMinutes(s models.Severity) int {
	switch s {
	case models.SeverityInfo:
		return 0
	case models.SeverityWarn:
		return 5
	case models.SeverityError:
		return 15
	default:
		return 30
	}
}

// serviceMap names the downstream services affected per entity category.
var serviceMap = map[models.EntityType][]string{
	models.EntityObjectType: {"query-api", "ingestion"},
	models.EntityProperty:   {"query-api", "ingestion", "reporting"},
	models.EntityLinkType:   {"query-api", "graph-traversal"},
	models.EntityConstraint: {"ingestion", "validation"},
}

// AnalyzeImpact estimates the operational footprint of a conflict set.
func (o *Overlay) AnalyzeImpact(conflicts []*models.MergeConflict) *models.ImpactAnalysis {
	impact := &models.ImpactAnalysis{
		ServiceImpacts:     make(map[string]bool),
		RollbackComplexity: models.RiskLow,
	}

	if len(conflicts) == 0 {
		return impact
	}

	// Flat overhead for any non-trivial change window.
	impact.EstimatedDowntimeMinutes = 10
	testing := map[string]bool{"schema validation suite": true}

	for _, c := range conflicts {
		impact.TotalAffectedEntities++
		if c.CriticalEntity {
			impact.CriticalAffectedEntities++
		}

		impact.EstimatedDowntimeMinutes += downtimeMinutes(c.Severity)

		for _, service := range serviceMap[c.EntityType] {
			impact.ServiceImpacts[service] = true
		}

		if c.MigrationImpact != nil {
			if c.MigrationImpact.DataMigrationRequired {
				testing["data migration dry run"] = true
				if impact.RollbackComplexity == models.RiskLow {
					impact.RollbackComplexity = models.RiskMedium
				}
			}
			if c.MigrationImpact.JunctionTableRequired {
				testing["junction table backfill verification"] = true
				impact.RollbackComplexity = models.RiskHigh
			}
		}
		if c.Severity >= models.SeverityError {
			testing["regression suite on affected services"] = true
			if impact.RollbackComplexity == models.RiskLow {
				impact.RollbackComplexity = models.RiskMedium
			}
		}
		if c.CriticalEntity {
			testing["critical entity smoke tests"] = true
		}
	}

	for requirement := range testing {
		impact.TestingRequirements = append(impact.TestingRequirements, requirement)
	}

	return impact
}

// AssessRisk grades the conflict set across fixed risk categories.
func (o *Overlay) AssessRisk(conflicts []*models.MergeConflict, impact *models.ImpactAnalysis) *models.RiskAssessment {
	risk := &models.RiskAssessment{
		DataIntegrity: models.RiskLow,
		Financial:     models.RiskLow,
		Operational:   models.RiskLow,
		Compliance:    models.RiskLow,
		Reputation:    models.RiskLow,
	}

	maxSeverity := models.MaxSeverity(conflicts)

	switch {
	case maxSeverity >= models.SeverityBlock:
		risk.DataIntegrity = models.RiskHigh
	case maxSeverity >= models.SeverityError:
		risk.DataIntegrity = models.RiskMedium
	}
	for _, c := range conflicts {
		if c.MigrationImpact != nil && c.MigrationImpact.DataMigrationRequired {
			if risk.DataIntegrity == models.RiskLow {
				risk.DataIntegrity = models.RiskMedium
			}
			if c.Severity >= models.SeverityError {
				risk.DataIntegrity = models.RiskHigh
			}
		}
	}

	switch {
	case impact.CriticalAffectedEntities > 2:
		risk.Financial = models.RiskHigh
		risk.Compliance = models.RiskMedium
	case impact.CriticalAffectedEntities > 0:
		risk.Financial = models.RiskMedium
	}

	switch {
	case impact.EstimatedDowntimeMinutes > 60:
		risk.Operational = models.RiskHigh
		risk.Reputation = models.RiskMedium
	case impact.EstimatedDowntimeMinutes > 20:
		risk.Operational = models.RiskMedium
	}

	if impact.CriticalAffectedEntities > 0 && maxSeverity >= models.SeverityError {
		risk.Compliance = models.RiskHigh
	}

	return risk
}

// manualMinutes prices one human-handled conflict by severity.
func manualMinutes(s models.Severity) int {
	switch s {
	case models.SeverityInfo:
		return 20
	case models.SeverityWarn:
		return 30
	case models.SeverityError:
		return 45
	default:
		return 60
	}
}

// RejectionReason returns the first rejection rule the conflict set trips,
// if any. The rules hold regardless of how resolutions were produced; a
// manual decision document cannot override them.
func (o *Overlay) RejectionReason(conflicts []*models.MergeConflict, impact *models.ImpactAnalysis, risk *models.RiskAssessment) (string, bool) {
	if models.MaxSeverity(conflicts) >= models.SeverityBlock {
		return "a blocking conflict prevents any merge path", true
	}
	if risk.AnyHigh() {
		return "high risk in a merge-gating category (data integrity, financial, or compliance)", true
	}
	if impact.CriticalAffectedEntities > 2 {
		return fmt.Sprintf("%d critical entities affected, above the rejection threshold of 2", impact.CriticalAffectedEntities), true
	}
	return "", false
}

// Decide renders the final merge decision from the structural analysis and
// the resolution outcomes. Rules are evaluated in strict order: rejection
// rules first, then automatic merge, then deferral, with manual resolution
// as the default.
func (o *Overlay) Decide(conflicts []*models.MergeConflict, resolutions []*models.ConflictResolution, impact *models.ImpactAnalysis, risk *models.RiskAssessment) *models.MergeDecision {
	decision := &models.MergeDecision{
		Impact: impact,
		Risk:   risk,
	}

	autoResolved := make(map[string]bool, len(resolutions))
	for _, r := range resolutions {
		if r.Automated && r.FullyResolved() && r.Confidence >= o.policy.ConfidenceThreshold {
			autoResolved[r.ConflictID] = true
		}
	}

	automated := 0
	decision.EstimatedResolutionMins = 15
	for _, c := range conflicts {
		if autoResolved[c.ID] {
			automated++
			decision.EstimatedResolutionMins += 5
			continue
		}
		decision.EstimatedResolutionMins += manualMinutes(c.Severity)
	}

	if reason, rejected := o.RejectionReason(conflicts, impact, risk); rejected {
		decision.Outcome = models.DecisionRejectMerge
		decision.Reasons = append(decision.Reasons, reason)
		return decision
	}

	if automated == len(conflicts) && len(conflicts) <= o.policy.AutoMergeMaxConflicts {
		decision.Outcome = models.DecisionAutoMerge
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("all %d conflicts resolved automatically at or above confidence %.2f", len(conflicts), o.policy.ConfidenceThreshold))
		return decision
	}

	if len(conflicts) > o.policy.DeferConflictCeiling {
		decision.Outcome = models.DecisionDefer
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("%d conflicts exceed the deferral ceiling of %d; split the branch into smaller merges", len(conflicts), o.policy.DeferConflictCeiling))
		return decision
	}
	if impact.CriticalAffectedEntities > 1 {
		decision.Outcome = models.DecisionDefer
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("%d critical entities affected; schedule a coordinated resolution session", impact.CriticalAffectedEntities))
		return decision
	}

	decision.Outcome = models.DecisionManualResolution
	decision.Reasons = append(decision.Reasons,
		fmt.Sprintf("%d of %d conflicts need a human decision", len(conflicts)-automated, len(conflicts)))
	return decision
}
