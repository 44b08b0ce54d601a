package models

// DecisionOutcome is the final merge decision rendered by the business
// rule overlay.
type DecisionOutcome string

const (
	DecisionAutoMerge        DecisionOutcome = "AUTO_MERGE"
	DecisionManualResolution DecisionOutcome = "MANUAL_RESOLUTION"
	DecisionRejectMerge      DecisionOutcome = "REJECT_MERGE"
	DecisionDefer            DecisionOutcome = "DEFER"
)

// RiskLevel grades a risk category.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ImpactAnalysis summarizes the organizational impact of a conflict set.
type ImpactAnalysis struct {
	TotalAffectedEntities    int             `json:"total_affected_entities"`
	CriticalAffectedEntities int             `json:"critical_affected_entities"`
	ServiceImpacts           map[string]bool `json:"service_impacts,omitempty"`
	EstimatedDowntimeMinutes int             `json:"estimated_downtime_minutes"`
	RollbackComplexity       RiskLevel       `json:"rollback_complexity"`
	TestingRequirements      []string        `json:"testing_requirements,omitempty"`
}

// RiskAssessment grades risk across fixed categories.
type RiskAssessment struct {
	DataIntegrity RiskLevel `json:"data_integrity"`
	Financial     RiskLevel `json:"financial"`
	Operational   RiskLevel `json:"operational"`
	Compliance    RiskLevel `json:"compliance"`
	Reputation    RiskLevel `json:"reputation"`
}

// AnyHigh reports whether any of the merge-gating categories
// (data integrity, financial, compliance) is graded high.
func (r *RiskAssessment) AnyHigh() bool {
	return r.DataIntegrity == RiskHigh || r.Financial == RiskHigh || r.Compliance == RiskHigh
}

// MergeDecision is the overlay's final verdict on a merge.
type MergeDecision struct {
	Outcome                  DecisionOutcome `json:"outcome"`
	Reasons                  []string        `json:"reasons,omitempty"`
	Impact                   *ImpactAnalysis `json:"impact,omitempty"`
	Risk                     *RiskAssessment `json:"risk,omitempty"`
	EstimatedResolutionMins  int             `json:"estimated_resolution_minutes"`
}
