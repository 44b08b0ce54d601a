package models

// ResolutionType distinguishes how a resolution was produced.
type ResolutionType string

const (
	ResolutionAutomatic     ResolutionType = "automatic"
	ResolutionSemiAutomatic ResolutionType = "semi_automatic"
	ResolutionManual        ResolutionType = "manual"
)

// ConflictResolution is a concrete decision for one conflict.
type ConflictResolution struct {
	ConflictID string           `json:"conflict_id"`
	Type       ResolutionType   `json:"type"`
	Action     ResolutionAction `json:"action"`
	Confidence float64          `json:"confidence"`
	Rationale  string           `json:"rationale,omitempty"`
	Automated  bool             `json:"automated"`
	// UnresolvedKeys lists property sub-keys a merge strategy could not
	// reconcile. Non-empty means the parent conflict is not fully
	// resolved and must be confirmed manually.
	UnresolvedKeys []string `json:"unresolved_keys,omitempty"`
}

// FullyResolved reports whether the resolution covers the whole conflict.
func (r *ConflictResolution) FullyResolved() bool {
	return len(r.UnresolvedKeys) == 0
}

// ManualResolutionDoc is the structured decision document accepted by
// ApplyManualResolution for conflicts that required a human decision.
type ManualResolutionDoc struct {
	SourceBranch string                `json:"source_branch"`
	TargetBranch string                `json:"target_branch"`
	Author       string                `json:"author,omitempty"`
	Message      string                `json:"message,omitempty"`
	Resolutions  []*ConflictResolution `json:"resolutions"`
}
