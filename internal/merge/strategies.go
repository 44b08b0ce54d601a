package merge

import (
	"fmt"
	"sort"

	"github.com/ovclabs/ovc/internal/models"
)

// Strategy produces a resolution for one conflict, or nil when the
// conflict's actual shape turns out not to fit the strategy.
type Strategy interface {
	// Name identifies the strategy in logs and the attempt ledger.
	Name() string
	// Automated reports whether resolutions from this strategy may be
	// applied without human confirmation.
	Automated() bool
	// Resolve computes a resolution. A nil return routes the conflict to
	// manual handling.
	Resolve(conflict *models.MergeConflict) *models.ConflictResolution
}

type strategyKey struct {
	conflictType models.ConflictType
	severity     models.Severity
}

// registry maps a (conflict type, severity) pair to the strategy that
// handles it. Pairs not present have no automated or suggested path and
// always require a human decision.
var registry = map[strategyKey]Strategy{
	{models.ConflictPropertyTypeChange, models.SeverityInfo}: typeWidening{},
	{models.ConflictConstraint, models.SeverityWarn}:         constraintUnion{},
	{models.ConflictDeleteAfterModify, models.SeverityError}: preferModification{},
	{models.ConflictNameCollision, models.SeverityWarn}:      propertyMerging{},
	{models.ConflictCardinalityChange, models.SeverityInfo}:  cardinalityExpansion{},
	{models.ConflictCardinalityChange, models.SeverityWarn}:  cardinalityExpansion{},
}

// StrategyFor returns the registered strategy for a conflict shape.
func StrategyFor(conflictType models.ConflictType, severity models.Severity) (Strategy, bool) {
	s, ok := registry[strategyKey{conflictType, severity}]
	return s, ok
}

// autoResolvable reports whether a conflict of the given shape has a
// registered strategy whose output may be applied without confirmation.
func autoResolvable(conflictType models.ConflictType, severity models.Severity) bool {
	s, ok := registry[strategyKey{conflictType, severity}]
	return ok && s.Automated()
}

// AutoResolvable is the exported form of the registry check.
func AutoResolvable(conflictType models.ConflictType, severity models.Severity) bool {
	return autoResolvable(conflictType, severity)
}

// typeWidening resolves lossless property type divergences by adopting
// the wider of the two declared types.
type typeWidening struct{}

func (typeWidening) Name() string    { return "type-widening" }
func (typeWidening) Automated() bool { return true }

func (typeWidening) Resolve(conflict *models.MergeConflict) *models.ConflictResolution {
	sp, okS := conflict.SourceValue.(*models.PropertyDef)
	tp, okT := conflict.TargetValue.(*models.PropertyDef)
	if !okS || !okT {
		return nil
	}

	wider := WiderType(sp.Type, tp.Type)
	if wider == "" {
		return nil
	}

	merged := *sp
	merged.Type = wider
	if merged.Description == "" {
		merged.Description = tp.Description
	}
	merged.Required = sp.Required && tp.Required

	return &models.ConflictResolution{
		ConflictID: conflict.ID,
		Type:       models.ResolutionAutomatic,
		Action: models.ResolutionAction{
			Action: models.ActionWidenType,
			Value:  &merged,
		},
		Confidence: 0.95,
		Rationale:  fmt.Sprintf("widened %q to %s, which represents both declared types without loss", conflict.EntityID, wider),
		Automated:  true,
	}
}

// constraintUnion resolves diverging range and enum constraints by
// computing the least restrictive constraint satisfying both sides.
type constraintUnion struct{}

func (constraintUnion) Name() string    { return "constraint-union" }
func (constraintUnion) Automated() bool { return true }

func (constraintUnion) Resolve(conflict *models.MergeConflict) *models.ConflictResolution {
	sc, okS := conflict.SourceValue.(*models.Constraint)
	tc, okT := conflict.TargetValue.(*models.Constraint)
	if !okS || !okT || sc.Kind != tc.Kind {
		return nil
	}

	merged := *sc
	switch sc.Kind {
	case models.ConstraintRange:
		merged.Min = minFloat(sc.Min, tc.Min)
		merged.Max = maxFloat(sc.Max, tc.Max)
	case models.ConstraintEnum:
		merged.AllowedValues = unionValues(sc.AllowedValues, tc.AllowedValues)
	default:
		return nil
	}

	return &models.ConflictResolution{
		ConflictID: conflict.ID,
		Type:       models.ResolutionAutomatic,
		Action: models.ResolutionAction{
			Action: models.ActionUnionConstraint,
			Value:  &merged,
		},
		Confidence: 0.9,
		Rationale:  fmt.Sprintf("union of %s constraints accepts every value either branch allowed", sc.Kind),
		Automated:  true,
	}
}

// minFloat returns the pointer to the smaller bound, treating nil as
// unbounded.
func minFloat(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	if *a <= *b {
		v := *a
		return &v
	}
	v := *b
	return &v
}

func maxFloat(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	if *a >= *b {
		v := *a
		return &v
	}
	v := *b
	return &v
}

func unionValues(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		seen[v] = true
	}
	union := make([]string, 0, len(seen))
	for v := range seen {
		union = append(union, v)
	}
	sort.Strings(union)
	return union
}

// preferModification suggests keeping the modified entity over the
// deletion, unless the surviving entity is marked deprecated, in which
// case the deletion completes the retirement. Either suggestion still
// requires human confirmation, since a deletion usually carries intent
// the schema cannot express.
type preferModification struct{}

func (preferModification) Name() string    { return "prefer-modification" }
func (preferModification) Automated() bool { return false }

func (preferModification) Resolve(conflict *models.MergeConflict) *models.ConflictResolution {
	surviving := conflict.SourceValue
	if surviving == nil {
		surviving = conflict.TargetValue
	}
	if surviving == nil {
		return nil
	}

	if owp, ok := surviving.(*models.ObjectWithProps); ok && owp.Object != nil && owp.Object.Deprecated {
		return &models.ConflictResolution{
			ConflictID: conflict.ID,
			Type:       models.ResolutionSemiAutomatic,
			Action: models.ResolutionAction{
				Action: models.ActionAcceptDeletion,
			},
			Confidence: 0.7,
			Rationale:  "the modified entity is marked deprecated, so the deletion completes an intended retirement",
			Automated:  false,
		}
	}

	return &models.ConflictResolution{
		ConflictID: conflict.ID,
		Type:       models.ResolutionSemiAutomatic,
		Action: models.ResolutionAction{
			Action: models.ActionKeepModification,
			Value:  surviving,
		},
		Confidence: 0.6,
		Rationale:  "a modification signals continued use, so keeping the entity is the safer default over honoring the deletion",
		Automated:  false,
	}
}

// propertyMerging resolves double-modified object types by taking the
// union of both sides' properties. Keys changed on both sides with
// different definitions are left unresolved; if every key conflicts the
// strategy declines entirely.
type propertyMerging struct{}

func (propertyMerging) Name() string    { return "property-merging" }
func (propertyMerging) Automated() bool { return true }

func (propertyMerging) Resolve(conflict *models.MergeConflict) *models.ConflictResolution {
	src, okS := conflict.SourceValue.(*models.ObjectWithProps)
	tgt, okT := conflict.TargetValue.(*models.ObjectWithProps)
	if !okS || !okT || src.Object == nil || tgt.Object == nil {
		return nil
	}

	merged := make(map[string]*models.PropertyDef, len(src.Properties)+len(tgt.Properties))
	var unresolved []string

	for name, sp := range src.Properties {
		tp, inBoth := tgt.Properties[name]
		if !inBoth || jsonEqual(sp, tp) {
			merged[name] = sp
			continue
		}
		unresolved = append(unresolved, name)
	}
	for name, tp := range tgt.Properties {
		if _, taken := src.Properties[name]; !taken {
			merged[name] = tp
		}
	}
	sort.Strings(unresolved)

	if len(merged) == 0 && len(unresolved) > 0 {
		// Every property diverged; a union would decide nothing.
		return nil
	}

	result := &models.ObjectWithProps{
		Object:     src.Object,
		Properties: merged,
	}

	confidence := 0.85
	resolutionType := models.ResolutionAutomatic
	automated := true
	if len(unresolved) > 0 {
		confidence = 0.5
		resolutionType = models.ResolutionSemiAutomatic
		automated = false
	}

	return &models.ConflictResolution{
		ConflictID: conflict.ID,
		Type:       resolutionType,
		Action: models.ResolutionAction{
			Action: models.ActionMergeProperties,
			Value:  result,
		},
		Confidence:     confidence,
		Rationale:      fmt.Sprintf("merged property sets of %q; %d properties need a manual pick", src.Object.Name, len(unresolved)),
		Automated:      automated,
		UnresolvedKeys: unresolved,
	}
}

// cardinalityExpansion resolves diverging link cardinalities by adopting
// the wider cardinality when one side is a single-step widening of the
// other.
type cardinalityExpansion struct{}

func (cardinalityExpansion) Name() string    { return "cardinality-expansion" }
func (cardinalityExpansion) Automated() bool { return true }

func (cardinalityExpansion) Resolve(conflict *models.MergeConflict) *models.ConflictResolution {
	sl, okS := conflict.SourceValue.(*models.LinkType)
	tl, okT := conflict.TargetValue.(*models.LinkType)
	if !okS || !okT {
		return nil
	}

	wider := WiderCardinality(sl.Cardinality, tl.Cardinality)
	if wider == "" {
		return nil
	}

	merged := *sl
	merged.Cardinality = wider

	return &models.ConflictResolution{
		ConflictID: conflict.ID,
		Type:       models.ResolutionAutomatic,
		Action: models.ResolutionAction{
			Action: models.ActionExpandCardinality,
			Value:  &merged,
		},
		Confidence: 0.85,
		Rationale:  fmt.Sprintf("expanded link %q to %s; existing references remain representable", sl.Name, wider),
		Automated:  true,
	}
}
