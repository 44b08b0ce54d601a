package merge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/models"
)

// threeWayMerge merges one entity map. With an ancestor, a change on one
// side applies cleanly; double divergence keeps the target value as the
// baseline, which resolutions later override. Without an ancestor the
// merge degrades to a union in which the target wins on divergence.
func threeWayMerge[V any](source, target, ancestor map[string]V) map[string]V {
	merged := make(map[string]V, len(target))

	for id, t := range target {
		s, inSource := source[id]
		a, inAncestor := ancestor[id]

		switch {
		case !inSource:
			if inAncestor && jsonEqual(t, a) {
				// Unchanged on target, gone on source: source deleted it.
				continue
			}
			merged[id] = t
		case jsonEqual(s, t):
			merged[id] = t
		case inAncestor && jsonEqual(t, a):
			// Only the source side changed.
			merged[id] = s
		default:
			merged[id] = t
		}
	}

	for id, s := range source {
		if _, inTarget := target[id]; inTarget {
			continue
		}
		if a, inAncestor := ancestor[id]; inAncestor {
			if jsonEqual(s, a) {
				// Unchanged on source, gone on target: target deleted it.
				continue
			}
			// Deleted on target but modified on source; keep the
			// modification as the baseline.
		}
		merged[id] = s
	}

	return merged
}

// BuildMergedSnapshot computes the three-way merged schema state. The
// result is a baseline: conflicted entities carry the target value until
// resolutions are applied on top.
func BuildMergedSnapshot(source, target, ancestor *models.SchemaSnapshot) *models.SchemaSnapshot {
	if ancestor == nil {
		ancestor = models.NewSchemaSnapshot()
	}

	merged := &models.SchemaSnapshot{
		Objects:     threeWayMerge(source.Objects, target.Objects, ancestor.Objects),
		Links:       threeWayMerge(source.Links, target.Links, ancestor.Links),
		Constraints: threeWayMerge(source.Constraints, target.Constraints, ancestor.Constraints),
		Properties:  make(map[string]map[string]*models.PropertyDef),
	}

	owners := make(map[string]bool)
	for owner := range source.Properties {
		owners[owner] = true
	}
	for owner := range target.Properties {
		owners[owner] = true
	}
	for owner := range owners {
		props := threeWayMerge(
			source.PropertiesOf(owner),
			target.PropertiesOf(owner),
			ancestor.PropertiesOf(owner),
		)
		if len(props) > 0 {
			merged.Properties[owner] = props
		}
	}

	// Properties cannot outlive their owning object type.
	for owner := range merged.Properties {
		if _, ok := merged.Objects[owner]; !ok {
			delete(merged.Properties, owner)
		}
	}

	return merged
}

// decodeValue converts a resolution value into a concrete model type.
// Values produced in-process are already typed; values arriving over the
// wire in a manual resolution document are generic JSON and go through a
// round-trip.
func decodeValue[T any](v interface{}) (*T, error) {
	if v == nil {
		return nil, fmt.Errorf("nil resolution value")
	}
	if typed, ok := v.(*T); ok {
		return typed, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode resolution value: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode resolution value: %w", err)
	}
	return &out, nil
}

// ApplyResolutions mutates the merged snapshot according to accepted
// resolutions. Every resolution must reference a conflict in the set.
func ApplyResolutions(snapshot *models.SchemaSnapshot, conflicts []*models.MergeConflict, resolutions []*models.ConflictResolution) error {
	byID := make(map[string]*models.MergeConflict, len(conflicts))
	for _, c := range conflicts {
		byID[c.ID] = c
	}

	for _, res := range resolutions {
		conflict, ok := byID[res.ConflictID]
		if !ok {
			return fmt.Errorf("resolution references unknown conflict %q", res.ConflictID)
		}
		if err := applyResolution(snapshot, conflict, res); err != nil {
			return fmt.Errorf("apply resolution for conflict %s: %w", conflict.ID, err)
		}
	}
	return nil
}

func applyResolution(snapshot *models.SchemaSnapshot, conflict *models.MergeConflict, res *models.ConflictResolution) error {
	switch res.Action.Action {
	case models.ActionUseSource:
		return setEntity(snapshot, conflict, conflict.SourceValue)

	case models.ActionUseTarget:
		return setEntity(snapshot, conflict, conflict.TargetValue)

	case models.ActionAcceptDeletion:
		deleteEntity(snapshot, conflict)
		return nil

	case models.ActionKeepModification:
		surviving := conflict.SourceValue
		if surviving == nil {
			surviving = conflict.TargetValue
		}
		if surviving == nil {
			return fmt.Errorf("no surviving entity to keep")
		}
		return setEntity(snapshot, conflict, surviving)

	case models.ActionWidenType:
		prop, err := decodeValue[models.PropertyDef](res.Action.Value)
		if err != nil || prop.Name == "" {
			prop, err = widenedProperty(conflict)
			if err != nil {
				return err
			}
		}
		return setEntity(snapshot, conflict, prop)

	case models.ActionExpandCardinality:
		link, err := decodeValue[models.LinkType](res.Action.Value)
		if err != nil || link.ID == "" {
			link, err = expandedLink(conflict)
			if err != nil {
				return err
			}
		}
		return setEntity(snapshot, conflict, link)

	case models.ActionUnionConstraint:
		constraint, err := decodeValue[models.Constraint](res.Action.Value)
		if err != nil || constraint.ID == "" {
			recomputed := constraintUnion{}.Resolve(conflict)
			if recomputed == nil {
				return fmt.Errorf("constraints have no union")
			}
			constraint = recomputed.Action.Value.(*models.Constraint)
		}
		return setEntity(snapshot, conflict, constraint)

	case models.ActionMergeProperties:
		merged, err := decodeValue[models.ObjectWithProps](res.Action.Value)
		if err != nil || merged.Object == nil {
			recomputed := propertyMerging{}.Resolve(conflict)
			if recomputed == nil {
				return fmt.Errorf("property sets have no mergeable subset")
			}
			merged = recomputed.Action.Value.(*models.ObjectWithProps)
		}
		if err := applyPropertyPicks(merged, conflict, res); err != nil {
			return err
		}
		return setEntity(snapshot, conflict, merged)

	default:
		return fmt.Errorf("unknown resolution action %q", res.Action.Action)
	}
}

// applyPropertyPicks fills a merged property set's unresolved keys from
// per-key picks in the resolution params. Picks name the branch whose
// definition wins: "source" or "target".
func applyPropertyPicks(merged *models.ObjectWithProps, conflict *models.MergeConflict, res *models.ConflictResolution) error {
	raw, ok := res.Action.Params["picks"]
	if !ok {
		if len(res.UnresolvedKeys) > 0 {
			return fmt.Errorf("%d properties unresolved and no picks provided", len(res.UnresolvedKeys))
		}
		return nil
	}
	picks, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("picks must map property names to a branch")
	}

	src, errS := decodeValue[models.ObjectWithProps](conflict.SourceValue)
	tgt, errT := decodeValue[models.ObjectWithProps](conflict.TargetValue)
	if errS != nil || errT != nil {
		return fmt.Errorf("conflict payloads are not object values")
	}

	for name, branchRaw := range picks {
		branch, _ := branchRaw.(string)
		var picked *models.PropertyDef
		switch branch {
		case "source":
			picked = src.Properties[name]
		case "target":
			picked = tgt.Properties[name]
		default:
			return fmt.Errorf("pick for %q must be source or target, got %q", name, branch)
		}
		if picked == nil {
			return fmt.Errorf("property %q not present on the %s branch", name, branch)
		}
		if merged.Properties == nil {
			merged.Properties = make(map[string]*models.PropertyDef)
		}
		merged.Properties[name] = picked
	}
	return nil
}

// widenedProperty recomputes the widened property definition from the
// conflict's competing values.
func widenedProperty(conflict *models.MergeConflict) (*models.PropertyDef, error) {
	sp, errS := decodeValue[models.PropertyDef](conflict.SourceValue)
	tp, errT := decodeValue[models.PropertyDef](conflict.TargetValue)
	if errS != nil || errT != nil {
		return nil, fmt.Errorf("conflict payloads are not property definitions")
	}
	wider := WiderType(sp.Type, tp.Type)
	if wider == "" {
		return nil, fmt.Errorf("types %s and %s have no widening relation", sp.Type, tp.Type)
	}
	merged := *sp
	merged.Type = wider
	return &merged, nil
}

// expandedLink recomputes the widened link definition from the conflict's
// competing values.
func expandedLink(conflict *models.MergeConflict) (*models.LinkType, error) {
	sl, errS := decodeValue[models.LinkType](conflict.SourceValue)
	tl, errT := decodeValue[models.LinkType](conflict.TargetValue)
	if errS != nil || errT != nil {
		return nil, fmt.Errorf("conflict payloads are not link definitions")
	}
	wider := WiderCardinality(sl.Cardinality, tl.Cardinality)
	if wider == "" {
		return nil, fmt.Errorf("cardinalities %s and %s have no widening relation", sl.Cardinality, tl.Cardinality)
	}
	merged := *sl
	merged.Cardinality = wider
	return &merged, nil
}

// setEntity writes a resolution value into the snapshot at the conflict's
// entity slot.
func setEntity(snapshot *models.SchemaSnapshot, conflict *models.MergeConflict, value interface{}) error {
	switch conflict.EntityType {
	case models.EntityObjectType:
		if owp, err := decodeValue[models.ObjectWithProps](value); err == nil && owp.Object != nil {
			snapshot.Objects[conflict.EntityID] = owp.Object
			if len(owp.Properties) > 0 {
				snapshot.Properties[conflict.EntityID] = owp.Properties
			} else {
				delete(snapshot.Properties, conflict.EntityID)
			}
			return nil
		}
		obj, err := decodeValue[models.ObjectType](value)
		if err != nil || obj.ID == "" {
			return fmt.Errorf("value is not an object type")
		}
		snapshot.Objects[conflict.EntityID] = obj
		return nil

	case models.EntityProperty:
		owner, _, ok := strings.Cut(conflict.EntityID, "/")
		if !ok {
			return fmt.Errorf("malformed property entity id %q", conflict.EntityID)
		}
		prop, err := decodeValue[models.PropertyDef](value)
		if err != nil || prop.Name == "" {
			return fmt.Errorf("value is not a property definition")
		}
		if snapshot.Properties[owner] == nil {
			snapshot.Properties[owner] = make(map[string]*models.PropertyDef)
		}
		snapshot.Properties[owner][prop.Name] = prop
		return nil

	case models.EntityLinkType:
		link, err := decodeValue[models.LinkType](value)
		if err != nil || link.ID == "" {
			return fmt.Errorf("value is not a link type")
		}
		snapshot.Links[conflict.EntityID] = link
		return nil

	case models.EntityConstraint:
		constraint, err := decodeValue[models.Constraint](value)
		if err != nil || constraint.ID == "" {
			return fmt.Errorf("value is not a constraint")
		}
		snapshot.Constraints[conflict.EntityID] = constraint
		return nil

	default:
		return fmt.Errorf("unknown entity type %q", conflict.EntityType)
	}
}

// deleteEntity removes the conflict's entity from the snapshot.
func deleteEntity(snapshot *models.SchemaSnapshot, conflict *models.MergeConflict) {
	switch conflict.EntityType {
	case models.EntityObjectType:
		delete(snapshot.Objects, conflict.EntityID)
		delete(snapshot.Properties, conflict.EntityID)
	case models.EntityProperty:
		if owner, name, ok := strings.Cut(conflict.EntityID, "/"); ok {
			if props := snapshot.Properties[owner]; props != nil {
				delete(props, name)
				if len(props) == 0 {
					delete(snapshot.Properties, owner)
				}
			}
		}
	case models.EntityLinkType:
		delete(snapshot.Links, conflict.EntityID)
	case models.EntityConstraint:
		delete(snapshot.Constraints, conflict.EntityID)
	}
}

// StageDiff stages the mutations that turn the base snapshot into the
// merged snapshot on a transaction, and returns per-category change counts.
func StageDiff(tx graphstore.Transaction, base, merged *models.SchemaSnapshot) *models.MergeStats {
	stats := &models.MergeStats{ByType: make(map[models.ConflictType]int)}

	for id := range base.Objects {
		if _, ok := merged.Objects[id]; !ok {
			tx.DeleteObjectType(id)
			stats.ObjectsMerged++
		}
	}
	for id, obj := range merged.Objects {
		if prev, ok := base.Objects[id]; !ok || !jsonEqual(prev, obj) {
			tx.UpdateObjectType(obj)
			stats.ObjectsMerged++
		}
	}

	for id := range base.Links {
		if _, ok := merged.Links[id]; !ok {
			tx.DeleteLinkType(id)
			stats.LinksMerged++
		}
	}
	for id, link := range merged.Links {
		if prev, ok := base.Links[id]; !ok || !jsonEqual(prev, link) {
			tx.UpdateLinkType(link)
			stats.LinksMerged++
		}
	}

	for owner, props := range base.Properties {
		// Deleting an object type removes its properties as well.
		if _, ok := merged.Objects[owner]; !ok {
			if _, had := base.Objects[owner]; had {
				continue
			}
		}
		mergedProps := merged.PropertiesOf(owner)
		for name := range props {
			if _, ok := mergedProps[name]; !ok {
				tx.DeleteProperty(owner, name)
				stats.PropsMerged++
			}
		}
	}
	for owner, props := range merged.Properties {
		baseProps := base.PropertiesOf(owner)
		for name, prop := range props {
			if prev, ok := baseProps[name]; !ok || !jsonEqual(prev, prop) {
				tx.UpdateProperty(owner, prop)
				stats.PropsMerged++
			}
		}
	}

	for id := range base.Constraints {
		if _, ok := merged.Constraints[id]; !ok {
			tx.DeleteConstraint(id)
		}
	}
	for id, constraint := range merged.Constraints {
		if prev, ok := base.Constraints[id]; !ok || !jsonEqual(prev, constraint) {
			tx.UpdateConstraint(constraint)
		}
	}

	return stats
}
