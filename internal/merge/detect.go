package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ovclabs/ovc/internal/metrics"
	"github.com/ovclabs/ovc/internal/models"
)

// Detector finds every semantically meaningful divergence between two
// branch snapshots relative to their common-ancestor snapshot. Detection
// runs four independent passes whose outputs are concatenated; passes are
// pure and order-independent, so they run concurrently.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a conflict detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Detect runs all detection passes over the three snapshots. A nil
// ancestor means the branches share no history: three-way reasoning is
// impossible and every two-sided difference is reported (pairwise diff).
// A failed pass degrades to one synthetic manual-review conflict instead
// of dropping the merge.
func (d *Detector) Detect(ctx context.Context, source, target, ancestor *models.SchemaSnapshot) []*models.MergeConflict {
	passes := []struct {
		name string
		typ  models.ConflictType
		run  func(source, target, ancestor *models.SchemaSnapshot) ([]*models.MergeConflict, error)
	}{
		{"object-type", models.ConflictNameCollision, d.objectTypePass},
		{"property-type", models.ConflictPropertyTypeChange, d.propertyTypePass},
		{"link", models.ConflictCardinalityChange, d.linkPass},
		{"constraint", models.ConflictConstraint, d.constraintPass},
	}

	results := make([][]*models.MergeConflict, len(passes))

	g, _ := errgroup.WithContext(ctx)
	for i, pass := range passes {
		g.Go(func() error {
			conflicts, err := pass.run(source, target, ancestor)
			if err != nil {
				d.logger.Warn("detection pass failed, routing to manual review",
					"pass", pass.name, "error", err)
				conflicts = []*models.MergeConflict{syntheticConflict(pass.name, pass.typ, err)}
			}
			results[i] = conflicts
			return nil
		})
	}
	// Pass errors are converted in place, never propagated.
	_ = g.Wait()

	var all []*models.MergeConflict
	for _, conflicts := range results {
		all = append(all, conflicts...)
	}

	for _, c := range all {
		metrics.ConflictsDetected.WithLabelValues(string(c.Type)).Inc()
	}

	return all
}

// syntheticConflict wraps a pass failure as a manual-review item so one
// bad pass never silently drops the merge.
func syntheticConflict(pass string, typ models.ConflictType, err error) *models.MergeConflict {
	entityID := pass + "-pass"
	return &models.MergeConflict{
		ID:             models.ConflictID(models.EntityObjectType, entityID, typ),
		Type:           typ,
		Severity:       models.SeverityError,
		EntityType:     models.EntityObjectType,
		EntityID:       entityID,
		Description:    fmt.Sprintf("detection pass %q failed and requires manual review: %v", pass, err),
		AutoResolvable: false,
	}
}

// jsonEqual compares two values by canonical JSON encoding. Map keys are
// sorted by the encoder, so the comparison is deterministic.
func jsonEqual(a, b interface{}) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(da, db)
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// objectTypePass detects object types modified in both branches
// (name-collision or interface-mismatch) and entities deleted in one
// branch but modified in the other (delete-after-modify).
func (d *Detector) objectTypePass(source, target, ancestor *models.SchemaSnapshot) ([]*models.MergeConflict, error) {
	var conflicts []*models.MergeConflict

	for id, s := range source.Objects {
		t, ok := target.Objects[id]
		if !ok {
			continue
		}
		if jsonEqual(s, t) {
			continue
		}

		if ancestor != nil {
			if a, ok := ancestor.Objects[id]; ok {
				// One-sided changes merge cleanly; only double divergence
				// is a conflict.
				if jsonEqual(s, a) || jsonEqual(t, a) {
					continue
				}
			}
		}

		if !stringSetEqual(s.Interfaces, t.Interfaces) {
			conflicts = append(conflicts, &models.MergeConflict{
				ID:          models.ConflictID(models.EntityObjectType, id, models.ConflictInterfaceMismatch),
				Type:        models.ConflictInterfaceMismatch,
				Severity:    models.SeverityWarn,
				EntityType:  models.EntityObjectType,
				EntityID:    id,
				SourceValue: s,
				TargetValue: t,
				Description: fmt.Sprintf("object type %q implements different interfaces on each branch", s.Name),
				AutoResolvable: autoResolvable(models.ConflictInterfaceMismatch, models.SeverityWarn),
			})
			continue
		}

		conflicts = append(conflicts, &models.MergeConflict{
			ID:         models.ConflictID(models.EntityObjectType, id, models.ConflictNameCollision),
			Type:       models.ConflictNameCollision,
			Severity:   models.SeverityWarn,
			EntityType: models.EntityObjectType,
			EntityID:   id,
			SourceValue: &models.ObjectWithProps{
				Object:     s,
				Properties: source.PropertiesOf(id),
			},
			TargetValue: &models.ObjectWithProps{
				Object:     t,
				Properties: target.PropertiesOf(id),
			},
			Description:         fmt.Sprintf("object type %q was modified in both branches", s.Name),
			AutoResolvable:      autoResolvable(models.ConflictNameCollision, models.SeverityWarn),
			SuggestedResolution: &models.ResolutionAction{Action: models.ActionMergeProperties},
		})
	}

	if ancestor == nil {
		return conflicts, nil
	}

	// Delete-after-modify requires an ancestor to tell deletions apart
	// from additions.
	for id, a := range ancestor.Objects {
		s, inSource := source.Objects[id]
		t, inTarget := target.Objects[id]

		switch {
		case inSource && !inTarget:
			if objectModified(source, ancestor, id, s, a) {
				conflicts = append(conflicts, deleteAfterModifyConflict(id, a.Name, &models.ObjectWithProps{
					Object:     s,
					Properties: source.PropertiesOf(id),
				}, nil, "target"))
			}
		case !inSource && inTarget:
			if objectModified(target, ancestor, id, t, a) {
				conflicts = append(conflicts, deleteAfterModifyConflict(id, a.Name, nil, &models.ObjectWithProps{
					Object:     t,
					Properties: target.PropertiesOf(id),
				}, "source"))
			}
		}
	}

	return conflicts, nil
}

// objectModified reports whether an object type or any of its properties
// changed relative to the ancestor.
func objectModified(branch, ancestor *models.SchemaSnapshot, id string, current, base *models.ObjectType) bool {
	if !jsonEqual(current, base) {
		return true
	}
	return !jsonEqual(branch.PropertiesOf(id), ancestor.PropertiesOf(id))
}

func deleteAfterModifyConflict(id, name string, sourceVal, targetVal interface{}, deletedBy string) *models.MergeConflict {
	return &models.MergeConflict{
		ID:             models.ConflictID(models.EntityObjectType, id, models.ConflictDeleteAfterModify),
		Type:           models.ConflictDeleteAfterModify,
		Severity:       models.SeverityError,
		EntityType:     models.EntityObjectType,
		EntityID:       id,
		SourceValue:    sourceVal,
		TargetValue:    targetVal,
		Description:    fmt.Sprintf("object type %q was deleted on the %s branch but modified on the other", name, deletedBy),
		AutoResolvable: autoResolvable(models.ConflictDeleteAfterModify, models.SeverityError),
	}
}

// propertyTypePass detects properties whose declared type diverged on
// both branches under the same owning object.
func (d *Detector) propertyTypePass(source, target, ancestor *models.SchemaSnapshot) ([]*models.MergeConflict, error) {
	var conflicts []*models.MergeConflict

	for owner, sourceProps := range source.Properties {
		targetProps, ok := target.Properties[owner]
		if !ok {
			continue
		}

		for name, sp := range sourceProps {
			tp, ok := targetProps[name]
			if !ok {
				continue
			}
			if sp.Type == tp.Type {
				continue
			}

			if ancestor != nil {
				if ap, ok := ancestor.PropertiesOf(owner)[name]; ok {
					// A type changed on exactly one side applies cleanly.
					if sp.Type == ap.Type || tp.Type == ap.Type {
						continue
					}
				}
			}

			severity, reason := ClassifyTypeChange(tp.Type, sp.Type)
			entityID := owner + "/" + name

			conflict := &models.MergeConflict{
				ID:             models.ConflictID(models.EntityProperty, entityID, models.ConflictPropertyTypeChange),
				Type:           models.ConflictPropertyTypeChange,
				Severity:       severity,
				EntityType:     models.EntityProperty,
				EntityID:       entityID,
				SourceValue:    sp,
				TargetValue:    tp,
				Description:    fmt.Sprintf("property %q declared as %s and %s: %s", entityID, sp.Type, tp.Type, reason),
				AutoResolvable: autoResolvable(models.ConflictPropertyTypeChange, severity),
			}
			if conflict.AutoResolvable {
				conflict.SuggestedResolution = &models.ResolutionAction{
					Action: models.ActionWidenType,
					Value:  WiderType(sp.Type, tp.Type),
				}
			}
			conflicts = append(conflicts, conflict)
		}
	}

	return conflicts, nil
}

// linkPass detects diverging link cardinalities and cycles in the union
// of both branches' required links.
func (d *Detector) linkPass(source, target, ancestor *models.SchemaSnapshot) ([]*models.MergeConflict, error) {
	var conflicts []*models.MergeConflict

	for id, sl := range source.Links {
		tl, ok := target.Links[id]
		if !ok {
			continue
		}
		if sl.Cardinality == tl.Cardinality {
			continue
		}

		if ancestor != nil {
			if al, ok := ancestor.Links[id]; ok {
				if sl.Cardinality == al.Cardinality || tl.Cardinality == al.Cardinality {
					continue
				}
			}
		}

		severity, reason, impact := ClassifyCardinalityChange(tl.Cardinality, sl.Cardinality)

		conflict := &models.MergeConflict{
			ID:              models.ConflictID(models.EntityLinkType, id, models.ConflictCardinalityChange),
			Type:            models.ConflictCardinalityChange,
			Severity:        severity,
			EntityType:      models.EntityLinkType,
			EntityID:        id,
			SourceValue:     sl,
			TargetValue:     tl,
			Description:     fmt.Sprintf("link %q cardinality diverged (%s vs %s): %s", sl.Name, sl.Cardinality, tl.Cardinality, reason),
			AutoResolvable:  autoResolvable(models.ConflictCardinalityChange, severity),
			MigrationImpact: impact,
		}
		if conflict.AutoResolvable {
			conflict.SuggestedResolution = &models.ResolutionAction{
				Action: models.ActionExpandCardinality,
				Value:  string(WiderCardinality(sl.Cardinality, tl.Cardinality)),
			}
		}
		conflicts = append(conflicts, conflict)
	}

	if cycle := findRequiredLinkCycle(source, target); len(cycle) > 0 {
		// One conflict covers the whole graph regardless of cycle count,
		// to avoid per-edge noise.
		conflicts = append(conflicts, &models.MergeConflict{
			ID:             models.ConflictID(models.EntityLinkType, "required-link-graph", models.ConflictCircularDependency),
			Type:           models.ConflictCircularDependency,
			Severity:       models.SeverityBlock,
			EntityType:     models.EntityLinkType,
			EntityID:       "required-link-graph",
			SourceValue:    cycle,
			Description:    fmt.Sprintf("required links form a cycle: %s", strings.Join(cycle, " -> ")),
			AutoResolvable: false,
		})
	}

	return conflicts, nil
}

// findRequiredLinkCycle runs an iterative DFS with an on-stack set over
// the union of both branches' required links and returns the first cycle
// found as a node path, or nil. The traversal is iterative to avoid
// recursion-depth limits on large link graphs.
func findRequiredLinkCycle(source, target *models.SchemaSnapshot) []string {
	adjacency := make(map[string][]string)
	addEdges := func(links map[string]*models.LinkType) {
		for _, link := range links {
			if link.Required {
				adjacency[link.From] = append(adjacency[link.From], link.To)
			}
		}
	}
	addEdges(source.Links)
	addEdges(target.Links)

	nodes := make([]string, 0, len(adjacency))
	for node := range adjacency {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	visited := make(map[string]bool)

	type frame struct {
		node string
		next int
	}

	for _, start := range nodes {
		if visited[start] {
			continue
		}

		onStack := map[string]bool{}
		stack := []frame{{node: start}}
		onStack[start] = true

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := adjacency[top.node]

			if top.next >= len(neighbors) {
				visited[top.node] = true
				onStack[top.node] = false
				stack = stack[:len(stack)-1]
				continue
			}

			next := neighbors[top.next]
			top.next++

			if onStack[next] {
				// Unwind the explicit stack into a readable cycle path.
				var cycle []string
				for i := range stack {
					if len(cycle) > 0 || stack[i].node == next {
						cycle = append(cycle, stack[i].node)
					}
				}
				return append(cycle, next)
			}
			if !visited[next] {
				onStack[next] = true
				stack = append(stack, frame{node: next})
			}
		}
	}

	return nil
}

// constraintPass detects semantic constraints that diverged on both
// branches. Same-kind range and enum constraints are union-mergeable;
// anything else requires a human decision.
func (d *Detector) constraintPass(source, target, ancestor *models.SchemaSnapshot) ([]*models.MergeConflict, error) {
	var conflicts []*models.MergeConflict

	for id, sc := range source.Constraints {
		tc, ok := target.Constraints[id]
		if !ok {
			continue
		}
		if jsonEqual(sc, tc) {
			continue
		}

		if ancestor != nil {
			if ac, ok := ancestor.Constraints[id]; ok {
				if jsonEqual(sc, ac) || jsonEqual(tc, ac) {
					continue
				}
			}
		}

		severity := models.SeverityWarn
		description := fmt.Sprintf("constraint %q on %s.%s diverged in both branches", id, sc.ObjectType, sc.Property)
		if sc.Kind != tc.Kind || (sc.Kind != models.ConstraintRange && sc.Kind != models.ConstraintEnum) {
			severity = models.SeverityError
			description = fmt.Sprintf("constraint %q diverged with no union semantics (%s vs %s)", id, sc.Kind, tc.Kind)
		}

		conflict := &models.MergeConflict{
			ID:             models.ConflictID(models.EntityConstraint, id, models.ConflictConstraint),
			Type:           models.ConflictConstraint,
			Severity:       severity,
			EntityType:     models.EntityConstraint,
			EntityID:       id,
			SourceValue:    sc,
			TargetValue:    tc,
			Description:    description,
			AutoResolvable: autoResolvable(models.ConflictConstraint, severity),
		}
		if conflict.AutoResolvable {
			conflict.SuggestedResolution = &models.ResolutionAction{Action: models.ActionUnionConstraint}
		}
		conflicts = append(conflicts, conflict)
	}

	return conflicts, nil
}
