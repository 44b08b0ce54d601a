package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ovclabs/ovc/internal/models"
)

// ValidateSnapshot checks the referential integrity of a merged snapshot
// and returns human-readable warnings. Validation never fails a merge;
// findings surface as warnings on the result and in the log.
func ValidateSnapshot(snapshot *models.SchemaSnapshot) []string {
	var warnings []string

	for id, link := range snapshot.Links {
		if _, ok := snapshot.Objects[link.From]; !ok {
			warnings = append(warnings, fmt.Sprintf("link %q references missing object type %q as source", id, link.From))
		}
		if _, ok := snapshot.Objects[link.To]; !ok {
			warnings = append(warnings, fmt.Sprintf("link %q references missing object type %q as destination", id, link.To))
		}
	}

	for id, constraint := range snapshot.Constraints {
		props, ok := snapshot.Properties[constraint.ObjectType]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("constraint %q targets object type %q which declares no properties", id, constraint.ObjectType))
			continue
		}
		if _, ok := props[constraint.Property]; !ok {
			warnings = append(warnings, fmt.Sprintf("constraint %q targets missing property %s.%s", id, constraint.ObjectType, constraint.Property))
		}
	}

	for owner := range snapshot.Properties {
		if _, ok := snapshot.Objects[owner]; !ok {
			warnings = append(warnings, fmt.Sprintf("properties declared on missing object type %q", owner))
		}
	}

	if cycle := findRequiredLinkCycle(snapshot, models.NewSchemaSnapshot()); len(cycle) > 0 {
		warnings = append(warnings, fmt.Sprintf("required links form a cycle: %s", strings.Join(cycle, " -> ")))
	}

	sort.Strings(warnings)
	return warnings
}
