package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Severity grades how disruptive a conflict is. The ordering is total:
// Info < Warn < Error < Block. The maximum severity of a conflict set
// determines whether a merge may proceed automatically.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityBlock
)

var severityNames = map[Severity]string{
	SeverityInfo:  "INFO",
	SeverityWarn:  "WARN",
	SeverityError: "ERROR",
	SeverityBlock: "BLOCK",
}

// String returns the canonical name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// MarshalJSON encodes the severity as its canonical name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its canonical name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for sev, n := range severityNames {
		if n == name {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", name)
}

// ConflictType identifies the kind of schema divergence.
type ConflictType string

const (
	ConflictPropertyTypeChange ConflictType = "property-type-change"
	ConflictCardinalityChange  ConflictType = "cardinality-change"
	ConflictDeleteAfterModify  ConflictType = "delete-after-modify"
	ConflictNameCollision      ConflictType = "name-collision"
	ConflictCircularDependency ConflictType = "circular-dependency"
	ConflictInterfaceMismatch  ConflictType = "interface-mismatch"
	ConflictConstraint         ConflictType = "constraint-conflict"
)

// EntityType identifies which entity category a conflict affects.
type EntityType string

const (
	EntityObjectType EntityType = "object_type"
	EntityProperty   EntityType = "property"
	EntityLinkType   EntityType = "link_type"
	EntityConstraint EntityType = "constraint"
)

// ResolutionAction is a structured action descriptor, used both for
// suggested resolutions on conflicts and for accepted resolutions.
type ResolutionAction struct {
	Action string                 `json:"action"`
	Value  interface{}            `json:"value,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Resolution action names understood by the merge applier.
const (
	ActionUseSource         = "use_source"
	ActionUseTarget         = "use_target"
	ActionMergeProperties   = "merge_properties"
	ActionWidenType         = "widen_type"
	ActionUnionConstraint   = "union_constraint"
	ActionExpandCardinality = "expand_cardinality"
	ActionKeepModification  = "keep_modification"
	ActionAcceptDeletion    = "accept_deletion"
)

// MigrationImpact describes the data-migration consequences of applying
// a resolution.
type MigrationImpact struct {
	DataMigrationRequired bool   `json:"data_migration_required"`
	JunctionTableRequired bool   `json:"junction_table_required"`
	Description           string `json:"description,omitempty"`
}

// MergeConflict represents one semantically meaningful divergence between
// two branches' schema states.
type MergeConflict struct {
	ID                  string            `json:"id"`
	Type                ConflictType      `json:"type"`
	Severity            Severity          `json:"severity"`
	EntityType          EntityType        `json:"entity_type"`
	EntityID            string            `json:"entity_id"`
	SourceValue         interface{}       `json:"source_value,omitempty"`
	TargetValue         interface{}       `json:"target_value,omitempty"`
	Description         string            `json:"description"`
	AutoResolvable      bool              `json:"auto_resolvable"`
	CriticalEntity      bool              `json:"critical_entity,omitempty"`
	SuggestedResolution *ResolutionAction `json:"suggested_resolution,omitempty"`
	MigrationImpact     *MigrationImpact  `json:"migration_impact,omitempty"`
}

// ConflictID derives a deterministic conflict identifier from the entity
// and conflict category so that repeated detection runs on the same
// snapshots produce identical ids.
func ConflictID(entityType EntityType, entityID string, conflictType ConflictType) string {
	data := fmt.Sprintf("%s|%s|%s", entityType, entityID, conflictType)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:16]
}

// ConflictSignature derives a deterministic signature over a conflict's
// type, entity, and the two competing values. Used as the resolution
// cache key so identical conflicts resolve to identical resolutions.
func ConflictSignature(c *MergeConflict) string {
	src, _ := json.Marshal(c.SourceValue)
	tgt, _ := json.Marshal(c.TargetValue)
	data := fmt.Sprintf("%s|%s|%s|%s", c.Type, c.EntityID, src, tgt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// MaxSeverity returns the highest severity among the conflicts, or
// SeverityInfo for an empty set.
func MaxSeverity(conflicts []*MergeConflict) Severity {
	max := SeverityInfo
	for _, c := range conflicts {
		if c.Severity > max {
			max = c.Severity
		}
	}
	return max
}
