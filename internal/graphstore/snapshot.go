package graphstore

import "github.com/ovclabs/ovc/internal/models"

// CloneSnapshot returns a deep copy of a schema snapshot. Snapshots handed
// out by clients are treated as immutable by callers, so every read path
// returns a fresh copy.
func CloneSnapshot(s *models.SchemaSnapshot) *models.SchemaSnapshot {
	out := models.NewSchemaSnapshot()
	if s == nil {
		return out
	}

	for id, obj := range s.Objects {
		out.Objects[id] = cloneObjectType(obj)
	}
	for id, link := range s.Links {
		clone := *link
		out.Links[id] = &clone
	}
	for owner, props := range s.Properties {
		dst := make(map[string]*models.PropertyDef, len(props))
		for name, prop := range props {
			dst[name] = cloneProperty(prop)
		}
		out.Properties[owner] = dst
	}
	for id, constraint := range s.Constraints {
		out.Constraints[id] = cloneConstraint(constraint)
	}
	return out
}

func cloneObjectType(obj *models.ObjectType) *models.ObjectType {
	clone := *obj
	if obj.Interfaces != nil {
		clone.Interfaces = append([]string(nil), obj.Interfaces...)
	}
	if obj.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(obj.Metadata))
		for k, v := range obj.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cloneProperty(prop *models.PropertyDef) *models.PropertyDef {
	clone := *prop
	if prop.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(prop.Metadata))
		for k, v := range prop.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cloneConstraint(c *models.Constraint) *models.Constraint {
	clone := *c
	if c.Min != nil {
		min := *c.Min
		clone.Min = &min
	}
	if c.Max != nil {
		max := *c.Max
		clone.Max = &max
	}
	if c.AllowedValues != nil {
		clone.AllowedValues = append([]string(nil), c.AllowedValues...)
	}
	return &clone
}
