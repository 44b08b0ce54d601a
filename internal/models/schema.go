// Package models defines the core data structures used throughout OVC
// including schema entities, commits, conflicts, and merge results.
package models

// Cardinality describes the relationship arity of a link type.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToOne  Cardinality = "many_to_one"
	ManyToMany Cardinality = "many_to_many"
)

// ObjectType represents an object type definition in the ontology.
type ObjectType struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Interfaces  []string               `json:"interfaces,omitempty"`
	Deprecated  bool                   `json:"deprecated,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// LinkType represents a typed relationship between two object types.
type LinkType struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Cardinality Cardinality `json:"cardinality"`
	Required    bool        `json:"required,omitempty"`
}

// PropertyDef represents a property declared on an object type.
type PropertyDef struct {
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Required    bool                   `json:"required,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ConstraintKind identifies the kind of a semantic constraint.
type ConstraintKind string

const (
	ConstraintRange  ConstraintKind = "range"
	ConstraintEnum   ConstraintKind = "enum"
	ConstraintUnique ConstraintKind = "unique"
)

// Constraint represents a semantic constraint on a property.
type Constraint struct {
	ID            string         `json:"id"`
	Kind          ConstraintKind `json:"kind"`
	ObjectType    string         `json:"object_type"`
	Property      string         `json:"property"`
	Min           *float64       `json:"min,omitempty"`
	Max           *float64       `json:"max,omitempty"`
	AllowedValues []string       `json:"allowed_values,omitempty"`
}

// ObjectWithProps bundles an object type with its declared properties.
// Used as the competing-value payload on object-level conflicts so
// resolution strategies can reason over the full composite entity.
type ObjectWithProps struct {
	Object     *ObjectType             `json:"object"`
	Properties map[string]*PropertyDef `json:"properties,omitempty"`
}

// SchemaSnapshot is an immutable view of one branch's schema state.
// Properties are grouped by owning object type, then property name.
type SchemaSnapshot struct {
	Objects     map[string]*ObjectType             `json:"objects"`
	Links       map[string]*LinkType               `json:"links"`
	Properties  map[string]map[string]*PropertyDef `json:"properties"`
	Constraints map[string]*Constraint             `json:"constraints"`
}

// NewSchemaSnapshot creates an empty snapshot.
func NewSchemaSnapshot() *SchemaSnapshot {
	return &SchemaSnapshot{
		Objects:     make(map[string]*ObjectType),
		Links:       make(map[string]*LinkType),
		Properties:  make(map[string]map[string]*PropertyDef),
		Constraints: make(map[string]*Constraint),
	}
}

// IsEmpty returns true if the snapshot contains no entities.
func (s *SchemaSnapshot) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.Objects) == 0 && len(s.Links) == 0 &&
		len(s.Properties) == 0 && len(s.Constraints) == 0
}

// PropertiesOf returns the property map for an object type, never nil.
func (s *SchemaSnapshot) PropertiesOf(objectID string) map[string]*PropertyDef {
	if s == nil || s.Properties == nil {
		return map[string]*PropertyDef{}
	}
	if props, ok := s.Properties[objectID]; ok {
		return props
	}
	return map[string]*PropertyDef{}
}
