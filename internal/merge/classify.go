package merge

import (
	"fmt"

	"github.com/ovclabs/ovc/internal/models"
)

// wideningTypes maps a property type to the type it widens into without
// data loss. A type change (a -> b) is widening when wideningTypes[a] == b.
var wideningTypes = map[string]string{
	"string":  "text",
	"integer": "long",
	"float":   "double",
	"date":    "datetime",
	"short":   "integer",
	"decimal": "double",
}

// narrowingTypes lists type transitions that are known to lose data.
var narrowingTypes = map[[2]string]bool{
	{"string", "integer"}:  true,
	{"string", "float"}:    true,
	{"text", "string"}:     true,
	{"long", "integer"}:    true,
	{"double", "float"}:    true,
	{"double", "integer"}:  true,
	{"datetime", "date"}:   true,
	{"json", "string"}:     true,
	{"json", "text"}:       true,
	{"integer", "short"}:   true,
	{"decimal", "integer"}: true,
}

// IsWideningType reports whether changing a property from one type to the
// other (in either direction) is a lossless widening.
func IsWideningType(a, b string) bool {
	return wideningTypes[a] == b || wideningTypes[b] == a
}

// WiderType returns the wider of two types related by a widening
// transition, or empty string if neither widens the other.
func WiderType(a, b string) string {
	if wideningTypes[a] == b {
		return b
	}
	if wideningTypes[b] == a {
		return a
	}
	return ""
}

// ClassifyTypeChange grades a property type transition. The table is a
// total function: every pair has a defined outcome, with a default-deny
// branch for anything not explicitly listed.
func ClassifyTypeChange(from, to string) (models.Severity, string) {
	switch {
	case from == to:
		return models.SeverityInfo, "no type change"
	case wideningTypes[from] == to:
		return models.SeverityInfo, fmt.Sprintf("widening %s to %s is lossless", from, to)
	case narrowingTypes[[2]string{from, to}]:
		return models.SeverityError, fmt.Sprintf("narrowing %s to %s may lose data", from, to)
	case from == "json" || to == "json":
		return models.SeverityWarn, fmt.Sprintf("conversion between %s and %s needs content inspection", from, to)
	default:
		return models.SeverityError, fmt.Sprintf("no safe conversion from %s to %s", from, to)
	}
}

// cardinalityRank orders cardinalities from most to least restrictive.
// one_to_many and many_to_one share a rank: neither widens the other.
var cardinalityRank = map[models.Cardinality]int{
	models.OneToOne:   0,
	models.OneToMany:  1,
	models.ManyToOne:  1,
	models.ManyToMany: 2,
}

// IsWideningCardinality reports whether moving from one cardinality to the
// other is a single-step widening that can be auto-resolved.
func IsWideningCardinality(from, to models.Cardinality) bool {
	return cardinalityRank[to]-cardinalityRank[from] == 1
}

// WiderCardinality returns the wider of two cardinalities when one widens
// the other by a single step, or empty otherwise.
func WiderCardinality(a, b models.Cardinality) models.Cardinality {
	if IsWideningCardinality(a, b) {
		return b
	}
	if IsWideningCardinality(b, a) {
		return a
	}
	return ""
}

// ClassifyCardinalityChange grades a cardinality transition and describes
// its migration impact. The table is total: unknown transitions fall
// through to the complex-migration branch.
func ClassifyCardinalityChange(from, to models.Cardinality) (models.Severity, string, *models.MigrationImpact) {
	if from == to {
		return models.SeverityInfo, "no cardinality change", nil
	}

	fromRank, toRank := cardinalityRank[from], cardinalityRank[to]

	switch {
	case fromRank == 0 && toRank == 1:
		return models.SeverityInfo, "foreign key remains valid", &models.MigrationImpact{
			DataMigrationRequired: false,
			JunctionTableRequired: false,
			Description:           "existing references stay valid under the wider cardinality",
		}
	case fromRank == 1 && toRank == 2:
		return models.SeverityWarn, "junction table needed", &models.MigrationImpact{
			DataMigrationRequired: true,
			JunctionTableRequired: true,
			Description:           "existing references must be moved into a junction table",
		}
	case toRank == 0:
		return models.SeverityError, "potential data loss", &models.MigrationImpact{
			DataMigrationRequired: true,
			JunctionTableRequired: false,
			Description:           "narrowing to one_to_one drops all but one reference per entity",
		}
	default:
		return models.SeverityError, "complex migration required", &models.MigrationImpact{
			DataMigrationRequired: true,
			JunctionTableRequired: fromRank < 2 && toRank == 2,
			Description:           fmt.Sprintf("no direct migration path from %s to %s", from, to),
		}
	}
}
