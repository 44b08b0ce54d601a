package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovclabs/ovc/internal/models"
)

func TestClassifyTypeChange(t *testing.T) {
	tests := []struct {
		from, to string
		want     models.Severity
	}{
		{"string", "string", models.SeverityInfo},
		{"string", "text", models.SeverityInfo},
		{"integer", "long", models.SeverityInfo},
		{"float", "double", models.SeverityInfo},
		{"date", "datetime", models.SeverityInfo},
		{"string", "integer", models.SeverityError},
		{"long", "integer", models.SeverityError},
		{"datetime", "date", models.SeverityError},
		{"text", "json", models.SeverityWarn},
		{"json", "double", models.SeverityWarn},
		{"boolean", "geo", models.SeverityError},
	}

	for _, tc := range tests {
		severity, reason := ClassifyTypeChange(tc.from, tc.to)
		assert.Equal(t, tc.want, severity, "%s -> %s", tc.from, tc.to)
		assert.NotEmpty(t, reason)
	}
}

func TestClassifyTypeChange_NarrowingBeatsJSON(t *testing.T) {
	// json -> string is listed as narrowing; the narrowing verdict wins
	// over the generic json branch.
	severity, _ := ClassifyTypeChange("json", "string")
	assert.Equal(t, models.SeverityError, severity)
}

func TestWiderType(t *testing.T) {
	assert.Equal(t, "text", WiderType("string", "text"))
	assert.Equal(t, "text", WiderType("text", "string"))
	assert.Equal(t, "long", WiderType("integer", "long"))
	assert.Equal(t, "", WiderType("string", "integer"))
	assert.Equal(t, "", WiderType("boolean", "geo"))
}

func TestClassifyCardinalityChange(t *testing.T) {
	tests := []struct {
		from, to    models.Cardinality
		want        models.Severity
		migration   bool
		junction    bool
		description string
	}{
		{models.OneToOne, models.OneToOne, models.SeverityInfo, false, false, "same"},
		{models.OneToOne, models.OneToMany, models.SeverityInfo, false, false, "widen to list"},
		{models.OneToOne, models.ManyToOne, models.SeverityInfo, false, false, "widen inverse"},
		{models.OneToMany, models.ManyToMany, models.SeverityWarn, true, true, "needs junction"},
		{models.ManyToOne, models.ManyToMany, models.SeverityWarn, true, true, "needs junction"},
		{models.OneToMany, models.OneToOne, models.SeverityError, true, false, "narrowing"},
		{models.ManyToMany, models.OneToOne, models.SeverityError, true, false, "narrowing"},
		{models.OneToOne, models.ManyToMany, models.SeverityError, true, true, "two-step jump"},
		{models.ManyToMany, models.OneToMany, models.SeverityError, true, false, "narrowing from m2m"},
	}

	for _, tc := range tests {
		severity, reason, impact := ClassifyCardinalityChange(tc.from, tc.to)
		assert.Equal(t, tc.want, severity, "%s -> %s (%s)", tc.from, tc.to, tc.description)
		assert.NotEmpty(t, reason)
		if tc.from == tc.to {
			assert.Nil(t, impact)
			continue
		}
		require.NotNil(t, impact)
		assert.Equal(t, tc.migration, impact.DataMigrationRequired, "%s -> %s migration", tc.from, tc.to)
		assert.Equal(t, tc.junction, impact.JunctionTableRequired, "%s -> %s junction", tc.from, tc.to)
	}
}

func TestWiderCardinality(t *testing.T) {
	assert.Equal(t, models.OneToMany, WiderCardinality(models.OneToOne, models.OneToMany))
	assert.Equal(t, models.ManyToMany, WiderCardinality(models.ManyToMany, models.OneToMany))
	// A two-step jump has no single widening answer.
	assert.Equal(t, models.Cardinality(""), WiderCardinality(models.OneToOne, models.ManyToMany))
	// Sibling ranks do not widen each other.
	assert.Equal(t, models.Cardinality(""), WiderCardinality(models.OneToMany, models.ManyToOne))
}
