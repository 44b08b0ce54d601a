package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityInfo < SeverityWarn)
	assert.True(t, SeverityWarn < SeverityError)
	assert.True(t, SeverityError < SeverityBlock)
}

func TestSeverityJSON(t *testing.T) {
	data, err := json.Marshal(SeverityError)
	require.NoError(t, err)
	assert.Equal(t, `"ERROR"`, string(data))

	var s Severity
	require.NoError(t, json.Unmarshal([]byte(`"BLOCK"`), &s))
	assert.Equal(t, SeverityBlock, s)

	assert.Error(t, json.Unmarshal([]byte(`"CRITICAL"`), &s))
}

func TestConflictID_Deterministic(t *testing.T) {
	a := ConflictID(EntityProperty, "invoice/amount", ConflictPropertyTypeChange)
	b := ConflictID(EntityProperty, "invoice/amount", ConflictPropertyTypeChange)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	c := ConflictID(EntityProperty, "invoice/amount", ConflictConstraint)
	assert.NotEqual(t, a, c)
}

func TestConflictSignature_IgnoresID(t *testing.T) {
	mk := func(id string) *MergeConflict {
		return &MergeConflict{
			ID:          id,
			Type:        ConflictPropertyTypeChange,
			EntityID:    "invoice/amount",
			SourceValue: &PropertyDef{Name: "amount", Type: "double"},
			TargetValue: &PropertyDef{Name: "amount", Type: "float"},
		}
	}

	assert.Equal(t, ConflictSignature(mk("a")), ConflictSignature(mk("b")))

	other := mk("a")
	other.TargetValue = &PropertyDef{Name: "amount", Type: "decimal"}
	assert.NotEqual(t, ConflictSignature(mk("a")), ConflictSignature(other))
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityInfo, MaxSeverity(nil))
	assert.Equal(t, SeverityError, MaxSeverity([]*MergeConflict{
		{Severity: SeverityWarn},
		{Severity: SeverityError},
		{Severity: SeverityInfo},
	}))
}
