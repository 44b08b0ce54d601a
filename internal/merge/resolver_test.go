package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovclabs/ovc/internal/models"
)

// recordingLedger captures attempts for assertions.
type recordingLedger struct {
	attempts []attempt
}

type attempt struct {
	conflictID string
	strategy   string
	success    bool
}

func (l *recordingLedger) RecordAttempt(conflictID, strategy string, success bool) error {
	l.attempts = append(l.attempts, attempt{conflictID, strategy, success})
	return nil
}

func wideningConflict(id string) *models.MergeConflict {
	return &models.MergeConflict{
		ID:          id,
		Type:        models.ConflictPropertyTypeChange,
		Severity:    models.SeverityInfo,
		EntityType:  models.EntityProperty,
		EntityID:    "invoice/memo",
		SourceValue: &models.PropertyDef{Name: "memo", Type: "text"},
		TargetValue: &models.PropertyDef{Name: "memo", Type: "string"},
	}
}

func TestResolver_ResolveRecordsAttempt(t *testing.T) {
	ledger := &recordingLedger{}
	r := NewResolver(ledger, nil)

	resolution := r.Resolve(wideningConflict("c1"))
	require.NotNil(t, resolution)
	assert.Equal(t, "c1", resolution.ConflictID)

	require.Len(t, ledger.attempts, 1)
	assert.Equal(t, "c1", ledger.attempts[0].conflictID)
	assert.Equal(t, "type-widening", ledger.attempts[0].strategy)
	assert.True(t, ledger.attempts[0].success)
}

func TestResolver_CacheHitSkipsStrategyAndLedger(t *testing.T) {
	ledger := &recordingLedger{}
	r := NewResolver(ledger, nil)

	first := r.Resolve(wideningConflict("c1"))
	require.NotNil(t, first)

	// Same divergence with a different id, as a second analyze run of the
	// same branches would produce.
	second := r.Resolve(wideningConflict("c2"))
	require.NotNil(t, second)

	// Only the first run hit the strategy and the ledger.
	assert.Len(t, ledger.attempts, 1)
	// The cached resolution is re-labeled for the new conflict.
	assert.Equal(t, "c2", second.ConflictID)
	assert.Equal(t, first.Action, second.Action)
}

func TestResolver_UnregisteredShapeReturnsNil(t *testing.T) {
	ledger := &recordingLedger{}
	r := NewResolver(ledger, nil)

	conflict := &models.MergeConflict{
		ID:       "c1",
		Type:     models.ConflictCircularDependency,
		Severity: models.SeverityBlock,
	}

	assert.Nil(t, r.Resolve(conflict))
	// No strategy ran, so nothing was recorded.
	assert.Empty(t, ledger.attempts)
}

func TestResolver_DeclinedAttemptRecordedAsFailure(t *testing.T) {
	ledger := &recordingLedger{}
	r := NewResolver(ledger, nil)

	// Registered shape, but the payload does not fit the strategy.
	conflict := &models.MergeConflict{
		ID:          "c1",
		Type:        models.ConflictPropertyTypeChange,
		Severity:    models.SeverityInfo,
		SourceValue: &models.PropertyDef{Name: "memo", Type: "boolean"},
		TargetValue: &models.PropertyDef{Name: "memo", Type: "geo"},
	}

	assert.Nil(t, r.Resolve(conflict))
	require.Len(t, ledger.attempts, 1)
	assert.False(t, ledger.attempts[0].success)
}

func TestResolver_NilLedger(t *testing.T) {
	r := NewResolver(nil, nil)
	assert.NotNil(t, r.Resolve(wideningConflict("c1")))
}

func TestResolveAll_PartitionsOutput(t *testing.T) {
	r := NewResolver(&recordingLedger{}, nil)

	auto := wideningConflict("auto")
	blocked := &models.MergeConflict{
		ID:       "blocked",
		Type:     models.ConflictCircularDependency,
		Severity: models.SeverityBlock,
	}
	partial := &models.MergeConflict{
		ID:       "partial",
		Type:     models.ConflictNameCollision,
		Severity: models.SeverityWarn,
		SourceValue: &models.ObjectWithProps{
			Object: &models.ObjectType{ID: "invoice", Name: "Invoice"},
			Properties: map[string]*models.PropertyDef{
				"amount": {Name: "amount", Type: "float"},
				"status": {Name: "status", Type: "string"},
			},
		},
		TargetValue: &models.ObjectWithProps{
			Object: &models.ObjectType{ID: "invoice", Name: "Invoice"},
			Properties: map[string]*models.PropertyDef{
				"status": {Name: "status", Type: "integer"},
			},
		},
	}

	resolutions, unresolved := r.ResolveAll([]*models.MergeConflict{auto, blocked, partial})

	// The partial resolution is reported on both sides: it carries the
	// merged subset but its conflict still needs a human decision.
	require.Len(t, resolutions, 2)
	require.Len(t, unresolved, 2)

	resolvedIDs := []string{resolutions[0].ConflictID, resolutions[1].ConflictID}
	assert.ElementsMatch(t, []string{"auto", "partial"}, resolvedIDs)

	unresolvedIDs := []string{unresolved[0].ID, unresolved[1].ID}
	assert.ElementsMatch(t, []string{"blocked", "partial"}, unresolvedIDs)
}
