package merge

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ovclabs/ovc/internal/metrics"
	"github.com/ovclabs/ovc/internal/models"
)

const resolutionCacheSize = 1024

// AttemptRecorder receives every strategy attempt for later aggregation.
type AttemptRecorder interface {
	RecordAttempt(conflictID, strategy string, success bool) error
}

// Resolver runs registered strategies over detected conflicts. Results are
// cached by conflict signature so the same divergence resolves identically
// across repeated analyze and merge runs.
type Resolver struct {
	cache  *lru.Cache[string, *models.ConflictResolution]
	ledger AttemptRecorder
	logger *slog.Logger
}

// NewResolver creates a resolver. The ledger may be nil, in which case
// attempts are not recorded.
func NewResolver(ledger AttemptRecorder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, *models.ConflictResolution](resolutionCacheSize)
	return &Resolver{cache: cache, ledger: ledger, logger: logger}
}

// Resolve attempts to resolve one conflict via the strategy registry.
// Returns nil when no strategy is registered for the conflict's shape or
// the registered strategy declines.
func (r *Resolver) Resolve(conflict *models.MergeConflict) *models.ConflictResolution {
	strategy, ok := StrategyFor(conflict.Type, conflict.Severity)
	if !ok {
		return nil
	}

	signature := models.ConflictSignature(conflict)
	if cached, hit := r.cache.Get(signature); hit {
		metrics.ResolutionCacheHits.Inc()
		// The cached resolution was computed for a conflict with the same
		// signature but possibly a different id.
		clone := *cached
		clone.ConflictID = conflict.ID
		return &clone
	}

	resolution := strategy.Resolve(conflict)

	outcome := "declined"
	if resolution != nil {
		outcome = "resolved"
		if !resolution.FullyResolved() {
			outcome = "partial"
		}
	}
	metrics.ResolutionAttempts.WithLabelValues(strategy.Name(), outcome).Inc()

	if r.ledger != nil {
		if err := r.ledger.RecordAttempt(conflict.ID, strategy.Name(), resolution != nil); err != nil {
			r.logger.Warn("ledger: record attempt failed",
				"conflict", conflict.ID, "strategy", strategy.Name(), "error", err)
		}
	}

	if resolution != nil {
		r.cache.Add(signature, resolution)
	}

	return resolution
}

// ResolveAll runs Resolve over a conflict set and partitions the output:
// resolutions holds every produced resolution, and unresolved holds the
// conflicts left without one.
func (r *Resolver) ResolveAll(conflicts []*models.MergeConflict) (resolutions []*models.ConflictResolution, unresolved []*models.MergeConflict) {
	for _, conflict := range conflicts {
		resolution := r.Resolve(conflict)
		if resolution == nil {
			unresolved = append(unresolved, conflict)
			continue
		}
		resolutions = append(resolutions, resolution)
		if !resolution.FullyResolved() {
			unresolved = append(unresolved, conflict)
		}
	}
	return resolutions, unresolved
}
