package merge

import (
	"context"
	"log/slog"

	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/models"
)

// AncestryResolver finds the lowest common ancestor of two commits by
// breadth-first expansion of parent links. Merge commits contribute both
// parents to the frontier.
type AncestryResolver struct {
	client   graphstore.ClientInterface
	maxDepth int
	logger   *slog.Logger
}

// NewAncestryResolver creates a resolver bounded to maxDepth commits per
// side. A maxDepth of 0 means unbounded.
func NewAncestryResolver(client graphstore.ClientInterface, maxDepth int, logger *slog.Logger) *AncestryResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AncestryResolver{client: client, maxDepth: maxDepth, logger: logger}
}

// FindCommonAncestor returns the lowest common ancestor of two commits,
// or nil when the histories never converge. A nil result is a valid
// outcome, not an error: callers fall back to pairwise diff semantics.
// Store failures and exhausted depth/deadline budgets degrade to nil with
// a logged warning rather than failing the merge.
func (r *AncestryResolver) FindCommonAncestor(ctx context.Context, database, sourceCommit, targetCommit string) *models.Commit {
	if sourceCommit == "" || targetCommit == "" {
		return nil
	}

	sourceAncestors := r.collectAncestors(ctx, database, sourceCommit)
	if sourceAncestors == nil {
		return nil
	}

	// BFS from the target side, stopping at the first commit already seen
	// from the source side.
	queue := []string{targetCommit}
	visited := make(map[string]bool)
	steps := 0

	for len(queue) > 0 {
		if ctx.Err() != nil {
			r.logger.Warn("ancestor search deadline exceeded, treating ancestor as unknown",
				"database", database, "visited", steps)
			return nil
		}
		if r.maxDepth > 0 && steps >= r.maxDepth {
			r.logger.Warn("ancestor search depth budget exhausted, treating ancestor as unknown",
				"database", database, "max_depth", r.maxDepth)
			return nil
		}

		current := queue[0]
		queue = queue[1:]

		if current == "" || visited[current] {
			continue
		}
		visited[current] = true
		steps++

		commit, err := r.client.GetCommitInfo(ctx, database, current)
		if err != nil {
			// Dangling parent pointers happen on shallow histories; skip.
			r.logger.Warn("ancestor search: unreadable commit skipped",
				"database", database, "commit", current, "error", err)
			continue
		}

		if sourceAncestors[current] {
			return commit
		}

		queue = append(queue, commit.Parents()...)
	}

	return nil
}

// collectAncestors gathers every commit reachable from start via parent
// links, bounded by the resolver's depth budget and context deadline.
// Returns nil when the budget was exhausted before the frontier emptied,
// since a partial ancestor set could produce a wrong (too-deep) answer
// on the matching side.
func (r *AncestryResolver) collectAncestors(ctx context.Context, database, start string) map[string]bool {
	ancestors := make(map[string]bool)
	queue := []string{start}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			r.logger.Warn("ancestor collection deadline exceeded, treating ancestor as unknown",
				"database", database, "collected", len(ancestors))
			return nil
		}
		if r.maxDepth > 0 && len(ancestors) >= r.maxDepth {
			r.logger.Warn("ancestor collection depth budget exhausted, treating ancestor as unknown",
				"database", database, "max_depth", r.maxDepth)
			return nil
		}

		current := queue[0]
		queue = queue[1:]

		if current == "" || ancestors[current] {
			continue
		}

		commit, err := r.client.GetCommitInfo(ctx, database, current)
		if err != nil {
			r.logger.Warn("ancestor collection: unreadable commit skipped",
				"database", database, "commit", current, "error", err)
			continue
		}
		ancestors[current] = true

		queue = append(queue, commit.Parents()...)
	}

	return ancestors
}
