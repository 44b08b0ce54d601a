package graphstore

import (
	"context"

	"github.com/ovclabs/ovc/internal/models"
)

// ClientInterface defines the contract for backing graph-store operations.
// This interface enables mocking for testing the merge package.
type ClientInterface interface {
	// Ping checks store reachability.
	Ping(ctx context.Context) error

	// Branch and commit-graph operations
	GetBranchHead(ctx context.Context, database, branch string) (string, error)
	GetCommitInfo(ctx context.Context, database, commitID string) (*models.Commit, error)

	// Schema snapshot fetch
	GetSchema(ctx context.Context, database, branch string) (*models.SchemaSnapshot, error)
	GetSchemaAtCommit(ctx context.Context, database, commitID string) (*models.SchemaSnapshot, error)

	// BeginTransaction opens an atomic update scope on a branch. All staged
	// mutations become visible only when Commit succeeds.
	BeginTransaction(ctx context.Context, database, branch string) (Transaction, error)

	// BeginTransactionAt opens an update scope whose base state and parent
	// is baseCommit rather than the branch head. Commit still advances the
	// branch. Used for fast-forward merges, where the new commit must
	// descend from the source head.
	BeginTransactionAt(ctx context.Context, database, branch, baseCommit string) (Transaction, error)
}

// Transaction is an atomic update scope against one branch. Mutations are
// staged in memory; Commit writes the resulting schema state, creates a
// commit, and advances the branch head. If Commit fails no partial state
// is observable.
type Transaction interface {
	UpdateObjectType(obj *models.ObjectType)
	DeleteObjectType(id string)
	UpdateLinkType(link *models.LinkType)
	DeleteLinkType(id string)
	UpdateProperty(owner string, prop *models.PropertyDef)
	DeleteProperty(owner, name string)
	UpdateConstraint(c *models.Constraint)
	DeleteConstraint(id string)

	// Commit persists the staged state as a new commit on the branch.
	// mergeParent may be empty for ordinary commits.
	Commit(ctx context.Context, message, author, mergeParent string, metadata map[string]interface{}) (string, error)
}

// Verify that implementations satisfy the interface at compile time.
var (
	_ ClientInterface = (*Client)(nil)
	_ ClientInterface = (*MockClient)(nil)
)
