package graphstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ovclabs/ovc/internal/models"
)

// MockClient is an in-memory implementation of ClientInterface for testing.
type MockClient struct {
	mu sync.Mutex

	// Branches maps "database/branch" to the head commit ID.
	Branches map[string]string
	// Commits maps "database/commitID" to commit metadata.
	Commits map[string]*models.Commit
	// Snapshots maps "database/commitID" to the schema state at that commit.
	Snapshots map[string]*models.SchemaSnapshot

	// Err makes every method return this error when set.
	Err error
	// CommitErr makes transaction commits fail when set. Staged state is
	// discarded, simulating a rolled-back store transaction.
	CommitErr error
}

// NewMockClient creates a new MockClient for testing.
func NewMockClient() *MockClient {
	return &MockClient{
		Branches:  make(map[string]string),
		Commits:   make(map[string]*models.Commit),
		Snapshots: make(map[string]*models.SchemaSnapshot),
	}
}

func mockKey(database, id string) string {
	return database + "/" + id
}

// AddCommit registers a commit in the mock commit graph.
func (m *MockClient) AddCommit(database string, commit *models.Commit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commits[mockKey(database, commit.ID)] = commit
}

// SetBranch points a branch at a commit.
func (m *MockClient) SetBranch(database, branch, commitID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Branches[mockKey(database, branch)] = commitID
}

// SetSnapshot stores the schema state for a commit.
func (m *MockClient) SetSnapshot(database, commitID string, snapshot *models.SchemaSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots[mockKey(database, commitID)] = CloneSnapshot(snapshot)
}

// SeedBranch registers a commit, its snapshot, and a branch head in one call.
func (m *MockClient) SeedBranch(database, branch string, commit *models.Commit, snapshot *models.SchemaSnapshot) {
	m.AddCommit(database, commit)
	m.SetSnapshot(database, commit.ID, snapshot)
	m.SetBranch(database, branch, commit.ID)
}

// Ping returns the injected error, if any.
func (m *MockClient) Ping(ctx context.Context) error {
	return m.Err
}

// GetBranchHead returns the head commit ID for a branch.
func (m *MockClient) GetBranchHead(ctx context.Context, database, branch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	head, ok := m.Branches[mockKey(database, branch)]
	if !ok {
		return "", fmt.Errorf("branch %q not found in database %q", branch, database)
	}
	return head, nil
}

// GetCommitInfo returns commit metadata by ID.
func (m *MockClient) GetCommitInfo(ctx context.Context, database, commitID string) (*models.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	commit, ok := m.Commits[mockKey(database, commitID)]
	if !ok {
		return nil, fmt.Errorf("commit %q not found", commitID)
	}
	clone := *commit
	return &clone, nil
}

// GetSchema returns the schema state at a branch head.
func (m *MockClient) GetSchema(ctx context.Context, database, branch string) (*models.SchemaSnapshot, error) {
	head, err := m.GetBranchHead(ctx, database, branch)
	if err != nil {
		return nil, err
	}
	return m.GetSchemaAtCommit(ctx, database, head)
}

// GetSchemaAtCommit returns the schema state at a specific commit.
func (m *MockClient) GetSchemaAtCommit(ctx context.Context, database, commitID string) (*models.SchemaSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	snapshot, ok := m.Snapshots[mockKey(database, commitID)]
	if !ok {
		return nil, fmt.Errorf("no schema snapshot for commit %q", commitID)
	}
	return CloneSnapshot(snapshot), nil
}

// BeginTransaction opens a staged update scope against a branch head.
func (m *MockClient) BeginTransaction(ctx context.Context, database, branch string) (Transaction, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	head, err := m.GetBranchHead(ctx, database, branch)
	if err != nil {
		return nil, err
	}
	base, err := m.GetSchemaAtCommit(ctx, database, head)
	if err != nil {
		// A branch may point at a commit with no snapshot yet; start empty.
		base = models.NewSchemaSnapshot()
	}
	return &mockTransaction{
		client:   m,
		database: database,
		branch:   branch,
		parent:   head,
		state:    base,
	}, nil
}

// BeginTransactionAt opens a staged update scope based at a specific commit.
func (m *MockClient) BeginTransactionAt(ctx context.Context, database, branch, baseCommit string) (Transaction, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	base, err := m.GetSchemaAtCommit(ctx, database, baseCommit)
	if err != nil {
		base = models.NewSchemaSnapshot()
	}
	return &mockTransaction{
		client:   m,
		database: database,
		branch:   branch,
		parent:   baseCommit,
		state:    base,
	}, nil
}

// mockTransaction applies staged mutations to a private copy of the branch
// state and publishes them atomically on Commit.
type mockTransaction struct {
	client   *MockClient
	database string
	branch   string
	parent   string
	state    *models.SchemaSnapshot
}

func (t *mockTransaction) UpdateObjectType(obj *models.ObjectType) {
	t.state.Objects[obj.ID] = cloneObjectType(obj)
}

func (t *mockTransaction) DeleteObjectType(id string) {
	delete(t.state.Objects, id)
	delete(t.state.Properties, id)
}

func (t *mockTransaction) UpdateLinkType(link *models.LinkType) {
	clone := *link
	t.state.Links[link.ID] = &clone
}

func (t *mockTransaction) DeleteLinkType(id string) {
	delete(t.state.Links, id)
}

func (t *mockTransaction) UpdateProperty(owner string, prop *models.PropertyDef) {
	props, ok := t.state.Properties[owner]
	if !ok {
		props = make(map[string]*models.PropertyDef)
		t.state.Properties[owner] = props
	}
	props[prop.Name] = cloneProperty(prop)
}

func (t *mockTransaction) DeleteProperty(owner, name string) {
	if props, ok := t.state.Properties[owner]; ok {
		delete(props, name)
		if len(props) == 0 {
			delete(t.state.Properties, owner)
		}
	}
}

func (t *mockTransaction) UpdateConstraint(c *models.Constraint) {
	t.state.Constraints[c.ID] = cloneConstraint(c)
}

func (t *mockTransaction) DeleteConstraint(id string) {
	delete(t.state.Constraints, id)
}

func (t *mockTransaction) Commit(ctx context.Context, message, author, mergeParent string, metadata map[string]interface{}) (string, error) {
	m := t.client
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		return "", m.CommitErr
	}

	now := time.Now()
	var commitID string
	if mergeParent != "" {
		commitID = models.GenerateMergeCommitID(message, now, t.parent, mergeParent, t.state)
	} else {
		commitID = models.GenerateCommitID(message, now, t.parent, t.state)
	}

	commit := &models.Commit{
		ID:            commitID,
		ParentID:      t.parent,
		MergeParentID: mergeParent,
		Author:        author,
		Message:       message,
		Timestamp:     now,
		Metadata:      metadata,
	}

	m.Commits[mockKey(t.database, commitID)] = commit
	m.Snapshots[mockKey(t.database, commitID)] = CloneSnapshot(t.state)
	m.Branches[mockKey(t.database, t.branch)] = commitID

	return commitID, nil
}
