// Package graphstore provides the client boundary to the backing graph
// database that owns branch heads, the commit DAG, and schema snapshots.
// A Weaviate-backed implementation and an in-memory mock are provided.
package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"

	"github.com/ovclabs/ovc/internal/models"
)

const (
	classCommit = "OvcCommit"
	classBranch = "OvcBranch"
)

// idNamespace is the UUID v5 namespace for deterministic object ids.
var idNamespace = uuid.MustParse("9f2c1d26-7b6e-4d1a-8c3f-5e0a4b9d2f71")

// Client wraps the Weaviate client with OVC-specific functionality.
// Commits and branch heads are stored as objects of dedicated classes;
// each commit carries the full schema snapshot it produced.
type Client struct {
	client *weaviate.Client
	url    string
}

// NewClient creates a new graph store client.
func NewClient(url string) (*Client, error) {
	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}

	if len(url) > 7 && url[:7] == "http://" {
		cfg.Host = url[7:]
		cfg.Scheme = "http"
	} else if len(url) > 8 && url[:8] == "https://" {
		cfg.Host = url[8:]
		cfg.Scheme = "https"
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph store client: %w", err)
	}

	return &Client{client: client, url: url}, nil
}

// Ping checks if the graph store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to graph store: %w", err)
	}
	if !live {
		return fmt.Errorf("graph store is not live")
	}
	return nil
}

// EnsureClasses creates the OVC bookkeeping classes if they do not exist.
func (c *Client) EnsureClasses(ctx context.Context) error {
	classes := []*weaviatemodels.Class{
		{
			Class:      classCommit,
			Vectorizer: "none",
			Properties: []*weaviatemodels.Property{
				{Name: "database", DataType: []string{"text"}},
				{Name: "commitId", DataType: []string{"text"}},
				{Name: "parentId", DataType: []string{"text"}},
				{Name: "mergeParentId", DataType: []string{"text"}},
				{Name: "author", DataType: []string{"text"}},
				{Name: "message", DataType: []string{"text"}},
				{Name: "timestamp", DataType: []string{"text"}},
				{Name: "metadata", DataType: []string{"text"}},
				{Name: "schema", DataType: []string{"text"}},
			},
		},
		{
			Class:      classBranch,
			Vectorizer: "none",
			Properties: []*weaviatemodels.Property{
				{Name: "database", DataType: []string{"text"}},
				{Name: "name", DataType: []string{"text"}},
				{Name: "commitId", DataType: []string{"text"}},
			},
		},
	}

	for _, class := range classes {
		exists, err := c.client.Schema().ClassExistenceChecker().
			WithClassName(class.Class).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("check class %s: %w", class.Class, err)
		}
		if exists {
			continue
		}
		if err := c.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create class %s: %w", class.Class, err)
		}
	}
	return nil
}

// commitUUID returns the deterministic object id for a commit row.
func commitUUID(database, commitID string) string {
	return uuid.NewSHA1(idNamespace, []byte("commit|"+database+"|"+commitID)).String()
}

// branchUUID returns the deterministic object id for a branch row.
func branchUUID(database, branch string) string {
	return uuid.NewSHA1(idNamespace, []byte("branch|"+database+"|"+branch)).String()
}

// GetBranchHead returns the head commit ID for a branch.
func (c *Client) GetBranchHead(ctx context.Context, database, branch string) (string, error) {
	props, err := c.getObjectProperties(ctx, classBranch, branchUUID(database, branch))
	if err != nil {
		return "", fmt.Errorf("branch %q not found in database %q: %w", branch, database, err)
	}
	head, _ := props["commitId"].(string)
	if head == "" {
		return "", fmt.Errorf("branch %q has no head commit", branch)
	}
	return head, nil
}

// GetCommitInfo returns commit metadata by ID.
func (c *Client) GetCommitInfo(ctx context.Context, database, commitID string) (*models.Commit, error) {
	props, err := c.getObjectProperties(ctx, classCommit, commitUUID(database, commitID))
	if err != nil {
		return nil, fmt.Errorf("commit %q not found: %w", commitID, err)
	}
	return commitFromProperties(props), nil
}

// GetSchema returns the schema state at a branch head.
func (c *Client) GetSchema(ctx context.Context, database, branch string) (*models.SchemaSnapshot, error) {
	head, err := c.GetBranchHead(ctx, database, branch)
	if err != nil {
		return nil, err
	}
	return c.GetSchemaAtCommit(ctx, database, head)
}

// GetSchemaAtCommit returns the schema state captured by a commit.
func (c *Client) GetSchemaAtCommit(ctx context.Context, database, commitID string) (*models.SchemaSnapshot, error) {
	props, err := c.getObjectProperties(ctx, classCommit, commitUUID(database, commitID))
	if err != nil {
		return nil, fmt.Errorf("commit %q not found: %w", commitID, err)
	}

	raw, _ := props["schema"].(string)
	if raw == "" {
		return models.NewSchemaSnapshot(), nil
	}

	var snapshot models.SchemaSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("malformed schema snapshot at commit %s: %w", commitID, err)
	}
	return normalizeSnapshot(&snapshot), nil
}

// BeginTransaction opens a staged update scope against a branch head.
func (c *Client) BeginTransaction(ctx context.Context, database, branch string) (Transaction, error) {
	head, err := c.GetBranchHead(ctx, database, branch)
	if err != nil {
		return nil, err
	}
	base, err := c.GetSchemaAtCommit(ctx, database, head)
	if err != nil {
		return nil, err
	}
	return &storeTransaction{
		client:   c,
		database: database,
		branch:   branch,
		parent:   head,
		state:    base,
	}, nil
}

// BeginTransactionAt opens a staged update scope based at a specific commit
// instead of the branch head.
func (c *Client) BeginTransactionAt(ctx context.Context, database, branch, baseCommit string) (Transaction, error) {
	base, err := c.GetSchemaAtCommit(ctx, database, baseCommit)
	if err != nil {
		return nil, err
	}
	return &storeTransaction{
		client:   c,
		database: database,
		branch:   branch,
		parent:   baseCommit,
		state:    base,
	}, nil
}

// getObjectProperties fetches one object and returns its property map.
func (c *Client) getObjectProperties(ctx context.Context, className, objectID string) (map[string]interface{}, error) {
	objs, err := c.client.Data().ObjectsGetter().
		WithClassName(className).
		WithID(objectID).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("object not found")
	}
	props, ok := objs[0].Properties.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected property format")
	}
	return props, nil
}

// commitFromProperties converts a stored commit row into a Commit.
func commitFromProperties(props map[string]interface{}) *models.Commit {
	commit := &models.Commit{}
	commit.ID, _ = props["commitId"].(string)
	commit.ParentID, _ = props["parentId"].(string)
	commit.MergeParentID, _ = props["mergeParentId"].(string)
	commit.Author, _ = props["author"].(string)
	commit.Message, _ = props["message"].(string)

	if ts, ok := props["timestamp"].(string); ok && ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			commit.Timestamp = parsed
		}
	}
	if raw, ok := props["metadata"].(string); ok && raw != "" {
		var metadata map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &metadata); err == nil {
			commit.Metadata = metadata
		}
	}
	return commit
}

// normalizeSnapshot replaces nil maps with empty ones after unmarshaling.
func normalizeSnapshot(s *models.SchemaSnapshot) *models.SchemaSnapshot {
	if s.Objects == nil {
		s.Objects = make(map[string]*models.ObjectType)
	}
	if s.Links == nil {
		s.Links = make(map[string]*models.LinkType)
	}
	if s.Properties == nil {
		s.Properties = make(map[string]map[string]*models.PropertyDef)
	}
	if s.Constraints == nil {
		s.Constraints = make(map[string]*models.Constraint)
	}
	return s
}

// storeTransaction stages mutations on a private snapshot copy and writes
// the commit row before advancing the branch head, so a failed write never
// moves the head.
type storeTransaction struct {
	client   *Client
	database string
	branch   string
	parent   string
	state    *models.SchemaSnapshot
}

func (t *storeTransaction) UpdateObjectType(obj *models.ObjectType) {
	t.state.Objects[obj.ID] = cloneObjectType(obj)
}

func (t *storeTransaction) DeleteObjectType(id string) {
	delete(t.state.Objects, id)
	delete(t.state.Properties, id)
}

func (t *storeTransaction) UpdateLinkType(link *models.LinkType) {
	clone := *link
	t.state.Links[link.ID] = &clone
}

func (t *storeTransaction) DeleteLinkType(id string) {
	delete(t.state.Links, id)
}

func (t *storeTransaction) UpdateProperty(owner string, prop *models.PropertyDef) {
	props, ok := t.state.Properties[owner]
	if !ok {
		props = make(map[string]*models.PropertyDef)
		t.state.Properties[owner] = props
	}
	props[prop.Name] = cloneProperty(prop)
}

func (t *storeTransaction) DeleteProperty(owner, name string) {
	if props, ok := t.state.Properties[owner]; ok {
		delete(props, name)
		if len(props) == 0 {
			delete(t.state.Properties, owner)
		}
	}
}

func (t *storeTransaction) UpdateConstraint(c *models.Constraint) {
	t.state.Constraints[c.ID] = cloneConstraint(c)
}

func (t *storeTransaction) DeleteConstraint(id string) {
	delete(t.state.Constraints, id)
}

func (t *storeTransaction) Commit(ctx context.Context, message, author, mergeParent string, metadata map[string]interface{}) (string, error) {
	now := time.Now()

	var commitID string
	if mergeParent != "" {
		commitID = models.GenerateMergeCommitID(message, now, t.parent, mergeParent, t.state)
	} else {
		commitID = models.GenerateCommitID(message, now, t.parent, t.state)
	}

	schemaJSON, err := json.Marshal(t.state)
	if err != nil {
		return "", fmt.Errorf("marshal schema snapshot: %w", err)
	}

	metadataJSON := "{}"
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("marshal commit metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	// Write the commit row first. The branch head moves last, so a failure
	// at any earlier point leaves the previous state fully intact.
	_, err = t.client.client.Data().Creator().
		WithClassName(classCommit).
		WithID(commitUUID(t.database, commitID)).
		WithProperties(map[string]interface{}{
			"database":      t.database,
			"commitId":      commitID,
			"parentId":      t.parent,
			"mergeParentId": mergeParent,
			"author":        author,
			"message":       message,
			"timestamp":     now.Format(time.RFC3339Nano),
			"metadata":      metadataJSON,
			"schema":        string(schemaJSON),
		}).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("write commit: %w", err)
	}

	if err := t.client.setBranchHead(ctx, t.database, t.branch, commitID); err != nil {
		// Unreferenced commit rows are harmless; remove best-effort.
		_ = t.client.client.Data().Deleter().
			WithClassName(classCommit).
			WithID(commitUUID(t.database, commitID)).
			Do(ctx)
		return "", fmt.Errorf("advance branch head: %w", err)
	}

	return commitID, nil
}

// setBranchHead updates or creates the branch head row.
func (c *Client) setBranchHead(ctx context.Context, database, branch, commitID string) error {
	id := branchUUID(database, branch)
	props := map[string]interface{}{
		"database": database,
		"name":     branch,
		"commitId": commitID,
	}

	if _, err := c.getObjectProperties(ctx, classBranch, id); err == nil {
		return c.client.Data().Updater().
			WithClassName(classBranch).
			WithID(id).
			WithProperties(props).
			Do(ctx)
	}

	_, err := c.client.Data().Creator().
		WithClassName(classBranch).
		WithID(id).
		WithProperties(props).
		Do(ctx)
	return err
}

// CreateBranch points a new branch at an existing commit.
func (c *Client) CreateBranch(ctx context.Context, database, branch, commitID string) error {
	return c.setBranchHead(ctx, database, branch, commitID)
}
