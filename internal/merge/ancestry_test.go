package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovclabs/ovc/internal/graphstore"
	"github.com/ovclabs/ovc/internal/models"
)

const testDB = "testdb"

func newAncestryClient() *graphstore.MockClient {
	return graphstore.NewMockClient()
}

func TestFindCommonAncestor_LinearHistory(t *testing.T) {
	client := newAncestryClient()

	// c1 <- c2 <- c3
	client.AddCommit(testDB, &models.Commit{ID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c2", ParentID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c3", ParentID: "c2"})

	r := NewAncestryResolver(client, 0, nil)

	ancestor := r.FindCommonAncestor(context.Background(), testDB, "c2", "c3")
	require.NotNil(t, ancestor)
	assert.Equal(t, "c2", ancestor.ID)

	ancestor = r.FindCommonAncestor(context.Background(), testDB, "c1", "c3")
	require.NotNil(t, ancestor)
	assert.Equal(t, "c1", ancestor.ID)
}

func TestFindCommonAncestor_DivergedBranches(t *testing.T) {
	client := newAncestryClient()

	// c1 <- c2 (main)
	//    \- c3 (feature)
	client.AddCommit(testDB, &models.Commit{ID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c2", ParentID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c3", ParentID: "c1"})

	r := NewAncestryResolver(client, 0, nil)

	ancestor := r.FindCommonAncestor(context.Background(), testDB, "c2", "c3")
	require.NotNil(t, ancestor)
	assert.Equal(t, "c1", ancestor.ID)
}

func TestFindCommonAncestor_ThroughMergeCommit(t *testing.T) {
	client := newAncestryClient()

	// c1 <- c2 <- c4 (merge of c2 and c3)
	//    \- c3 -/
	client.AddCommit(testDB, &models.Commit{ID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c2", ParentID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c3", ParentID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c4", ParentID: "c2", MergeParentID: "c3"})

	r := NewAncestryResolver(client, 0, nil)

	// c3 is reachable from c4 via the merge parent.
	ancestor := r.FindCommonAncestor(context.Background(), testDB, "c3", "c4")
	require.NotNil(t, ancestor)
	assert.Equal(t, "c3", ancestor.ID)
}

func TestFindCommonAncestor_NoSharedHistory(t *testing.T) {
	client := newAncestryClient()

	client.AddCommit(testDB, &models.Commit{ID: "a1"})
	client.AddCommit(testDB, &models.Commit{ID: "a2", ParentID: "a1"})
	client.AddCommit(testDB, &models.Commit{ID: "b1"})
	client.AddCommit(testDB, &models.Commit{ID: "b2", ParentID: "b1"})

	r := NewAncestryResolver(client, 0, nil)

	assert.Nil(t, r.FindCommonAncestor(context.Background(), testDB, "a2", "b2"))
}

func TestFindCommonAncestor_DepthBudgetExhausted(t *testing.T) {
	client := newAncestryClient()

	client.AddCommit(testDB, &models.Commit{ID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c2", ParentID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c3", ParentID: "c2"})
	client.AddCommit(testDB, &models.Commit{ID: "c4", ParentID: "c2"})

	// A budget of one commit per side cannot reach the fork point.
	r := NewAncestryResolver(client, 1, nil)

	assert.Nil(t, r.FindCommonAncestor(context.Background(), testDB, "c3", "c4"))
}

func TestFindCommonAncestor_CancelledContext(t *testing.T) {
	client := newAncestryClient()

	client.AddCommit(testDB, &models.Commit{ID: "c1"})
	client.AddCommit(testDB, &models.Commit{ID: "c2", ParentID: "c1"})

	r := NewAncestryResolver(client, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, r.FindCommonAncestor(ctx, testDB, "c1", "c2"))
}

func TestFindCommonAncestor_EmptyCommitIDs(t *testing.T) {
	r := NewAncestryResolver(newAncestryClient(), 0, nil)

	assert.Nil(t, r.FindCommonAncestor(context.Background(), testDB, "", "c1"))
	assert.Nil(t, r.FindCommonAncestor(context.Background(), testDB, "c1", ""))
}
