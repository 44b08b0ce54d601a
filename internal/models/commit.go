package models

import "time"

// Commit represents a version control commit in the schema store.
type Commit struct {
	ID            string                 `json:"id"`
	ParentID      string                 `json:"parent_id,omitempty"`
	MergeParentID string                 `json:"merge_parent_id,omitempty"`
	Author        string                 `json:"author,omitempty"`
	Message       string                 `json:"message"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ShortID returns a shortened commit ID (first 7 characters).
func (c *Commit) ShortID() string {
	if len(c.ID) > 7 {
		return c.ID[:7]
	}
	return c.ID
}

// IsMergeCommit returns true if this commit has two parents.
func (c *Commit) IsMergeCommit() bool {
	return c.MergeParentID != ""
}

// Parents returns the non-empty parent IDs of the commit.
func (c *Commit) Parents() []string {
	var parents []string
	if c.ParentID != "" {
		parents = append(parents, c.ParentID)
	}
	if c.MergeParentID != "" {
		parents = append(parents, c.MergeParentID)
	}
	return parents
}

// Branch represents a named reference to a commit.
type Branch struct {
	Name      string    `json:"name"`
	CommitID  string    `json:"commit_id"`
	CreatedAt time.Time `json:"created_at"`
}
