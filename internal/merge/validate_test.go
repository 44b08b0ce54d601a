package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovclabs/ovc/internal/models"
)

func TestValidateSnapshot_Clean(t *testing.T) {
	snapshot := models.NewSchemaSnapshot()
	addObject(snapshot, "article", "Article", "")
	addObject(snapshot, "tag", "Tag", "")
	addProperty(snapshot, "article", "title", "string")
	addLink(snapshot, "article-tags", "article", "tag", models.OneToMany, false)
	addRangeConstraint(snapshot, "title-len", "article", "title", 1, 200)

	assert.Empty(t, ValidateSnapshot(snapshot))
}

func TestValidateSnapshot_DanglingLink(t *testing.T) {
	snapshot := models.NewSchemaSnapshot()
	addObject(snapshot, "article", "Article", "")
	addLink(snapshot, "article-tags", "article", "tag", models.OneToMany, false)

	warnings := ValidateSnapshot(snapshot)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `missing object type "tag"`)
}

func TestValidateSnapshot_ConstraintOnMissingProperty(t *testing.T) {
	snapshot := models.NewSchemaSnapshot()
	addObject(snapshot, "article", "Article", "")
	addProperty(snapshot, "article", "title", "string")
	addRangeConstraint(snapshot, "word-count", "article", "words", 0, 10000)

	warnings := ValidateSnapshot(snapshot)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "missing property article.words")
}

func TestValidateSnapshot_OrphanProperties(t *testing.T) {
	snapshot := models.NewSchemaSnapshot()
	addProperty(snapshot, "ghost", "title", "string")

	warnings := ValidateSnapshot(snapshot)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `missing object type "ghost"`)
}

func TestValidateSnapshot_RequiredLinkCycle(t *testing.T) {
	snapshot := models.NewSchemaSnapshot()
	addObject(snapshot, "alpha", "Alpha", "")
	addObject(snapshot, "beta", "Beta", "")
	addLink(snapshot, "a-to-b", "alpha", "beta", models.OneToOne, true)
	addLink(snapshot, "b-to-a", "beta", "alpha", models.OneToOne, true)

	warnings := ValidateSnapshot(snapshot)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "required links form a cycle")
}
