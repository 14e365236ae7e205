package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/identity"
)

func TestResolver_Cluster_FindsCloseNameVariant(t *testing.T) {
	t.Parallel()

	contributors := []homergraph.Node{
		{ID: 1, Name: "jane@work.example", Metadata: map[string]any{"name": "Jane Doe"}},
		{ID: 2, Name: "jane@personal.example", Metadata: map[string]any{"name": "Jane A. Doe"}},
		{ID: 3, Name: "bob@example.com", Metadata: map[string]any{"name": "Bob Smith"}},
	}

	pairs := identity.NewResolver().Cluster(contributors)

	assert.Len(t, pairs, 1)
	assert.Equal(t, int64(1), pairs[0].PrimaryID)
	assert.Equal(t, int64(2), pairs[0].AliasID)
	assert.Greater(t, pairs[0].Similarity, identity.SimilarityThreshold)
}

func TestResolver_Cluster_IgnoresUnrelatedNames(t *testing.T) {
	t.Parallel()

	contributors := []homergraph.Node{
		{ID: 1, Name: "a@example.com", Metadata: map[string]any{"name": "Alice Cooper"}},
		{ID: 2, Name: "b@example.com", Metadata: map[string]any{"name": "Bob Dylan"}},
	}

	pairs := identity.NewResolver().Cluster(contributors)
	assert.Empty(t, pairs)
}

func TestResolver_Cluster_OrdersPrimaryByLowerID(t *testing.T) {
	t.Parallel()

	contributors := []homergraph.Node{
		{ID: 5, Name: "jane.doe@example.com", Metadata: map[string]any{"name": "Jane Doe"}},
		{ID: 2, Name: "j.doe@example.com", Metadata: map[string]any{"name": "Jane Doee"}},
	}

	pairs := identity.NewResolver().Cluster(contributors)

	assert.Len(t, pairs, 1)
	assert.Equal(t, int64(2), pairs[0].PrimaryID)
	assert.Equal(t, int64(5), pairs[0].AliasID)
}
