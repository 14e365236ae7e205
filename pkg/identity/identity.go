// Package identity clusters Contributor nodes whose name/email pairs
// look like the same person under different signatures (a rename, a
// work/personal email split, a typo'd commit identity), surfacing the
// match as an Aliases hyperedge rather than silently merging nodes.
package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/levenshtein"
)

// SimilarityThreshold is the minimum name-similarity score at which two
// Contributor nodes are treated as probable aliases of the same person.
const SimilarityThreshold = 0.82

// Resolver clusters Contributor nodes by name/email similarity.
type Resolver struct {
	ctx levenshtein.Context
}

// NewResolver builds a Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// AliasPair is one candidate alias relationship surfaced by Cluster.
type AliasPair struct {
	PrimaryID   int64
	AliasID     int64
	Similarity  float64
	PrimaryName string
	AliasName   string
}

// Cluster compares every pair of Contributor nodes and returns the
// pairs whose display names look like the same person, one pair per
// alias (the earlier-created node, by id, is treated as primary).
func (r *Resolver) Cluster(contributors []homergraph.Node) []AliasPair {
	names := make([]string, len(contributors))
	for i, c := range contributors {
		names[i] = displayName(c)
	}

	var pairs []AliasPair

	for i := range contributors {
		for j := i + 1; j < len(contributors); j++ {
			if contributors[i].Name == contributors[j].Name {
				continue
			}

			sim := r.ctx.Similarity(normalize(names[i]), normalize(names[j]))
			if sim < SimilarityThreshold {
				continue
			}

			primary, alias := contributors[i], contributors[j]
			if alias.ID < primary.ID {
				primary, alias = alias, primary
			}

			pairs = append(pairs, AliasPair{
				PrimaryID:   primary.ID,
				AliasID:     alias.ID,
				Similarity:  sim,
				PrimaryName: displayName(primary),
				AliasName:   displayName(alias),
			})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].PrimaryID != pairs[j].PrimaryID {
			return pairs[i].PrimaryID < pairs[j].PrimaryID
		}

		return pairs[i].AliasID < pairs[j].AliasID
	})

	return pairs
}

// ResolveAliases loads every Contributor node from the store, clusters
// them, and upserts an Aliases hyperedge per surviving pair. It returns
// the number of edges written.
func ResolveAliases(ctx context.Context, store *homergraph.Store) (int, error) {
	contributors, err := store.ListNodesByKind(ctx, homergraph.NodeContributor)
	if err != nil {
		return 0, fmt.Errorf("list contributors: %w", err)
	}

	resolver := NewResolver()
	pairs := resolver.Cluster(contributors)

	for _, pair := range pairs {
		if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeAliases,
			Members: []homergraph.Member{
				{NodeID: pair.PrimaryID, Role: "primary", Position: 0},
				{NodeID: pair.AliasID, Role: "alias", Position: 1},
			},
			Confidence: pair.Similarity,
			Metadata: map[string]any{
				"primary_name": pair.PrimaryName,
				"alias_name":   pair.AliasName,
			},
		}); edgeErr != nil {
			return 0, fmt.Errorf("upsert contributor alias %s<-%s: %w", pair.PrimaryName, pair.AliasName, edgeErr)
		}
	}

	return len(pairs), nil
}

func displayName(c homergraph.Node) string {
	if name, ok := c.Metadata["name"].(string); ok && name != "" {
		return name
	}

	return c.Name
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
