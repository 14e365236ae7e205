package toposort

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func index(s []string, v string) int {
	for i, s := range s {
		if s == v {
			return i
		}
	}

	return -1
}

func addNodes(g *Graph, names ...string) {
	for _, name := range names {
		g.AddNode(name)
	}
}

type edge struct {
	from string
	to   string
}

func TestGraphDuplicatedNode(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	assert.True(t, graph.AddNode("behavioral"))
	assert.False(t, graph.AddNode("behavioral"))
}

func TestGraphAddEdgeTwice(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	assert.True(t, graph.AddEdge("behavioral", "centrality"))
	assert.False(t, graph.AddEdge("behavioral", "centrality"))
}

func TestGraphRemoveMissingEdge(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	assert.False(t, graph.RemoveEdge("a", "b"))
}

func TestToposortRespectsDependencies(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	addNodes(graph, "2", "3", "5", "7", "8", "9", "10", "11")

	edges := []edge{
		{"7", "8"},
		{"7", "11"},
		{"5", "11"},
		{"3", "8"},
		{"3", "10"},
		{"11", "2"},
		{"11", "9"},
		{"11", "10"},
		{"8", "9"},
	}

	for _, e := range edges {
		graph.AddEdge(e.from, e.to)
	}

	result, ok := graph.Toposort()
	assert.True(t, ok)
	assert.Len(t, result, 8)

	for _, e := range edges {
		i, j := index(result, e.from), index(result, e.to)
		assert.Less(t, i, j, "producer %s must precede consumer %s", e.from, e.to)
	}
}

func TestToposortDetectsCycle(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	addNodes(graph, "behavioral", "centrality", "community")

	graph.AddEdge("behavioral", "centrality")
	graph.AddEdge("centrality", "community")
	graph.AddEdge("community", "behavioral")

	_, ok := graph.Toposort()
	assert.False(t, ok)
}

func TestToposortPartialPrefixOnCycle(t *testing.T) {
	t.Parallel()

	// "semantic" has no dependencies and still places even when the
	// other three declare a cycle.
	graph := NewGraph()
	addNodes(graph, "semantic", "behavioral", "centrality", "community")

	graph.AddEdge("behavioral", "centrality")
	graph.AddEdge("centrality", "community")
	graph.AddEdge("community", "behavioral")

	placed, ok := graph.Toposort()
	assert.False(t, ok)
	assert.Contains(t, placed, "semantic")
}

func TestFindCycle(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	addNodes(graph, "1", "2", "3", "4", "5")

	graph.AddEdge("1", "2")
	graph.AddEdge("2", "3")
	graph.AddEdge("2", "4")
	graph.AddEdge("3", "1")
	graph.AddEdge("5", "1")

	assert.Equal(t, []string{"2", "3", "1"}, graph.FindCycle("2"))
	assert.Empty(t, graph.FindCycle("5"))
	assert.Empty(t, graph.FindCycle("missing"))
}

func TestFindParentsAndChildren(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	addNodes(graph, "behavioral", "centrality", "community", "semantic")

	graph.AddEdge("behavioral", "centrality")
	graph.AddEdge("behavioral", "community")
	graph.AddEdge("semantic", "centrality")

	assert.Equal(t, []string{"behavioral", "semantic"}, graph.FindParents("centrality"))
	assert.Equal(t, []string{"centrality", "community"}, graph.FindChildren("behavioral"))
	assert.Empty(t, graph.FindParents("behavioral"))
	assert.Empty(t, graph.FindChildren("missing"))
}

func TestSerialize(t *testing.T) {
	t.Parallel()

	graph := NewGraph()
	addNodes(graph, "1", "2", "3", "4", "5")

	graph.AddEdge("1", "2")
	graph.AddEdge("2", "3")
	graph.AddEdge("2", "4")
	graph.AddEdge("3", "1")
	graph.AddEdge("5", "1")

	order := []string{"5", "4", "3", "2", "1"}
	gv := graph.Serialize(order)
	assert.Equal(t, `digraph Homer {
  "4 1" -> "3 2"
  "3 2" -> "2 3"
  "3 2" -> "1 4"
  "2 3" -> "4 1"
  "0 5" -> "4 1"
}`, gv)
}
