// Package toposort provides topological sorting for directed acyclic
// graphs, used to order analyzers by their produced/required analysis
// kinds before a pipeline run.
package toposort

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
)

// Graph is a string-keyed directed graph over an interned IntGraph.
// The scheduler builds one with an edge from each producing analyzer
// to each analyzer requiring one of its kinds, then reads the run
// order off Toposort.
type Graph struct {
	symbols  *SymbolTable
	intGraph *IntGraph
}

// NewGraph initializes an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		symbols:  NewSymbolTable(),
		intGraph: NewIntGraph(),
	}
}

// AddNode inserts a node. Returns false if it was already present.
func (graph *Graph) AddNode(name string) bool {
	graph.symbols.lock.RLock()
	_, exists := graph.symbols.strToID[name]
	graph.symbols.lock.RUnlock()

	if exists {
		return false
	}

	return graph.intGraph.AddNode(graph.symbols.Intern(name))
}

// AddEdge inserts the dependency edge from -> to, interning either
// endpoint if it hasn't been added yet. Returns false if the edge was
// already present.
func (graph *Graph) AddEdge(from, to string) bool {
	src := graph.symbols.Intern(from)
	dst := graph.symbols.Intern(to)

	graph.intGraph.AddNode(src)
	graph.intGraph.AddNode(dst)

	return graph.intGraph.AddEdge(src, dst)
}

// RemoveEdge deletes the edge from -> to. Returns false when either
// endpoint or the edge itself doesn't exist.
func (graph *Graph) RemoveEdge(from, to string) bool {
	graph.symbols.lock.RLock()
	src, ok1 := graph.symbols.strToID[from]
	dst, ok2 := graph.symbols.strToID[to]
	graph.symbols.lock.RUnlock()

	if !ok1 || !ok2 {
		return false
	}

	return graph.intGraph.RemoveEdge(src, dst)
}

// Toposort returns the nodes in dependency order via Kahn's algorithm.
// On a cycle it returns the prefix that could be placed plus false;
// the scheduler appends the unplaced remainder in registration order.
func (graph *Graph) Toposort() ([]string, bool) {
	ids, ok := graph.intGraph.TopoSort()

	result := make([]string, len(ids))
	for idx, id := range ids {
		result[idx] = graph.symbols.Resolve(id)
	}

	return result, ok
}

// FindCycle returns one cycle through seed, or an empty slice when
// seed is acyclic. Used to name the offending analyzers in the
// scheduler's cycle diagnostic.
func (graph *Graph) FindCycle(seed string) []string {
	graph.symbols.lock.RLock()
	id, exists := graph.symbols.strToID[seed]
	graph.symbols.lock.RUnlock()

	if !exists {
		return []string{}
	}

	cycleIDs := graph.intGraph.FindCycle(id)

	// Drop the closing repetition of the start node.
	if len(cycleIDs) > 1 && cycleIDs[0] == cycleIDs[len(cycleIDs)-1] {
		cycleIDs = cycleIDs[:len(cycleIDs)-1]
	}

	result := make([]string, len(cycleIDs))
	for idx, cid := range cycleIDs {
		result[idx] = graph.symbols.Resolve(cid)
	}

	return result
}

// FindParents returns the sorted names with an edge into "to":
// the producers a node depends on.
func (graph *Graph) FindParents(to string) []string {
	graph.symbols.lock.RLock()
	targetID, exists := graph.symbols.strToID[to]
	graph.symbols.lock.RUnlock()

	if !exists {
		return []string{}
	}

	var parents []string

	// IntGraph stores forward adjacency only; reverse lookups scan.
	// Analyzer graphs are a handful of nodes, so the scan is free.
	for nodeIdx, children := range graph.intGraph.nodes {
		if slices.Contains(children, targetID) {
			parents = append(parents, graph.symbols.Resolve(nodeIdx))
		}
	}

	sort.Strings(parents)

	return parents
}

// FindChildren returns the sorted names "from" has an edge to: the
// consumers downstream of a node.
func (graph *Graph) FindChildren(from string) []string {
	graph.symbols.lock.RLock()
	src, exists := graph.symbols.strToID[from]
	graph.symbols.lock.RUnlock()

	if !exists || src >= len(graph.intGraph.nodes) {
		return []string{}
	}

	childrenIDs := graph.intGraph.nodes[src]

	children := make([]string, len(childrenIDs))
	for idx, neighbor := range childrenIDs {
		children[idx] = graph.symbols.Resolve(neighbor)
	}

	sort.Strings(children)

	return children
}

// Serialize renders the graph in Graphviz format, each node prefixed
// with its position in sorted (the computed run order), for debugging
// schedule construction.
func (graph *Graph) Serialize(sorted []string) string {
	node2index := map[string]int{}
	for index, node := range sorted {
		node2index[node] = index
	}

	var buffer bytes.Buffer

	buffer.WriteString("digraph Homer {\n")

	sortedNodesFrom := make([]string, len(graph.symbols.idToStr))
	copy(sortedNodesFrom, graph.symbols.idToStr)
	sort.Strings(sortedNodesFrom)

	for _, nodeFrom := range sortedNodesFrom {
		for _, nodeTo := range graph.FindChildren(nodeFrom) {
			buffer.WriteString(fmt.Sprintf("  \"%d %s\" -> \"%d %s\"\n",
				node2index[nodeFrom], nodeFrom, node2index[nodeTo], nodeTo))
		}
	}

	buffer.WriteString("}")

	return buffer.String()
}
