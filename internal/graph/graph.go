// Package graph provides the dependency graph used for subtask scheduling.
// A Graph maps each node ID to the set of IDs it depends on. Graphs are
// value objects: mutating operations return copies.
package graph

import (
	"errors"
	"sort"
)

// ErrCycle indicates a circular dependency was found in the graph.
var ErrCycle = errors.New("circular dependency detected")

// Graph maps a node ID to its set of direct dependency IDs.
// Every ID referenced as a dependency is expected to be a key as well;
// Generations ignores edges to unknown nodes.
type Graph map[string]map[string]struct{}

// New creates an empty graph.
func New() Graph {
	return make(Graph)
}

// Add registers a node with the given dependencies, merging with any deps
// recorded earlier for the same node.
func (g Graph) Add(id string, deps ...string) {
	if g[id] == nil {
		g[id] = make(map[string]struct{})
	}
	for _, dep := range deps {
		g[id][dep] = struct{}{}
	}
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	for id, deps := range g {
		out[id] = make(map[string]struct{}, len(deps))
		for dep := range deps {
			out[id][dep] = struct{}{}
		}
	}
	return out
}

// Dependencies returns the sorted direct dependencies of a node.
func (g Graph) Dependencies(id string) []string {
	deps := make([]string, 0, len(g[id]))
	for dep := range g[id] {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g Graph) HasCycle() bool {
	_, _, found := g.findBackEdge()
	return found
}

// findBackEdge runs a DFS in sorted node order and returns the first back
// edge encountered. Sorted iteration keeps the result deterministic.
// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black.
func (g Graph) findBackEdge() (from, to string, found bool) {
	colors := make(map[string]int, len(g))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, dep := range g.Dependencies(id) {
			if _, known := g[dep]; !known {
				continue
			}
			switch colors[dep] {
			case 1:
				from, to = id, dep
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, id := range g.sortedIDs() {
		if colors[id] == 0 && visit(id) {
			return from, to, true
		}
	}
	return "", "", false
}

// RemoveCycles returns an acyclic copy of the graph. Each iteration removes
// the back edge found first by the deterministic DFS, so repeated calls on
// equal graphs drop the same edges. The result always satisfies
// !HasCycle().
func (g Graph) RemoveCycles() Graph {
	out := g.Clone()
	for {
		from, to, found := out.findBackEdge()
		if !found {
			return out
		}
		delete(out[from], to)
	}
}

// Generations partitions the graph into a topological sequence of
// generations: each generation holds the nodes whose dependencies are all
// satisfied by strictly earlier generations. Nodes within one generation
// carry no ordering relationship and may run concurrently. IDs within a
// generation are sorted for stable output.
//
// Returns ErrCycle if the graph cannot be fully linearized.
func (g Graph) Generations() ([][]string, error) {
	remaining := make(map[string]int, len(g)) // node -> unresolved dep count
	dependents := make(map[string][]string, len(g))
	for id, deps := range g {
		count := 0
		for dep := range deps {
			if _, known := g[dep]; known {
				count++
				dependents[dep] = append(dependents[dep], id)
			}
		}
		remaining[id] = count
	}

	var generations [][]string
	var current []string
	for id, count := range remaining {
		if count == 0 {
			current = append(current, id)
		}
	}

	resolved := 0
	for len(current) > 0 {
		sort.Strings(current)
		generations = append(generations, current)
		resolved += len(current)

		var next []string
		for _, id := range current {
			for _, dependent := range dependents[id] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if resolved != len(g) {
		return nil, ErrCycle
	}
	return generations, nil
}

// sortedIDs returns all node IDs in lexicographic order.
func (g Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Size returns the number of nodes in the graph.
func (g Graph) Size() int {
	return len(g)
}
