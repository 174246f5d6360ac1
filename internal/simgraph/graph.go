// Package simgraph maintains the directed dependency graph between simulated
// services and guarantees it stays acyclic.
package simgraph

import (
	"sort"

	"github.com/opsdrill/opsdrill/internal/domain"
)

// MaxDepth bounds every traversal. Scenario graphs are shallow in practice;
// chains deeper than this are rejected on insertion as a safety bound.
const MaxDepth = 10

// Graph is an in-memory adjacency view over a game's dependency edges,
// loaded once per call. It is never mutated after construction.
type Graph struct {
	// forward maps a service to the edges it depends on.
	forward map[string][]domain.ServiceDependency
	// inverse maps a service to the edges of services depending on it.
	inverse map[string][]domain.ServiceDependency
}

// NewGraph builds adjacency maps from a flat edge list.
func NewGraph(edges []domain.ServiceDependency) *Graph {
	g := &Graph{
		forward: make(map[string][]domain.ServiceDependency),
		inverse: make(map[string][]domain.ServiceDependency),
	}
	for _, e := range edges {
		g.forward[e.ServiceID] = append(g.forward[e.ServiceID], e)
		g.inverse[e.DependsOnID] = append(g.inverse[e.DependsOnID], e)
	}
	return g
}

// DependenciesOf returns the outgoing edges of a service (what it depends on).
func (g *Graph) DependenciesOf(serviceID string) []domain.ServiceDependency {
	return g.forward[serviceID]
}

// DependentsOf returns the incoming edges of a service (who depends on it).
func (g *Graph) DependentsOf(serviceID string) []domain.ServiceDependency {
	return g.inverse[serviceID]
}

// WouldCycle reports whether adding the edge from→to would close a cycle,
// i.e. whether from is already reachable from to over existing dependsOn
// edges. The second return value reports whether the traversal hit MaxDepth
// before completing.
func (g *Graph) WouldCycle(from, to string) (bool, bool) {
	if from == to {
		return true, false
	}
	closure, truncated := g.closure(to, g.forward, dependsOnSide)
	return closure[from], truncated
}

// Ancestors returns every service the given service transitively depends on,
// sorted for stable output.
func (g *Graph) Ancestors(serviceID string) []string {
	closure, _ := g.closure(serviceID, g.forward, dependsOnSide)
	return sortedKeys(closure)
}

// Descendants returns every service that transitively depends on the given
// service, sorted for stable output.
func (g *Graph) Descendants(serviceID string) []string {
	closure, _ := g.closure(serviceID, g.inverse, dependentSide)
	return sortedKeys(closure)
}

// Neighbour selectors: forward edges lead to the depended-on service, inverse
// edges lead back to the depending service.
func dependsOnSide(e domain.ServiceDependency) string { return e.DependsOnID }
func dependentSide(e domain.ServiceDependency) string { return e.ServiceID }

// closure walks the transitive neighbourhood of start over the given
// adjacency, visiting each node once and stopping at MaxDepth. The start node
// itself is not part of the result.
func (g *Graph) closure(start string, adj map[string][]domain.ServiceDependency, next func(domain.ServiceDependency) string) (map[string]bool, bool) {
	visited := map[string]bool{}
	truncated := false

	type frame struct {
		id    string
		depth int
	}
	stack := []frame{{id: start}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.depth >= MaxDepth {
			truncated = true
			continue
		}

		for _, e := range adj[cur.id] {
			n := next(e)
			if n == start || visited[n] {
				continue
			}
			visited[n] = true
			stack = append(stack, frame{id: n, depth: cur.depth + 1})
		}
	}

	return visited, truncated
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
