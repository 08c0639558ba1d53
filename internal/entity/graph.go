package entity

import (
	"fmt"
	"slices"
	"sync"
)

// Graph is a directed acyclic graph of derived-from edges, base to
// dependents. Dependents keep their registration order.
//
// All public methods are thread-safe.
type Graph struct {
	mu    sync.RWMutex
	edges map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[string][]string)}
}

// AddEdge registers dependent as derived from base. Adding an existing
// edge is a no-op.
func (g *Graph) AddEdge(base, dependent string) error {
	if base == dependent {
		return fmt.Errorf("%w: %s", ErrSelfDependency, base)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if slices.Contains(g.edges[base], dependent) {
		return nil
	}
	if g.reachableLocked(dependent, base) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, base, dependent)
	}
	g.edges[base] = append(g.edges[base], dependent)
	return nil
}

// reachableLocked reports whether to can be reached from from.
func (g *Graph) reachableLocked(from, to string) bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		for _, c := range g.edges[n] {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return false
}

// Downstream returns every entity transitively derived from base, in an
// order where each entity comes after all of its bases. Siblings keep
// registration order.
func (g *Graph) Downstream(base string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var post []string
	visited := make(map[string]bool)

	var visit func(n string)
	visit = func(n string) {
		visited[n] = true
		children := g.edges[n]
		for i := len(children) - 1; i >= 0; i-- {
			if !visited[children[i]] {
				visit(children[i])
			}
		}
		post = append(post, n)
	}
	visit(base)

	// post ends with base itself.
	post = post[:len(post)-1]
	slices.Reverse(post)
	return post
}

// Remove deletes a node and every edge touching it.
func (g *Graph) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.edges, id)
	for base, deps := range g.edges {
		if i := slices.Index(deps, id); i >= 0 {
			g.edges[base] = slices.Delete(deps, i, i+1)
		}
	}
}
