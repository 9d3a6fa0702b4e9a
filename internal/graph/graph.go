// Package graph implements the directed dependency graph of component ids.
// Edge order is declaration order, which keeps impact analysis deterministic.
// Cycles are permitted; callers that need acyclicity validate separately.
package graph

import "sync"

// DependencyGraph holds directed edges between component ids. An edge
// from -> to means "from depends on to". It is safe for concurrent use.
type DependencyGraph struct {
	mu sync.RWMutex

	// adjacency: node -> ids it depends on, in declaration order.
	dependencies map[string][]string

	// reverse adjacency: node -> ids that depend on it, in declaration order.
	dependents map[string][]string

	// order preserves node insertion order for deterministic iteration.
	order []string
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		dependencies: make(map[string][]string),
		dependents:   make(map[string][]string),
	}
}

// AddNode registers a node. Adding an existing node is a no-op.
func (g *DependencyGraph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.dependencies[id]; exists {
		return
	}
	g.dependencies[id] = nil
	g.dependents[id] = nil
	g.order = append(g.order, id)
}

// RemoveNode deletes a node and scrubs it from every adjacency list.
func (g *DependencyGraph) RemoveNode(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.dependencies[id]; !exists {
		return false
	}

	for _, dep := range g.dependencies[id] {
		g.dependents[dep] = remove(g.dependents[dep], id)
	}
	for _, dependent := range g.dependents[id] {
		g.dependencies[dependent] = remove(g.dependencies[dependent], id)
	}

	delete(g.dependencies, id)
	delete(g.dependents, id)
	g.order = remove(g.order, id)
	return true
}

// HasNode reports whether the node is present.
func (g *DependencyGraph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, exists := g.dependencies[id]
	return exists
}

// AddEdge declares that from depends on to. Returns false if either endpoint
// is absent or the edge is a self-edge. Duplicate edges are suppressed.
func (g *DependencyGraph) AddEdge(from, to string) bool {
	if from == to {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.dependencies[from]; !ok {
		return false
	}
	if _, ok := g.dependencies[to]; !ok {
		return false
	}

	for _, existing := range g.dependencies[from] {
		if existing == to {
			return true
		}
	}

	g.dependencies[from] = append(g.dependencies[from], to)
	g.dependents[to] = append(g.dependents[to], from)
	return true
}

// RemoveEdge deletes the edge from -> to. Returns false if it did not exist.
func (g *DependencyGraph) RemoveEdge(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	deps := g.dependencies[from]
	for _, existing := range deps {
		if existing == to {
			g.dependencies[from] = remove(deps, to)
			g.dependents[to] = remove(g.dependents[to], from)
			return true
		}
	}
	return false
}

// HasEdge reports whether from depends on to.
func (g *DependencyGraph) HasEdge(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, existing := range g.dependencies[from] {
		if existing == to {
			return true
		}
	}
	return false
}

// DependenciesOf returns the ids the given node depends on, in declaration
// order. The returned slice is a copy.
func (g *DependencyGraph) DependenciesOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return clone(g.dependencies[id])
}

// DependentsOf returns the ids that depend on the given node, in the order
// those edges were declared. The returned slice is a copy.
func (g *DependencyGraph) DependentsOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return clone(g.dependents[id])
}

// ImpactBFS returns the transitive set of components that depend on the given
// node, in breadth-first order. Within each level the order follows edge
// declaration order, so repeated calls on an unchanged graph agree.
func (g *DependencyGraph) ImpactBFS(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, exists := g.dependencies[id]; !exists {
		return nil
	}

	visited := map[string]bool{id: true}
	var result []string
	queue := clone(g.dependents[id])

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		result = append(result, current)
		queue = append(queue, g.dependents[current]...)
	}

	return result
}

// AllEdges returns a snapshot of the adjacency map. Nodes appear in insertion
// order when iterated via Nodes; map iteration order is unspecified.
func (g *DependencyGraph) AllEdges() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make(map[string][]string, len(g.dependencies))
	for id, deps := range g.dependencies {
		edges[id] = clone(deps)
	}
	return edges
}

// Nodes returns all node ids in insertion order.
func (g *DependencyGraph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return clone(g.order)
}

// Len returns the number of nodes.
func (g *DependencyGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

func remove(list []string, id string) []string {
	for i, v := range list {
		if v == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func clone(list []string) []string {
	if list == nil {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}
