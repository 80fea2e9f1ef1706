package opgraph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/buildgridgo/internal/op"
)

// Graph is the operation dependency graph for a single run. All read
// operations on the graph are concurrency-safe; the vertex set is fixed
// once Build returns.
type Graph struct {
	mutex sync.RWMutex
	ops   map[string]*op.Operation
	// deps maps an operation key to the set of keys it depends on.
	deps map[string]map[string]bool
	// dependents maps an operation key to the set of keys depending on it.
	dependents map[string]map[string]bool
}

func newGraph() *Graph {
	return &Graph{
		ops:        make(map[string]*op.Operation),
		deps:       make(map[string]map[string]bool),
		dependents: make(map[string]map[string]bool),
	}
}

func (g *Graph) addOperation(o *op.Operation) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	key := o.Key()
	if _, ok := g.ops[key]; ok {
		return
	}
	g.ops[key] = o
	g.deps[key] = make(map[string]bool)
	g.dependents[key] = make(map[string]bool)
}

// addEdge records that toKey depends on fromKey.
func (g *Graph) addEdge(fromKey, toKey string) error {
	if fromKey == toKey {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromKey, fromKey)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.ops[fromKey]; !ok {
		return fmt.Errorf("source operation not found: %s", fromKey)
	}
	if _, ok := g.ops[toKey]; !ok {
		return fmt.Errorf("destination operation not found: %s", toKey)
	}

	g.deps[toKey][fromKey] = true
	g.dependents[fromKey][toKey] = true
	return nil
}

// Len returns the number of operations in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.ops)
}

// Get returns the operation with the given key.
func (g *Graph) Get(key string) (*op.Operation, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	o, ok := g.ops[key]
	return o, ok
}

// Keys returns every operation key in sorted order.
func (g *Graph) Keys() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	keys := make([]string, 0, len(g.ops))
	for key := range g.ops {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Operations returns every operation, ordered by key.
func (g *Graph) Operations() []*op.Operation {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	keys := make([]string, 0, len(g.ops))
	for key := range g.ops {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]*op.Operation, 0, len(keys))
	for _, key := range keys {
		out = append(out, g.ops[key])
	}
	return out
}

// Dependencies returns the sorted keys the given operation depends on.
func (g *Graph) Dependencies(key string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	set, ok := g.deps[key]
	if !ok {
		return nil, fmt.Errorf("operation not found: %s", key)
	}
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out, nil
}

// Dependents returns the sorted keys that depend on the given operation.
func (g *Graph) Dependents(key string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	set, ok := g.dependents[key]
	if !ok {
		return nil, fmt.Errorf("operation not found: %s", key)
	}
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out, nil
}

// TopologicalOrder returns every operation key in an order where each key
// appears after all of its dependencies. The graph must already be
// validated acyclic.
func (g *Graph) TopologicalOrder() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	inDegree := make(map[string]int, len(g.ops))
	for key := range g.ops {
		inDegree[key] = len(g.deps[key])
	}

	// Seed with the roots, sorted for determinism.
	queue := make([]string, 0)
	for key, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, key)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(g.ops))
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		order = append(order, key)

		next := make([]string, 0)
		for dep := range g.dependents[key] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				next = append(next, dep)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	return order
}
