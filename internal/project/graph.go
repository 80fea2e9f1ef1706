// Package project provides the immutable view of the workspace's projects
// and their declared dependency edges. It is built once from the resolved
// configuration model; the execution engine only reads it.
package project

import (
	"fmt"
	"sort"

	"github.com/vk/buildgridgo/internal/config"
)

// Project is one node in the project graph.
type Project struct {
	// ID is the unique project identifier.
	ID string
	// Root is the project directory relative to the workspace root.
	Root string
	// DependencyIDs lists the projects this project depends on, sorted.
	DependencyIDs []string
	// PhaseNames lists the phases this project supports, sorted.
	PhaseNames []string
}

// SupportsPhase reports whether the project declares the named phase.
func (p *Project) SupportsPhase(name string) bool {
	for _, ph := range p.PhaseNames {
		if ph == name {
			return true
		}
	}
	return false
}

// Graph is the immutable project dependency graph for one workspace.
type Graph struct {
	projects map[string]*Project
}

// FromModel builds a project graph from a resolved configuration model. It
// fails if any declared dependency id does not name a known project.
func FromModel(model *config.Model) (*Graph, error) {
	g := &Graph{projects: make(map[string]*Project, len(model.Projects))}

	for id, p := range model.Projects {
		deps := append([]string(nil), p.DependencyIDs...)
		sort.Strings(deps)
		phases := append([]string(nil), p.PhaseNames...)
		sort.Strings(phases)
		g.projects[id] = &Project{
			ID:            id,
			Root:          p.Root,
			DependencyIDs: deps,
			PhaseNames:    phases,
		}
	}

	for _, p := range g.projects {
		for _, dep := range p.DependencyIDs {
			if _, ok := g.projects[dep]; !ok {
				return nil, fmt.Errorf("project %q depends on unknown project %q", p.ID, dep)
			}
		}
	}

	return g, nil
}

// Get returns the project with the given id.
func (g *Graph) Get(id string) (*Project, bool) {
	p, ok := g.projects[id]
	return p, ok
}

// IDs returns all project ids in sorted order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.projects))
	for id := range g.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of projects in the graph.
func (g *Graph) Len() int {
	return len(g.projects)
}

// TransitiveClosure returns the given project ids plus every project they
// transitively depend on, sorted. Unknown ids produce an error.
func (g *Graph) TransitiveClosure(ids []string) ([]string, error) {
	seen := make(map[string]bool)
	var visit func(id string) error
	visit = func(id string) error {
		if seen[id] {
			return nil
		}
		p, ok := g.projects[id]
		if !ok {
			return fmt.Errorf("unknown project %q", id)
		}
		seen[id] = true
		for _, dep := range p.DependencyIDs {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
