package opgraph

import (
	"fmt"
	"path/filepath"

	"github.com/vk/buildgridgo/internal/config"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/op"
	"github.com/vk/buildgridgo/internal/project"

	"context"
)

// Build constructs a complete, validated operation graph from the project
// graph and the requested phases. workspaceRoot anchors each operation's
// working directory.
func Build(ctx context.Context, projects *project.Graph, model *config.Model, opts *config.RunOptions, workspaceRoot string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting operation graph construction.")

	phases, err := resolvePhases(model, opts.Phases)
	if err != nil {
		return nil, err
	}

	selected, err := selectProjects(projects, opts.ProjectIDs)
	if err != nil {
		return nil, err
	}
	logger.Debug("Build: project selection resolved.", "count", len(selected))

	graph := newGraph()

	// First pass: create one operation per selected (project, phase) pair
	// the project declares support for.
	for _, id := range selected {
		proj, _ := projects.Get(id)
		for _, phase := range phases {
			if !proj.SupportsPhase(phase.Name) {
				continue
			}
			dir := filepath.Join(workspaceRoot, proj.Root)
			graph.addOperation(op.New(proj.ID, dir, phase))
		}
	}
	logger.Debug("Build: operation creation complete.", "operation_count", graph.Len())

	// Second pass: link predecessor edges.
	if err := linkOperations(graph, projects, phases); err != nil {
		return nil, err
	}
	logger.Debug("Build: operation linking complete.")

	// Third pass: initialize unmet-predecessor counters.
	for _, o := range graph.Operations() {
		deps, _ := graph.Dependencies(o.Key())
		o.SetDepCount(int32(len(deps)))
	}

	if err := graph.detectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Build: cycle detection passed.")

	return graph, nil
}

// resolvePhases maps requested phase names to their definitions, in request
// order. An unknown phase name is a fatal configuration error.
func resolvePhases(model *config.Model, names []string) ([]*config.Phase, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no phases requested")
	}
	phases := make([]*config.Phase, 0, len(names))
	for _, name := range names {
		phase, ok := model.Phases[name]
		if !ok {
			return nil, fmt.Errorf("unknown phase %q", name)
		}
		phases = append(phases, phase)
	}
	return phases, nil
}

// selectProjects resolves the requested project subset, always widened to
// its transitive dependency closure so upstream fingerprints exist.
func selectProjects(projects *project.Graph, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return projects.IDs(), nil
	}
	return projects.TransitiveClosure(ids)
}

// linkOperations adds the two kinds of predecessor edges: cross-project
// edges for phases awaiting upstream completion, and same-project
// cross-phase edges declared via "after".
func linkOperations(graph *Graph, projects *project.Graph, phases []*config.Phase) error {
	for _, o := range graph.Operations() {
		proj, _ := projects.Get(o.ProjectID)

		if o.Phase.DependsOnUpstream {
			for _, depID := range proj.DependencyIDs {
				depKey := op.Key(depID, o.Phase.Name)
				// A dependency outside the selection or without this phase
				// contributes no ordering edge.
				if _, ok := graph.Get(depKey); !ok {
					continue
				}
				if err := graph.addEdge(depKey, o.Key()); err != nil {
					return fmt.Errorf("linking %s: %w", o.Key(), err)
				}
			}
		}

		for _, after := range o.Phase.After {
			prevKey := op.Key(o.ProjectID, after)
			if _, ok := graph.Get(prevKey); !ok {
				continue
			}
			if err := graph.addEdge(prevKey, o.Key()); err != nil {
				return fmt.Errorf("linking %s: %w", o.Key(), err)
			}
		}
	}
	return nil
}
