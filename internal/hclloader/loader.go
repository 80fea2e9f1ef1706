// Package hclloader is the HCL implementation of the workspace
// configuration loader: it discovers every *.hcl file under the workspace
// root, decodes workspace, phase, and project blocks, and translates them
// into the resolved config.Model the engine consumes.
package hclloader

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/config"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/fsutil"
)

// Loader loads HCL workspace configuration.
type Loader struct{}

// NewLoader creates a new HCL workspace loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes all recognized top-level blocks from any file.
type fileRoot struct {
	Workspaces []*workspaceBlock `hcl:"workspace,block"`
	Phases     []*phaseBlock     `hcl:"phase,block"`
	Projects   []*projectBlock   `hcl:"project,block"`
	Remain     hcl.Body          `hcl:",remain"`
}

type workspaceBlock struct {
	Name        string `hcl:"name,optional"`
	CacheDir    string `hcl:"cache_dir,optional"`
	ToolVersion string `hcl:"tool_version,optional"`
}

type phaseBlock struct {
	Name              string            `hcl:"name,label"`
	Command           []string          `hcl:"command"`
	Inputs            []string          `hcl:"inputs,optional"`
	Outputs           []string          `hcl:"outputs,optional"`
	Env               map[string]string `hcl:"env,optional"`
	DependsOnUpstream *bool             `hcl:"depends_on_upstream,optional"`
	After             []string          `hcl:"after,optional"`
	Cacheable         *bool             `hcl:"cacheable,optional"`
}

type projectBlock struct {
	ID           string   `hcl:"id,label"`
	Path         string   `hcl:"path"`
	Dependencies []string `hcl:"dependencies,optional"`
	Phases       []string `hcl:"phases,optional"`
}

// Load orchestrates the entire workspace loading process: discovery,
// parsing, translation, and validation.
func (l *Loader) Load(ctx context.Context, root string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL workspace loader started.", "root", root)

	model := &config.Model{
		Workspace: &config.Workspace{},
		Projects:  make(map[string]*config.Project),
		Phases:    make(map[string]*config.Phase),
	}

	hclFiles, err := fsutil.FindFilesByExtension(root, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("discovering workspace files: %w", err)
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl workspace files found under %s", root)
	}
	logger.Debug("Discovered workspace files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	sawWorkspace := false
	evalCtx := evalContext(root)

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", file, diags)
		}

		var fr fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &fr)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", file, diags)
		}

		for _, ws := range fr.Workspaces {
			if sawWorkspace {
				return nil, fmt.Errorf("%s: duplicate workspace block", file)
			}
			sawWorkspace = true
			model.Workspace = translateWorkspace(ws)
		}
		for _, ph := range fr.Phases {
			if _, ok := model.Phases[ph.Name]; ok {
				return nil, fmt.Errorf("%s: duplicate phase %q", file, ph.Name)
			}
			model.Phases[ph.Name] = translatePhase(ph)
		}
		for _, proj := range fr.Projects {
			if _, ok := model.Projects[proj.ID]; ok {
				return nil, fmt.Errorf("%s: duplicate project %q", file, proj.ID)
			}
			model.Projects[proj.ID] = translateProject(proj)
		}
	}

	if err := validate(model); err != nil {
		return nil, err
	}
	logger.Debug("Workspace model loaded.", "projects", len(model.Projects), "phases", len(model.Phases))

	return model, nil
}

// evalContext exposes workspace-level variables to HCL expressions, so a
// phase can reference e.g. "${workspace.root}" in its command or env.
func evalContext(root string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"workspace": cty.ObjectVal(map[string]cty.Value{
				"root": cty.StringVal(root),
			}),
		},
	}
}

func translateWorkspace(ws *workspaceBlock) *config.Workspace {
	return &config.Workspace{
		Name:        ws.Name,
		CacheDir:    ws.CacheDir,
		ToolVersion: ws.ToolVersion,
	}
}

func translatePhase(ph *phaseBlock) *config.Phase {
	phase := &config.Phase{
		Name:              ph.Name,
		Command:           ph.Command,
		Inputs:            ph.Inputs,
		Outputs:           ph.Outputs,
		Env:               ph.Env,
		After:             ph.After,
		DependsOnUpstream: true,
		Cacheable:         true,
	}
	if ph.DependsOnUpstream != nil {
		phase.DependsOnUpstream = *ph.DependsOnUpstream
	}
	if ph.Cacheable != nil {
		phase.Cacheable = *ph.Cacheable
	}
	return phase
}

func translateProject(proj *projectBlock) *config.Project {
	return &config.Project{
		ID:            proj.ID,
		Root:          proj.Path,
		DependencyIDs: proj.Dependencies,
		PhaseNames:    proj.Phases,
	}
}

// validate enforces referential integrity: every dependency id names a
// project, every declared phase name names a phase, and projects that
// declare no phases inherit all of them.
func validate(model *config.Model) error {
	allPhases := make([]string, 0, len(model.Phases))
	for name := range model.Phases {
		allPhases = append(allPhases, name)
	}

	for id, proj := range model.Projects {
		for _, dep := range proj.DependencyIDs {
			if _, ok := model.Projects[dep]; !ok {
				return fmt.Errorf("project %q depends on unknown project %q", id, dep)
			}
		}
		if len(proj.PhaseNames) == 0 {
			proj.PhaseNames = append([]string(nil), allPhases...)
			continue
		}
		for _, name := range proj.PhaseNames {
			if _, ok := model.Phases[name]; !ok {
				return fmt.Errorf("project %q declares unknown phase %q", id, name)
			}
		}
	}

	for name, phase := range model.Phases {
		if len(phase.Command) == 0 {
			return fmt.Errorf("phase %q has an empty command", name)
		}
		for _, after := range phase.After {
			if _, ok := model.Phases[after]; !ok {
				return fmt.Errorf("phase %q runs after unknown phase %q", name, after)
			}
		}
	}

	return nil
}
