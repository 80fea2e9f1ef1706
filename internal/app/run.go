package app

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vk/buildgridgo/internal/cache"
	"github.com/vk/buildgridgo/internal/config"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/events"
	"github.com/vk/buildgridgo/internal/executor"
	"github.com/vk/buildgridgo/internal/fingerprint"
	"github.com/vk/buildgridgo/internal/gitinfo"
	"github.com/vk/buildgridgo/internal/history"
	"github.com/vk/buildgridgo/internal/opgraph"
	"github.com/vk/buildgridgo/internal/project"
	"github.com/vk/buildgridgo/internal/report"
	"github.com/vk/buildgridgo/internal/runner"
)

const defaultToolVersion = "buildgridgo/1"

// Run executes the full pipeline: load the workspace, build the operation
// graph, fingerprint it, and drive every operation to a terminal state.
// The returned report is always non-nil; its overall status carries the
// process exit code.
func (a *App) Run(ctx context.Context) *report.Report {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	runID := uuid.NewString()
	log := a.logger.With("run_id", runID)

	log.Info("Starting run.", "workspace", a.config.WorkspacePath)

	model, err := a.loader.Load(ctx, a.config.WorkspacePath)
	if err != nil {
		return a.configError(runID, err)
	}

	projects, err := project.FromModel(model)
	if err != nil {
		return a.configError(runID, err)
	}

	opts := &config.RunOptions{
		Phases:         a.config.Phases,
		ProjectIDs:     a.config.Projects,
		MaxConcurrency: a.config.Workers,
		Policy:         config.FailurePolicy(a.config.FailPolicy),
		Timeout:        a.config.Timeout,
		GracePeriod:    a.config.GracePeriod,
		CacheEnabled:   a.config.CacheEnabled,
	}

	graph, err := opgraph.Build(ctx, projects, model, opts, a.config.WorkspacePath)
	if err != nil {
		return a.configError(runID, err)
	}
	log.Info("Operation graph built.", "operations", graph.Len())

	vcs := gitinfo.Detect(ctx, a.config.WorkspacePath)
	calc := &fingerprint.Calculator{
		ToolVersion: toolVersion(model),
		VCSState:    vcs.State(),
	}
	if err := calc.ComputeAll(ctx, graph); err != nil {
		return a.configError(runID, err)
	}

	bus := events.NewBus(a.logger)
	defer bus.Close()

	agg := report.NewAggregator(runID, graph.Len())

	if a.config.StatusPort > 0 {
		if err := a.startStatusServer(ctx, agg, bus); err != nil {
			log.Warn("Status server failed to start.", "error", err)
		} else {
			defer a.stopStatusServer()
		}
	}

	var store cache.Cache
	if opts.CacheEnabled {
		store = cache.NewFSCache(a.cacheDir(model))
	}

	run := runner.New(store, opts.Timeout, opts.GracePeriod)
	exec := executor.New(graph, run, opts.MaxConcurrency, opts.Policy, bus, agg)

	cancelled := exec.Run(ctx)

	rep := agg.Finalize(cancelled)
	report.Render(a.outW, rep)
	a.appendHistory(ctx, rep)

	log.Info("Run finished.", "overall", string(rep.Overall), "duration", rep.Duration)
	return rep
}

func (a *App) configError(runID string, err error) *report.Report {
	a.logger.Error("Run aborted before execution.", "run_id", runID, "error", err)
	rep := report.ConfigErrorReport(runID, err)
	report.Render(a.outW, rep)
	return rep
}

// cacheDir picks the cache location: the flag wins, then the workspace
// block, then a default under the workspace root.
func (a *App) cacheDir(model *config.Model) string {
	if a.config.CacheDir != "" {
		return a.config.CacheDir
	}
	if model.Workspace != nil && model.Workspace.CacheDir != "" {
		if filepath.IsAbs(model.Workspace.CacheDir) {
			return model.Workspace.CacheDir
		}
		return filepath.Join(a.config.WorkspacePath, model.Workspace.CacheDir)
	}
	return filepath.Join(a.config.WorkspacePath, ".buildgrid", "cache")
}

func toolVersion(model *config.Model) string {
	if model.Workspace != nil && model.Workspace.ToolVersion != "" {
		return model.Workspace.ToolVersion
	}
	return defaultToolVersion
}

func (a *App) appendHistory(ctx context.Context, rep *report.Report) {
	if a.config.HistoryDB == "" {
		return
	}
	store, err := history.Open(a.config.HistoryDB)
	if err != nil {
		a.logger.Warn("History database unavailable.", "path", a.config.HistoryDB, "error", err)
		return
	}
	defer store.Close()

	if err := store.Append(context.WithoutCancel(ctx), rep); err != nil {
		a.logger.Warn("Failed to record run history.", "error", err)
	}
}
