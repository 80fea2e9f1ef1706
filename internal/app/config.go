package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/buildgridgo/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// WorkspacePath is the workspace root containing *.hcl configuration.
	WorkspacePath string

	// Phases are the requested phase names, in order.
	Phases []string
	// Projects optionally restricts the run to a project subset.
	Projects []string

	// Workers bounds concurrent operation execution.
	Workers int
	// FailPolicy is "fail-fast" or "continue".
	FailPolicy string
	// Timeout bounds a single operation. Zero disables the limit.
	Timeout time.Duration
	// GracePeriod is the SIGTERM-to-SIGKILL window on cancellation.
	GracePeriod time.Duration

	// CacheEnabled toggles the result cache.
	CacheEnabled bool
	// CacheDir overrides the workspace's cache directory when non-empty.
	CacheDir string

	// HistoryDB, when non-empty, is the SQLite file run reports append to.
	HistoryDB string
	// StatusPort, when > 0, serves /health, /progress and /events.
	StatusPort int

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkspacePath == "" {
		return nil, errors.New("WorkspacePath is a required configuration field and cannot be empty")
	}
	if len(cfg.Phases) == 0 {
		return nil, errors.New("at least one phase must be requested")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be > 0, got %d", cfg.Workers)
	}
	switch config.FailurePolicy(cfg.FailPolicy) {
	case config.FailFast, config.Continue:
	default:
		return nil, fmt.Errorf("invalid fail-policy %q: must be %q or %q", cfg.FailPolicy, config.FailFast, config.Continue)
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}
	return &cfg, nil
}
