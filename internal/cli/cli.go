package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/buildgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("buildgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
BuildGridGo - An incremental, cache-aware monorepo build orchestrator.

Usage:
  buildgridgo [options] [WORKSPACE_PATH]

Arguments:
  WORKSPACE_PATH
    Path to the workspace root containing .hcl configuration files.

Options:
`)
		flagSet.PrintDefaults()
	}

	workspaceFlag := flagSet.String("workspace", "", "Path to the workspace root.")
	wFlag := flagSet.String("w", "", "Path to the workspace root (shorthand).")
	phasesFlag := flagSet.String("phases", "", "Comma-separated phase names to run, in order. Required.")
	projectsFlag := flagSet.String("projects", "", "Comma-separated project ids to run. Empty runs all projects.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for the executor.")
	failPolicyFlag := flagSet.String("fail-policy", "fail-fast", "Failure policy. Options: 'fail-fast' or 'continue'.")
	timeoutFlag := flagSet.Duration("timeout", 0, "Per-operation timeout, e.g. '5m'. 0 disables the limit.")
	graceFlag := flagSet.Duration("grace-period", 10*time.Second, "SIGTERM-to-SIGKILL window when stopping operations.")
	noCacheFlag := flagSet.Bool("no-cache", false, "Disable the result cache for this run.")
	cacheDirFlag := flagSet.String("cache-dir", "", "Override the workspace cache directory.")
	historyDBFlag := flagSet.String("history-db", "", "SQLite file to append run reports to. Empty disables history.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *workspaceFlag != "" {
		path = *workspaceFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Workspace path determined.", "path", path)

	if path == "" {
		slog.Debug("No workspace path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	phases := splitList(*phasesFlag)
	if len(phases) == 0 {
		return nil, false, &ExitError{Code: 2, Message: "at least one phase is required: pass --phases build,test"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		WorkspacePath: path,
		Phases:        phases,
		Projects:      splitList(*projectsFlag),
		Workers:       *workersFlag,
		FailPolicy:    strings.ToLower(*failPolicyFlag),
		Timeout:       *timeoutFlag,
		GracePeriod:   *graceFlag,
		CacheEnabled:  !*noCacheFlag,
		CacheDir:      *cacheDirFlag,
		HistoryDB:     *historyDBFlag,
		StatusPort:    *statusPortFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

// splitList parses a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
