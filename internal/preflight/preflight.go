package preflight

import (
	"context"
	"path/filepath"

	"easel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Required checks abort session startup when they fail.
	Required bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	state := CheckDirectoryAccess("State directory", cfg.Paths.StateDir)
	state.Required = true
	results = append(results, state)

	if cfg.Paths.LogDir != "" && cfg.Paths.LogDir != cfg.Paths.StateDir {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	// Preview file (when configured)
	if cfg.Paths.PreviewPath != "" {
		results = append(results, CheckDirectoryAccess("Preview directory", filepath.Dir(cfg.Paths.PreviewPath)))
	}

	results = append(results, CheckService(ctx, cfg.Service.BaseURL, cfg.Service.Token))
	return results
}

// FirstRequiredFailure returns the first failing required check, if any.
func FirstRequiredFailure(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Required && !r.Passed {
			return r, true
		}
	}
	return Result{}, false
}
