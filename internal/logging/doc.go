// Package logging assembles structured slog loggers and formatting helpers used
// across Easel components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so canvas code can tag log lines
// with staging session, job, and layer identifiers. The package also provides a
// no-op logger for tests, a progress sampler that keeps generation progress
// from flooding the log, and a bounded in-memory event hub the CLI can tail.
package logging
