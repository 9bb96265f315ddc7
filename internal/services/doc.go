// Package services defines shared utilities consumed by the canvas components
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp staging session IDs, job IDs, layer IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify, which maps
//     every marker onto a recovery policy (no-op, surface, placeholder, drop,
//     fail item, discard).
//
// Use these helpers when wiring new canvas logic so error handling and
// observability stay uniform.
package services
