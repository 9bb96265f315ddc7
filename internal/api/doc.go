// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates documents, staging sessions, and execution state
// into transport-friendly DTOs that the CLI and preview clients render without
// coupling to internal types.
//
// # Key Types
//
// ImageDTO: image metadata as returned by the generation service. It keeps the
// service's snake_case field names.
//
// Layer: one document layer with placement, paint summary, and config.
//
// Staging/StagedItem: the live staging session and its items.
//
// SessionStatus: aggregated runtime information for a running canvas session.
//
// # Converters
//
// FromLayer/FromSnapshot: document.Layer -> Layer in draw order.
//
// FromStaging: staging.Snapshot -> Staging.
//
// FromExecutions: execution.State -> Execution in node order.
//
// # Design Notes
//
// Session DTOs use camelCase JSON tags for JavaScript/TypeScript consumers.
// Timestamps use RFC3339 with milliseconds. Kind-specific layer config is
// passed through as json.RawMessage.
package api
