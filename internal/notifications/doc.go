// Package notifications delivers canvas session events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Identical events inside the configured dedup window are sent once,
// so duplicate deliveries from the job stream never produce repeat pushes.
//
// Callers depend only on the Service interface.
package notifications
