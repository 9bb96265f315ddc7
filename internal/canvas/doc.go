// Package canvas hosts the Manager, which owns one document together with
// its tool engine, staging controller, event ingestor and execution table for
// the lifetime of a bound surface.
//
// The Manager serializes user operations and event ingestion behind a single
// lock, resolves staged images on background goroutines that re-enter the lock
// only to apply their result, and drives a render loop that presents a frame
// to the surface whenever the document or staging session changes.
//
// Lifecycle is strict: Initialize once, Destroy once, in that order. Any
// document operation after Destroy returns services.ErrLifecycle, and panics
// when canvas.development is enabled.
package canvas
