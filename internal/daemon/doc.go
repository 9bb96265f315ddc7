// Package daemon hosts a long-running canvas session.
//
// It wires configuration, the gallery store, the job service event stream and
// the canvas Manager into a single lifecycle with flock-based locking to
// prevent two sessions sharing a state directory. The daemon owns the preview
// surface the render loop presents to, reconnects the event stream when the
// generation service drops it, and serves the read-only preview HTTP API.
//
// Keep orchestration logic here: document semantics belong to the canvas
// package and its collaborators, while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
