// Package ipc exposes a running canvas session over JSON-RPC Unix sockets
// and ships the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. The
// server embeds the daemon and forwards every call to the canvas Manager,
// so the single-writer rule holds no matter how many CLI processes connect.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
