// Package main hosts the easel CLI entrypoint and command graph.
//
// The session itself runs under `easel run`; every other command is a thin
// client that talks to it over the IPC socket. Layer editing, drawing,
// submission and staging review, rendering, gallery listing and log tailing
// all map onto one RPC each, so new behaviour belongs in the internal
// packages first and is surfaced here afterwards.
package main
