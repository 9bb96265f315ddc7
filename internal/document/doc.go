// Package document holds the authoritative layer model of a canvas.
//
// A Document is an ordered set of layers. Each layer is a tagged union: a Kind
// plus a kind-specific Config, shared geometry (Transform) and PaintData. Every
// mutation goes through a Document method, is serialized by the document lock,
// and increments a monotonic version counter so asynchronous consumers can tell
// when a result was computed against stale state.
//
// Consumers never receive pointers into the live layer set. Snapshot returns
// deep copies ordered by zIndex with ties broken by insertion order, which is
// exactly the order the compositor draws.
package document
