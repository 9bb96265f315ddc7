// Package compositor turns a document snapshot, plus the staging session that
// is currently streaming into it, into pixels.
//
// Render is a pure function of its arguments: the same snapshots, viewport and
// options always produce the same bitmap, and nothing is cached between calls.
// Layers are drawn in snapshot order. Vector strokes are rasterised into
// coverage masks with gg and composited onto the frame with x/image/draw, so
// erasers remove coverage instead of painting a background colour.
//
// A layer that cannot be decoded never aborts a frame. The compositor draws a
// checker placeholder where the layer would have been and reports a
// LayerRenderError alongside the finished image.
package compositor
