// Package preflight provides readiness checks for the filesystem paths and
// the generation service an Easel session depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before acquiring its lock. A failing state
//     directory aborts startup; other failures are logged and the session
//     continues degraded.
//   - The CLI "easel check" command prints every result as a table.
package preflight
