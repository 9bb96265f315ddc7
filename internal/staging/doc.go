// Package staging binds one generation job at a time to the canvas.
//
// A Controller owns the single staging session: it reserves the session
// before submission, absorbs progress and results for the bound job, asks
// the caller to resolve final pixels, and commits the chosen item to the
// document as a raster layer. Results whose session or item no longer match
// are reported as stale and dropped.
package staging
