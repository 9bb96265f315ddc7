// Package gallery records finished images in SQLite and tracks which board and
// image the viewer should follow.
//
// The Store is an index, not an archive: pixels stay with the generation
// service and only metadata is kept. Insert is idempotent by image name, so
// replayed events and reconnects never duplicate an entry. Schema changes bump
// the version in schema.go; users delete gallery.db to adopt the new schema.
//
// Service layers auto board switching on top: when enabled, the selected board
// and image follow the newest insertion.
package gallery
