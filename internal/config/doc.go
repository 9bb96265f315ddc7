// Package config loads, normalizes, and validates Easel configuration files.
//
// Configuration lives in TOML (default ~/.config/easel/config.toml). Load applies
// repository defaults, expands user paths, pulls service tokens from the
// environment (including a .env file next to the config), and validates the
// result before any canvas session is built from it.
//
// CreateSample writes the annotated sample that ships with the binary so users
// can start from a working file.
package config
