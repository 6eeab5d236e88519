// Package config loads, validates, and normalizes rerun configuration.
//
// Configuration lives in a TOML file. Load applies defaults first, then the
// file on top, then normalizes paths and validates the result so the rest of
// the daemon can trust every field.
package config
