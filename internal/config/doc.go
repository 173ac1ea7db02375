// Package config loads, normalizes, and validates mixdown configuration.
//
// Configuration lives in a TOML file (default ~/.config/mixdown/config.toml,
// falling back to ./mixdown.toml). Defaults are applied first, then file
// values, then a normalize pass that expands paths and trims strings, then a
// validate pass that rejects unusable combinations. All path fields on a
// loaded Config are absolute.
package config
