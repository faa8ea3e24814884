// Package config loads, normalizes, and validates pitchbatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The [encode] section converts into the
// settings.EncodeSettings snapshot a batch run starts from, so the CLI and the
// orchestrator validate the same rules.
package config
