// Package main hosts the pitchbatch CLI entrypoint and command graph.
//
// The Cobra command tree loads the TOML configuration once, applies flag
// overrides, and hands sources to the batch runner. Subcommands preview a
// run, inspect the pitch cache, scaffold configuration, and report whether
// the environment is ready. The heavy lifting lives in the internal
// packages; this package only wires collaborators and renders output.
package main
