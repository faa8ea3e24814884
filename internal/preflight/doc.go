// Package preflight checks that a batch run can start: the output and state
// directories are usable, the output disk has room, and the external
// binaries are on PATH.
//
// The CLI "pitchbatch check" command prints every Result; "pitchbatch run"
// refuses to start when a required check fails.
package preflight
