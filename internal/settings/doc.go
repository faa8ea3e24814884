// Package settings defines the encode settings snapshot a batch run is
// started with.
//
// EncodeSettings is a plain value: callers take a Clone at run start and the
// orchestrator never observes later edits, except MaxThreads which the batch
// runner exposes as a live knob. Validate reports every invalid field at once
// so the CLI and config loader can surface one complete message.
package settings
