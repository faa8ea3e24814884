// Package jobs holds the per-job status model of a batch run.
//
// A List is written from many worker goroutines and read by UI code. Every
// write goes through one lock, every change is published as a sequenced
// Event to observers and to a bounded buffer for polling readers, and the
// state machine rejects any edge that would move a job out of a terminal
// status.
package jobs
