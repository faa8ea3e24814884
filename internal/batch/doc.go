// Package batch runs a list of audio sources through the encoder with a
// live-adjustable concurrency bound.
//
// A Runner expands the sources in order and records each job in a
// jobs.List as dispatch reaches it. Every job holds one gate permit from
// admission to its terminal status, so the number of processing jobs never
// exceeds the gate capacity granted at admission time. Destination
// conflicts go through a per-run conflict.Resolver; a prompt blocks only
// the job that raised it. A job owns its destination until it is terminal,
// so two jobs of one run never write the same file at the same time.
//
// Cancellation is cooperative. Jobs waiting for admission end cancelled
// without touching the encoder, running jobs see the cancelled context,
// and Run returns only after every recorded job is terminal.
package batch
