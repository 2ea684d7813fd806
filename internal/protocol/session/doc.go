// Package session owns the delivery side of the relay pipeline.
//
// Ownership boundary:
// - delivery records and their JSON wire shape
// - bounded drop-oldest delivery queue
// - retry/backoff primitives
package session
