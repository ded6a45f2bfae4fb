// Package scheduler runs matrix jobs on a bounded worker pool.
//
// Each job moves through a small state machine:
//
//	pending -> quarantined
//	pending -> acquiring -> acquire_failed
//	pending -> acquiring -> running -> passed | failed
//	any non-terminal state -> cancelled
//
// A worker owns its job from the quarantine check to the release of its
// environment. Transient acquisition failures are retried with exponential
// backoff; suite failures never are. Cancelling the run context stops
// dispatch, terminates running cases and still releases every acquired
// environment before RunAll returns.
package scheduler
