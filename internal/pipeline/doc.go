// Package pipeline drives a session from upload to completed notes.
//
// Orchestrator.Process is the single entry point for automatic work: it
// compresses oversized or unsupported recordings through the fallback chain,
// persists each status before the external call it guards, transcribes,
// analyses and stores the result. Each external call happens at most once per
// invocation. Failures land the session in error with a taxonomy kind; getting
// out of error is always an operator action (retry, recover, escalate).
package pipeline
