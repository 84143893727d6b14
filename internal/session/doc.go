// Package session persists recorded game sessions and enforces their
// processing lifecycle.
//
// A Session moves uploaded → transcribing → analyzing → completed, or falls to
// error from any in-flight state. Every status write is a compare-and-set
// against the status the caller last observed, so two writers racing on the
// same row cannot both win. The only way out of error is an operator retry.
//
// The Store defaults to a SQLite file through modernc.org/sqlite and switches
// to PostgreSQL (pgx stdlib driver) when the configured database URL uses a
// postgres scheme. Schema changes bump schemaVersion in schema.go.
package session
