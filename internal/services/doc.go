// Package services defines shared utilities consumed by the pipeline stages
// and the external service integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper. Every failure the pipeline
//     surfaces is tagged with one marker so Kind can translate it into the
//     taxonomy tag persisted on the session record.
//
// Use these helpers when wiring new stage logic so failure reporting stays
// uniform across compression, transcription, and analysis.
package services
