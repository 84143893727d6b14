// Package analysis turns a session transcript into structured campaign notes.
//
// Analyzer builds the prompt, issues one JSON completion and validates the
// reply against the seven-field result shape before anything is stored. A
// reply that misses a field or uses the wrong type is a schema violation, not a
// partial success.
package analysis
