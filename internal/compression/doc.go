// Package compression shrinks session recordings until they fit under the
// transcription service's upload ceiling.
//
// Estimate and Plan are pure: they predict output size from a ratio table and
// pick encoder settings from a size-tiered heuristic. Executor runs ffmpeg with
// those settings under a wall-clock timeout and validates what it produced.
// Chain sequences executor passes (normal, aggressive, extreme) and keeps at
// most one candidate file alive at a time. When every pass still lands over the
// ceiling the chain ends Exhausted with remediation text; Escalate grants one
// further manual attempt from that state.
package compression
