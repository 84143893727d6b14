// Command lorekeeper turns recordings of tabletop sessions into transcripts
// and structured session notes.
//
// Recordings are added with `lorekeeper add`, processed with
// `lorekeeper process` and read back with `show` or `export`. Every command
// works directly against the session store; `lorekeeper serve` exposes the
// same operations over HTTP.
package main
