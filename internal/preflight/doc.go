// Package preflight provides readiness checks for the directories, external
// binaries and API credentials Lorekeeper depends on.
//
// These checks run in two contexts:
//   - `lorekeeper check` prints every result and exits non-zero when a
//     required check fails.
//   - `lorekeeper serve` runs RunAll at startup and refuses to listen when
//     the data directories are unusable.
//
// CheckOpenAI is the only check that talks to the network; RunAll only
// verifies that a key is configured.
package preflight
