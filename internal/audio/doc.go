// Package audio models the recordings Lorekeeper processes: the accepted
// container formats and the Asset value that tracks a file on disk together
// with its size and (once probed) duration.
package audio
