// Package ffprobe wraps the ffprobe CLI to read container metadata, chiefly
// the duration of audio recordings.
package ffprobe
