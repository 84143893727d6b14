// Package deps reports on the external binaries Lorekeeper needs: ffmpeg for
// compression and ffprobe for duration probing.
package deps
