package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes size bytes of filler to path, creating parent directories.
// Sizes below one byte are rounded up to one.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	f := create(t, path)
	defer f.Close()

	total := max(size, 1)
	chunk := bytes.Repeat([]byte{'B'}, 32<<10)
	for written := int64(0); written < total; {
		n := min(int64(len(chunk)), total-written)
		if _, err := f.Write(chunk[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		written += n
	}
}

// WriteSparseFile gives path a logical size without writing data, which keeps
// tests of 50 MB+ recordings fast.
func WriteSparseFile(t testing.TB, path string, size int64) {
	t.Helper()
	f := create(t, path)
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate %s: %v", path, err)
	}
}

func create(t testing.TB, path string) *os.File {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return f
}
