// Package fileutil holds the file copy and write helpers used when recordings
// enter the data directory and when notes leave it.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Digest identifies file content by size and SHA-256.
type Digest struct {
	Size   int64
	SHA256 string
}

// Sum hashes the file at path.
func Sum(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()
	return digestOf(f)
}

func digestOf(r io.Reader) (Digest, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, err
	}
	return Digest{Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// CopyVerified copies src to a new file dst, then re-reads dst and compares
// its digest with the source's. dst must not exist; it is removed again when
// the copy fails or does not match.
func CopyVerified(src, dst string) (_ Digest, err error) {
	in, err := os.Open(src)
	if err != nil {
		return Digest{}, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Digest{}, err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	want, err := digestOf(io.TeeReader(in, out))
	if err != nil {
		return Digest{}, fmt.Errorf("copy: %w", err)
	}
	if err = out.Sync(); err != nil {
		return Digest{}, err
	}
	if err = out.Close(); err != nil {
		return Digest{}, err
	}

	got, err := Sum(dst)
	if err != nil {
		return Digest{}, fmt.Errorf("verify copy: %w", err)
	}
	if got != want {
		err = fmt.Errorf("verify copy: wrote %d bytes (sha256 %.12s), source has %d bytes (sha256 %.12s)", got.Size, got.SHA256, want.Size, want.SHA256)
		return Digest{}, err
	}
	return want, nil
}

// WriteFileAtomic writes data to a temporary file beside path and renames it
// into place, so readers never observe a half-written file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
