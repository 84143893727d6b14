package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/config"
	"lorekeeper/internal/session"
)

// MustOpenStore opens a session.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *session.Store {
	t.Helper()

	store, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession writes a recording of sizeBytes into the upload dir and registers it.
func NewSession(t testing.TB, store *session.Store, cfg *config.Config, name string, sizeBytes int64) *session.Session {
	t.Helper()

	path := filepath.Join(cfg.Paths.UploadDir, name)
	if sizeBytes > 1<<20 {
		WriteSparseFile(t, path, sizeBytes)
	} else {
		WriteFile(t, path, sizeBytes)
	}
	asset, err := audio.NewAsset(path)
	if err != nil {
		t.Fatalf("audio.NewAsset: %v", err)
	}
	sess, err := store.Create(context.Background(), session.NewSession{OriginalName: name, Source: asset})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return sess
}
