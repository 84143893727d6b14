package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lorekeeper/internal/config"
)

// ConfigOption adjusts a config built by NewConfig.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig returns the default config rooted in a fresh temp directory,
// with a dummy OpenAI key and an ephemeral API port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	data := filepath.Join(base, "data")
	cfg := config.Default()
	cfg.Paths.DataDir = data
	cfg.Paths.UploadDir = filepath.Join(data, "audio")
	cfg.Paths.WorkDir = filepath.Join(data, "work")
	cfg.Paths.ExportDir = filepath.Join(data, "exports")
	cfg.Paths.LogDir = filepath.Join(data, "logs")
	cfg.OpenAI.APIKey = "test"
	cfg.API.Bind = "127.0.0.1:0"

	b := &configBuilder{t: t, baseDir: base, cfg: &cfg}
	for _, opt := range opts {
		opt(b)
	}
	return b.cfg
}

func WithOpenAIBaseURL(url string) ConfigOption {
	return func(b *configBuilder) { b.cfg.OpenAI.BaseURL = url }
}

func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) { b.cfg.API.Token = token }
}

// stubScript answers any invocation with "<name> version stub".
const stubScript = "#!/bin/sh\necho \"$(basename \"$0\") version stub\"\n"

// WithStubbedBinaries puts stub executables first on PATH for the rest of the
// test. Without names it stubs ffmpeg and ffprobe. Tests using it cannot run
// in parallel.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte(stubScript), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
