// Package ingest registers new session recordings: it validates the upload,
// copies it into the data directory under a normalized name and creates the
// session record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/config"
	"lorekeeper/internal/fileutil"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/media/ffprobe"
	"lorekeeper/internal/services"
	"lorekeeper/internal/session"
	"lorekeeper/internal/textutil"
)

const maxSlugLen = 48

// Request describes one recording to add.
type Request struct {
	// Path is the file to copy in; it is left untouched.
	Path string
	// OriginalName overrides filepath.Base(Path), e.g. for HTTP uploads.
	OriginalName string
	Title        string
	RecordedAt   time.Time
}

// Ingester copies recordings into the upload directory and registers them.
type Ingester struct {
	store        *session.Store
	uploadDir    string
	maxUploadMB  int
	ffprobe      string
	probeTimeout time.Duration
	logger       *slog.Logger
}

// New builds an Ingester from configuration.
func New(cfg *config.Config, store *session.Store, logger *slog.Logger) *Ingester {
	probeTimeout := time.Duration(cfg.Compression.ProbeTimeoutSeconds) * time.Second
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &Ingester{
		store:        store,
		uploadDir:    cfg.Paths.UploadDir,
		maxUploadMB:  cfg.Compression.MaxUploadMB,
		ffprobe:      cfg.Compression.FFprobeBinary,
		probeTimeout: probeTimeout,
		logger:       logging.NewComponentLogger(logger, "ingest"),
	}
}

// Validate checks that path is a non-empty, supported recording within the
// upload limit and returns its asset description.
func (i *Ingester) Validate(path, originalName string) (audio.Asset, error) {
	if strings.TrimSpace(path) == "" {
		return audio.Asset{}, validation("no file given")
	}
	if originalName == "" {
		originalName = filepath.Base(path)
	}
	format, err := audio.FormatFromPath(originalName)
	if err != nil {
		return audio.Asset{}, validation(fmt.Sprintf("%s: unsupported file type; accepted: %s", originalName, acceptedList()))
	}
	info, err := os.Stat(path)
	if err != nil {
		return audio.Asset{}, services.Wrap(services.ErrValidation, "ingest", "validate", "file is not readable", err)
	}
	if info.IsDir() {
		return audio.Asset{}, validation(fmt.Sprintf("%s is a directory", path))
	}
	if info.Size() == 0 {
		return audio.Asset{}, validation(fmt.Sprintf("%s is empty", originalName))
	}
	if i.maxUploadMB > 0 && audio.BytesToMB(info.Size()) > float64(i.maxUploadMB) {
		return audio.Asset{}, validation(fmt.Sprintf("%s is %.1f MB; the maximum upload is %d MB",
			originalName, audio.BytesToMB(info.Size()), i.maxUploadMB))
	}
	return audio.Asset{Path: path, SizeBytes: info.Size(), Format: format}, nil
}

// Ingest validates req, copies the recording and creates the session.
func (i *Ingester) Ingest(ctx context.Context, req Request) (*session.Session, error) {
	originalName := strings.TrimSpace(req.OriginalName)
	if originalName == "" {
		originalName = filepath.Base(req.Path)
	}
	asset, err := i.Validate(req.Path, originalName)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(i.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	stored := filepath.Join(i.uploadDir, StoredName(originalName, uuid.NewString()))
	digest, err := fileutil.CopyVerified(req.Path, stored)
	if err != nil {
		return nil, fmt.Errorf("copy recording: %w", err)
	}
	asset.Path = stored
	asset.Duration = i.probeDuration(ctx, stored)

	sess, err := i.store.Create(ctx, session.NewSession{
		Title:        req.Title,
		RecordedAt:   req.RecordedAt,
		OriginalName: originalName,
		Source:       asset,
	})
	if err != nil {
		_ = os.Remove(stored)
		return nil, err
	}

	logger := logging.WithContext(services.WithSessionID(ctx, sess.ID), i.logger)
	logger.Info("session added",
		logging.Int("session_number", sess.Number),
		logging.String("file", stored),
		logging.String("sha256", digest.SHA256),
		logging.Float64("size_mb", asset.SizeMB()),
		logging.String("format", string(asset.Format)),
		logging.Duration("duration", asset.Duration),
		logging.Bool("needs_compression", asset.ExceedsCeiling() || !asset.Format.TranscriptionReady()),
	)
	return sess, nil
}

// StoredName is the on-disk name for an upload: the first eight characters of
// id, the folded stem of the original name, and the lowercase extension.
func StoredName(originalName, id string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	stem := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	prefix := strings.ReplaceAll(id, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s_%s%s", prefix, textutil.Slug(stem, maxSlugLen), ext)
}

// RemoveFiles deletes the stored recording of sess and its compressed copy.
// Files already gone are not an error.
func RemoveFiles(sess *session.Session) error {
	var errs []error
	paths := []string{sess.Source.Path}
	if sess.Working != nil {
		paths = append(paths, sess.Working.Path)
	}
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (i *Ingester) probeDuration(ctx context.Context, path string) time.Duration {
	if strings.TrimSpace(i.ffprobe) == "" {
		return 0
	}
	probeCtx, cancel := context.WithTimeout(ctx, i.probeTimeout)
	defer cancel()
	d, err := ffprobe.Duration(probeCtx, i.ffprobe, path)
	if err != nil {
		i.logger.Debug("duration probe skipped", logging.String("file", path), logging.Error(err))
		return 0
	}
	return d
}

func validation(msg string) error {
	return services.Wrap(services.ErrValidation, "ingest", "validate", msg, nil)
}

func acceptedList() string {
	formats := audio.Formats()
	names := make([]string, len(formats))
	for idx, f := range formats {
		names[idx] = string(f)
	}
	return strings.Join(names, ", ")
}
