package httpapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"lorekeeper/internal/compression"
	"lorekeeper/internal/export"
	"lorekeeper/internal/ingest"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/services"
	"lorekeeper/internal/session"
	"lorekeeper/internal/textutil"
)

type job func(ctx context.Context, id string) (*session.Session, error)

func (s *Server) resolve(c *fiber.Ctx) (*session.Session, error) {
	return s.store.Resolve(c.UserContext(), c.Params("ref"))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := "ok"
	if err := s.store.Ping(c.UserContext()); err != nil {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":  status,
		"backend": s.store.Backend(),
		"active":  s.activeCount(),
	})
}

func (s *Server) handleList(c *fiber.Ctx) error {
	var statuses []session.Status
	for _, raw := range strings.Split(c.Query("status"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		st, ok := session.ParseStatus(raw)
		if !ok {
			return s.fail(c, services.Wrap(services.ErrValidation, "api", "list", fmt.Sprintf("unknown status %q", raw), nil), nil)
		}
		statuses = append(statuses, st)
	}

	ctx := c.UserContext()
	sessions, err := s.store.List(ctx, statuses...)
	if err != nil {
		return s.fail(c, err, nil)
	}
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return s.fail(c, err, nil)
	}

	resp := ListResponse{Sessions: make([]Session, 0, len(sessions)), Counts: make(map[string]int, len(counts))}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, FromSession(sess, false))
	}
	for st, n := range counts {
		resp.Counts[string(st)] = n
	}
	return c.JSON(resp)
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	sess, err := s.resolve(c)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(FromSession(sess, c.QueryBool("transcript")))
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return s.fail(c, services.Wrap(services.ErrValidation, "api", "upload", `multipart field "file" is required`, nil), nil)
	}

	var recordedAt time.Time
	if raw := strings.TrimSpace(c.FormValue("recorded_at")); raw != "" {
		if recordedAt, err = time.Parse(time.DateOnly, raw); err != nil {
			return s.fail(c, services.Wrap(services.ErrValidation, "api", "upload", "recorded_at must be YYYY-MM-DD", nil), nil)
		}
	}

	if err := os.MkdirAll(s.cfg.Paths.WorkDir, 0o755); err != nil {
		return s.fail(c, err, nil)
	}
	tmp, err := os.CreateTemp(s.cfg.Paths.WorkDir, "upload-*")
	if err != nil {
		return s.fail(c, err, nil)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.SaveFile(header, tmpPath); err != nil {
		return s.fail(c, fmt.Errorf("save upload: %w", err), nil)
	}

	sess, err := s.ingester.Ingest(c.UserContext(), ingest.Request{
		Path:         tmpPath,
		OriginalName: textutil.SanitizeFileName(filepath.Base(header.Filename)),
		Title:        c.FormValue("title"),
		RecordedAt:   recordedAt,
	})
	if err != nil {
		return s.fail(c, err, nil)
	}
	if c.QueryBool("process") && s.claim(sess.ID) {
		s.startJob(c.UserContext(), "process", sess.ID, s.processor.Process)
	}
	return c.Status(fiber.StatusCreated).JSON(FromSession(sess, false))
}

func (s *Server) handleRemove(c *fiber.Ctx) error {
	sess, err := s.resolve(c)
	if err != nil {
		return s.fail(c, err, nil)
	}
	if !s.claim(sess.ID) {
		return s.fail(c, errBusy, sess)
	}
	defer s.release(sess.ID)
	if err := s.store.Remove(c.UserContext(), sess.ID); err != nil {
		return s.fail(c, err, sess)
	}
	if !c.QueryBool("keep_files") {
		if err := ingest.RemoveFiles(sess); err != nil {
			logging.WarnWithContext(logging.WithContext(c.UserContext(), s.logger), "recording files not removed", "session_files_kept",
				logging.SessionID(sess.ID),
				logging.Error(err),
			)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleProcess(c *fiber.Ctx) error {
	return s.runJob(c, "process", s.processor.Process)
}

func (s *Server) handleEscalate(c *fiber.Ctx) error {
	return s.runJob(c, "escalate", s.processor.Escalate)
}

// runJob runs fn inline when ?wait=true, otherwise in the background with
// a 202 answer carrying the pre-run state.
func (s *Server) runJob(c *fiber.Ctx, op string, fn job) error {
	sess, err := s.resolve(c)
	if err != nil {
		return s.fail(c, err, nil)
	}
	if !s.claim(sess.ID) {
		return s.fail(c, errBusy, sess)
	}

	if !c.QueryBool("wait") {
		s.startJob(c.UserContext(), op, sess.ID, fn)
		return c.Status(fiber.StatusAccepted).JSON(FromSession(sess, false))
	}

	defer s.release(sess.ID)
	updated, err := fn(c.UserContext(), sess.ID)
	if err != nil {
		return s.fail(c, err, updated)
	}
	return c.JSON(FromSession(updated, false))
}

// startJob runs fn under the server lifetime context. The caller must have
// claimed id.
func (s *Server) startJob(reqCtx context.Context, op, id string, fn job) {
	ctx := s.baseCtx
	if reqID, ok := services.RequestIDFromContext(reqCtx); ok {
		ctx = services.WithRequestID(ctx, reqID)
	}
	ctx = services.WithSessionID(ctx, id)

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer s.release(id)
		logger := logging.WithContext(ctx, s.logger)
		sess, err := fn(ctx, id)
		if err != nil {
			logging.WarnWithContext(logger, "background job failed", "api_job_failed",
				logging.String("op", op),
				logging.String("kind", services.Kind(err)),
				logging.Error(err),
			)
			return
		}
		logger.Info("background job finished", logging.String("op", op), logging.String("status", string(sess.Status)))
	}()
}

func (s *Server) handleRetry(c *fiber.Ctx) error {
	sess, err := s.resolve(c)
	if err != nil {
		return s.fail(c, err, nil)
	}
	ctx := c.UserContext()
	if err := s.store.Retry(ctx, sess.ID); err != nil {
		return s.fail(c, err, sess)
	}
	updated, err := s.store.Get(ctx, sess.ID)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(FromSession(updated, false))
}

func (s *Server) handleRecover(c *fiber.Ctx) error {
	sess, err := s.resolve(c)
	if err != nil {
		return s.fail(c, err, nil)
	}
	if !s.claim(sess.ID) {
		return s.fail(c, errBusy, sess)
	}
	defer s.release(sess.ID)
	updated, err := s.store.Recover(c.UserContext(), sess.ID)
	if err != nil {
		return s.fail(c, err, sess)
	}
	return c.JSON(FromSession(updated, false))
}

func (s *Server) handleNotes(c *fiber.Ctx) error {
	sess, err := s.resolve(c)
	if err != nil {
		return s.fail(c, err, nil)
	}
	var req NotesRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, services.Wrap(services.ErrValidation, "api", "notes", "invalid JSON body", err), sess)
	}
	ctx := c.UserContext()
	if err := s.store.UpdateNotes(ctx, sess.ID, req.Notes); err != nil {
		return s.fail(c, err, sess)
	}
	updated, err := s.store.Get(ctx, sess.ID)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(FromSession(updated, false))
}

func (s *Server) handlePlan(c *fiber.Ctx) error {
	sess, err := s.resolve(c)
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(fiber.Map{
		"session": FromSession(sess, false),
		"plan":    compression.PreviewFor(sess.Source),
	})
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	sess, err := s.resolve(c)
	if err != nil {
		return s.fail(c, err, nil)
	}
	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s"`, export.FileName(sess)))
	return c.SendString(export.Markdown(sess, export.Options{IncludeTranscript: c.QueryBool("transcript")}))
}
