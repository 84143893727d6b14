package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/config"
	"lorekeeper/internal/ingest"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/services"
	"lorekeeper/internal/session"
)

const (
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 5 * time.Second
)

var errBusy = errors.New("session is already being processed")

// Processor runs the pipeline for one session. *pipeline.Orchestrator
// satisfies it.
type Processor interface {
	Process(ctx context.Context, id string) (*session.Session, error)
	Escalate(ctx context.Context, id string) (*session.Session, error)
}

// Server serves the JSON API and owns the background processing jobs it
// starts.
type Server struct {
	cfg       *config.Config
	store     *session.Store
	ingester  *ingest.Ingester
	processor Processor
	logger    *slog.Logger
	app       *fiber.App

	lockPath string
	lock     *flock.Flock

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active map[string]struct{}
	jobs   sync.WaitGroup
}

// New wires the routes. Nothing listens until Run.
func New(cfg *config.Config, store *session.Store, processor Processor, logger *slog.Logger) *Server {
	logger = logging.NewComponentLogger(logger, "api")
	baseCtx, cancel := context.WithCancel(context.Background())
	lockPath := filepath.Join(cfg.Paths.DataDir, "lorekeeper-serve.lock")
	s := &Server{
		cfg:       cfg,
		store:     store,
		ingester:  ingest.New(cfg, store, logger),
		processor: processor,
		logger:    logger,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		baseCtx:   baseCtx,
		cancel:    cancel,
		active:    make(map[string]struct{}),
	}

	bodyLimit := cfg.Compression.MaxUploadMB
	if bodyLimit <= 0 {
		bodyLimit = 500
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "lorekeeper",
		BodyLimit:             (bodyLimit + 1) * audio.BytesPerMB,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleFiberError,
	})
	s.routes()
	return s
}

// App exposes the underlying fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() {
	s.app.Use(s.requestContext)
	s.app.Use(authMiddleware(s.cfg.API.Token))

	api := s.app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/sessions", s.handleList)
	api.Post("/sessions", s.handleUpload)
	api.Get("/sessions/:ref", s.handleGet)
	api.Delete("/sessions/:ref", s.handleRemove)
	api.Post("/sessions/:ref/process", s.handleProcess)
	api.Post("/sessions/:ref/retry", s.handleRetry)
	api.Post("/sessions/:ref/escalate", s.handleEscalate)
	api.Post("/sessions/:ref/recover", s.handleRecover)
	api.Put("/sessions/:ref/notes", s.handleNotes)
	api.Get("/sessions/:ref/plan", s.handlePlan)
	api.Get("/sessions/:ref/export", s.handleExport)
}

// Run takes the single-instance lock, listens on api.bind and blocks until
// ctx is cancelled. Background jobs are cancelled and awaited before it
// returns.
func (s *Server) Run(ctx context.Context) error {
	if err := s.acquireLock(); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release server lock", logging.Error(err))
		}
	}()

	listener, err := net.Listen("tcp", s.cfg.API.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.app.Listener(listener) }()
	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.cfg.API.Token != ""),
		logging.String("lock", s.lockPath),
	)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		s.shutdownJobs()
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		s.logger.Warn("api shutdown incomplete", logging.Error(err))
	}
	s.shutdownJobs()
	s.logger.Info("api server stopped")
	return nil
}

// Wait blocks until every background job has finished.
func (s *Server) Wait() { s.jobs.Wait() }

func (s *Server) acquireLock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another lorekeeper server is already running (lock %s)", s.lockPath)
	}
	return nil
}

func (s *Server) shutdownJobs() {
	s.cancel()
	s.jobs.Wait()
}

// claim marks id as being processed; it fails when a job already holds it.
func (s *Server) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[id]; busy {
		return false
	}
	s.active[id] = struct{}{}
	return true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *Server) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Server) requestContext(c *fiber.Ctx) error {
	id := strings.Clone(strings.TrimSpace(c.Get(requestIDHeader)))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDHeader, id)
	c.SetUserContext(services.WithRequestID(c.UserContext(), id))

	start := time.Now()
	err := c.Next()
	logging.WithContext(c.UserContext(), s.logger).Debug("request handled",
		logging.String("method", c.Method()),
		logging.String("path", c.Path()),
		logging.Int("status", c.Response().StatusCode()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return err
}

// authMiddleware validates bearer tokens. An empty token disables auth; the
// health route is always open.
func authMiddleware(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" || c.Path() == "/api/health" {
			return c.Next()
		}
		auth := c.Get(fiber.HeaderAuthorization)
		supplied, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "unauthorized"})
		}
		return c.Next()
	}
}

func (s *Server) handleFiberError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
	}
	return s.fail(c, err, nil)
}

// fail writes err with the status its marker maps to.
func (s *Server) fail(c *fiber.Ctx, err error, sess *session.Session) error {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	if kind := services.Kind(err); kind != services.KindUnknown {
		resp.Kind = kind
	}
	if sess != nil {
		view := FromSession(sess, false)
		resp.Session = &view
	}
	if status >= fiber.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(c.UserContext(), s.logger), "request failed", "api_request_failed",
			logging.String("path", c.Path()),
			logging.Error(err),
		)
	}
	return c.Status(status).JSON(resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrStatusConflict), errors.Is(err, errBusy):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrConfiguration):
		return fiber.StatusServiceUnavailable
	case services.Kind(err) != services.KindUnknown:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
