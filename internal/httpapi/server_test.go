package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"lorekeeper/internal/config"
	"lorekeeper/internal/services"
	"lorekeeper/internal/session"
	"lorekeeper/internal/testsupport"
)

type fakeProcessor struct {
	store     *session.Store
	calls     atomic.Int32
	escalate  atomic.Int32
	err       error
	hold      chan struct{}
	requestID atomic.Value
}

func (f *fakeProcessor) Process(ctx context.Context, id string) (*session.Session, error) {
	f.calls.Add(1)
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reqID, ok := services.RequestIDFromContext(ctx); ok {
		f.requestID.Store(reqID)
	}
	if f.err != nil {
		if err := f.store.Fail(ctx, id, session.StatusUploaded, services.Kind(f.err), f.err.Error()); err != nil {
			return nil, err
		}
		sess, _ := f.store.Get(ctx, id)
		return sess, f.err
	}
	if err := f.store.Transition(ctx, id, session.StatusUploaded, session.StatusTranscribing); err != nil {
		return nil, err
	}
	if err := f.store.CommitTranscript(ctx, id, "Le MJ ouvre la séance.", "fr"); err != nil {
		return nil, err
	}
	if err := f.store.CompleteAnalysis(ctx, id, session.AnalysisResult{SessionTitle: "Ouverture", TLDRSummary: "Début."}); err != nil {
		return nil, err
	}
	return f.store.Get(ctx, id)
}

func (f *fakeProcessor) Escalate(ctx context.Context, id string) (*session.Session, error) {
	f.escalate.Add(1)
	return f.store.Get(ctx, id)
}

type harness struct {
	t     *testing.T
	cfg   *config.Config
	store *session.Store
	proc  *fakeProcessor
	srv   *Server
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Compression.FFprobeBinary = ""
	store := testsupport.MustOpenStore(t, cfg)
	proc := &fakeProcessor{store: store}
	srv := New(cfg, store, proc, nil)
	t.Cleanup(srv.shutdownJobs)
	return &harness{t: t, cfg: cfg, store: store, proc: proc, srv: srv}
}

func (h *harness) do(req *http.Request) (*http.Response, []byte) {
	h.t.Helper()
	resp, err := h.srv.App().Test(req, -1)
	if err != nil {
		h.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func (h *harness) call(method, path string, body any) (*http.Response, []byte) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.do(req)
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return out
}

func uploadRequest(t *testing.T, name string, size int, fields map[string]string, query string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(bytes.Repeat([]byte{0x42}, size)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/sessions"+query, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestAuthRequiresBearerToken(t *testing.T) {
	h := newHarness(t, testsupport.WithAPIToken("s3cret"))

	if resp, _ := h.call(http.MethodGet, "/api/health", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", resp.StatusCode)
	}
	if resp, _ := h.call(http.MethodGet, "/api/sessions", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if resp, _ := h.do(req); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, _ := h.do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

func TestUploadListAndGet(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(uploadRequest(t, "Séance 1.mp3", 4096, map[string]string{"title": "Prologue", "recorded_at": "2024-05-01"}, ""))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	created := decode[Session](t, body)
	if created.Number != 1 || created.Title != "Prologue" || created.RecordedAt != "2024-05-01" || created.Status != "uploaded" {
		t.Fatalf("unexpected created session %+v", created)
	}
	if created.OriginalName != "Séance 1.mp3" {
		t.Fatalf("unexpected original name %q", created.OriginalName)
	}

	resp, body = h.call(http.MethodGet, "/api/sessions?status=uploaded", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	list := decode[ListResponse](t, body)
	if len(list.Sessions) != 1 || list.Counts["uploaded"] != 1 {
		t.Fatalf("unexpected list %+v", list)
	}

	resp, body = h.call(http.MethodGet, "/api/sessions/1", nil)
	if resp.StatusCode != http.StatusOK || decode[Session](t, body).ID != created.ID {
		t.Fatalf("get by number: %d %s", resp.StatusCode, body)
	}

	entries, _ := os.ReadDir(h.cfg.Paths.WorkDir)
	if len(entries) != 0 {
		t.Fatalf("expected upload temp file cleaned, found %d entries", len(entries))
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(uploadRequest(t, "notes.txt", 10, nil, ""))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported file, got %d %s", resp.StatusCode, body)
	}
	if kind := decode[ErrorResponse](t, body).Kind; kind != services.KindValidation {
		t.Fatalf("unexpected kind %q", kind)
	}

	resp, _ = h.do(uploadRequest(t, "a.mp3", 10, map[string]string{"recorded_at": "May 1st"}, ""))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.StatusCode)
	}

	resp, _ = h.call(http.MethodPost, "/api/sessions", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", resp.StatusCode)
	}
}

func TestProcessWaitReturnsCompletedSession(t *testing.T) {
	h := newHarness(t)
	testsupport.NewSession(t, h.store, h.cfg, "one.mp3", 2048)

	resp, body := h.call(http.MethodPost, "/api/sessions/1/process?wait=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", resp.StatusCode, body)
	}
	got := decode[Session](t, body)
	if got.Status != "completed" || got.Title != "Ouverture" || got.Analysis == nil {
		t.Fatalf("unexpected processed session %+v", got)
	}
	if got.Transcript != "" || !got.HasTranscript {
		t.Fatal("transcript should be omitted unless requested")
	}

	resp, body = h.call(http.MethodGet, "/api/sessions/1?transcript=true", nil)
	if resp.StatusCode != http.StatusOK || decode[Session](t, body).Transcript != "Le MJ ouvre la séance." {
		t.Fatalf("expected transcript on request, got %s", body)
	}
}

func TestProcessFailureCarriesKindAndSession(t *testing.T) {
	h := newHarness(t)
	testsupport.NewSession(t, h.store, h.cfg, "big.wav", 2048)
	h.proc.err = services.Wrap(services.ErrStillTooLarge, "compression", "chain", "compressed output is still 26.5 MB", nil)

	resp, body := h.call(http.MethodPost, "/api/sessions/1/process?wait=1", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", resp.StatusCode, body)
	}
	got := decode[ErrorResponse](t, body)
	if got.Kind != services.KindStillTooLarge || got.Session == nil || got.Session.Status != "error" {
		t.Fatalf("unexpected error payload %+v", got)
	}
}

func TestProcessInBackground(t *testing.T) {
	h := newHarness(t)
	testsupport.NewSession(t, h.store, h.cfg, "one.mp3", 2048)

	resp, body := h.call(http.MethodPost, "/api/sessions/1/process", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", resp.StatusCode, body)
	}
	if decode[Session](t, body).Status != "uploaded" {
		t.Fatalf("202 should carry the pre-run state: %s", body)
	}
	h.srv.Wait()

	sess, err := h.store.GetByNumber(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != session.StatusCompleted || h.proc.calls.Load() != 1 {
		t.Fatalf("expected background completion, status=%s calls=%d", sess.Status, h.proc.calls.Load())
	}
	if h.srv.activeCount() != 0 {
		t.Fatal("expected claim released")
	}
}

func TestProcessRefusesConcurrentRun(t *testing.T) {
	h := newHarness(t)
	sess := testsupport.NewSession(t, h.store, h.cfg, "one.mp3", 2048)
	if !h.srv.claim(sess.ID) {
		t.Fatal("claim failed")
	}
	defer h.srv.release(sess.ID)

	for _, path := range []string{"/api/sessions/1/process", "/api/sessions/1/escalate", "/api/sessions/1/recover"} {
		resp, _ := h.call(http.MethodPost, path, nil)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("%s: expected 409, got %d", path, resp.StatusCode)
		}
	}
	if resp, _ := h.call(http.MethodDelete, "/api/sessions/1", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete: expected 409, got %d", resp.StatusCode)
	}
	if h.proc.calls.Load() != 0 || h.proc.escalate.Load() != 0 {
		t.Fatal("processor must not run while claimed")
	}
}

func TestBackgroundJobKeepsItsRequestID(t *testing.T) {
	h := newHarness(t)
	h.proc.hold = make(chan struct{})
	testsupport.NewSession(t, h.store, h.cfg, "one.mp3", 2048)

	jobID := strings.Repeat("A", 36)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/1/process", nil)
	req.Header.Set(requestIDHeader, jobID)
	if resp, body := h.do(req); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", resp.StatusCode, body)
	}

	otherID := strings.Repeat("Z", 36)
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set(requestIDHeader, otherID)
		if resp, _ := h.do(req); resp.Header.Get(requestIDHeader) != otherID {
			t.Fatalf("health echoed %q", resp.Header.Get(requestIDHeader))
		}
	}
	close(h.proc.hold)
	h.srv.Wait()

	if got, _ := h.proc.requestID.Load().(string); got != jobID {
		t.Fatalf("background job saw request id %q, want %q", got, jobID)
	}
}

func TestRemoveAndRecoverRefusedWhileJobRuns(t *testing.T) {
	h := newHarness(t)
	h.proc.hold = make(chan struct{})
	sess := testsupport.NewSession(t, h.store, h.cfg, "one.mp3", 2048)

	if resp, body := h.call(http.MethodPost, "/api/sessions/1/process", nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", resp.StatusCode, body)
	}
	if resp, _ := h.call(http.MethodDelete, "/api/sessions/1", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete: expected 409, got %d", resp.StatusCode)
	}
	if resp, _ := h.call(http.MethodPost, "/api/sessions/1/recover", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("recover: expected 409, got %d", resp.StatusCode)
	}
	if _, err := h.store.Get(context.Background(), sess.ID); err != nil {
		t.Fatalf("session should survive a refused delete: %v", err)
	}

	close(h.proc.hold)
	h.srv.Wait()

	if resp, _ := h.call(http.MethodDelete, "/api/sessions/1", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete after job: expected 204, got %d", resp.StatusCode)
	}
	if h.srv.activeCount() != 0 {
		t.Fatal("expected delete to release its claim")
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	h := newHarness(t)
	sess := testsupport.NewSession(t, h.store, h.cfg, "one.mp3", 2048)
	ctx := context.Background()

	if resp, _ := h.call(http.MethodPost, "/api/sessions/1/retry", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("retry of uploaded session: expected 409, got %d", resp.StatusCode)
	}
	if resp, _ := h.call(http.MethodPost, "/api/sessions/1/recover", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("recover of uploaded session: expected 400, got %d", resp.StatusCode)
	}

	if err := h.store.Transition(ctx, sess.ID, session.StatusUploaded, session.StatusTranscribing); err != nil {
		t.Fatal(err)
	}
	resp, body := h.call(http.MethodPost, "/api/sessions/1/recover", nil)
	got := decode[Session](t, body)
	if resp.StatusCode != http.StatusOK || got.Status != "error" || got.ErrorKind != services.KindInterrupted {
		t.Fatalf("recover: %d %+v", resp.StatusCode, got)
	}

	resp, body = h.call(http.MethodPost, "/api/sessions/1/retry", nil)
	got = decode[Session](t, body)
	if resp.StatusCode != http.StatusOK || got.Status != "uploaded" || got.ErrorKind != "" {
		t.Fatalf("retry: %d %+v", resp.StatusCode, got)
	}

	resp, body = h.call(http.MethodPut, "/api/sessions/1/notes", NotesRequest{Notes: "Ramener des dés."})
	if resp.StatusCode != http.StatusOK || decode[Session](t, body).Notes != "Ramener des dés." {
		t.Fatalf("notes: %d %s", resp.StatusCode, body)
	}

	resp, body = h.call(http.MethodGet, "/api/sessions/1/export", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/markdown") {
		t.Fatalf("export: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(body), "# Session 1") || !strings.Contains(string(body), "Ramener des dés.") {
		t.Fatalf("unexpected export body:\n%s", body)
	}

	resp, _ = h.call(http.MethodDelete, "/api/sessions/1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	if _, err := os.Stat(sess.Source.Path); !os.IsNotExist(err) {
		t.Fatalf("expected recording removed, err=%v", err)
	}
	if resp, _ := h.call(http.MethodGet, "/api/sessions/1", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestPlanForOversizedRecording(t *testing.T) {
	h := newHarness(t)
	testsupport.NewSession(t, h.store, h.cfg, "long.wav", 60<<20)

	resp, body := h.call(http.MethodGet, "/api/sessions/1/plan", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plan: %d %s", resp.StatusCode, body)
	}
	var payload struct {
		Plan struct {
			NeedsCompression bool `json:"needs_compression"`
			Passes           []struct {
				Name string `json:"name"`
			} `json:"passes"`
		} `json:"plan"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if !payload.Plan.NeedsCompression || len(payload.Plan.Passes) != 2 {
		t.Fatalf("unexpected plan %s", body)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	if resp, _ := h.call(http.MethodGet, "/api/sessions?status=done", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if resp, _ := h.call(http.MethodGet, "/api/sessions/42", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSingleInstanceLock(t *testing.T) {
	h := newHarness(t)
	other := New(h.cfg, h.store, h.proc, nil)
	t.Cleanup(other.shutdownJobs)

	if err := h.srv.acquireLock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer h.srv.lock.Unlock()
	if err := other.acquireLock(); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected second server to be refused, got %v", err)
	}
}
