package transcription_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lorekeeper/internal/audio"
	"lorekeeper/internal/services"
	"lorekeeper/internal/services/transcription"
)

func writeAudio(t *testing.T, name string, size int64) audio.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create audio: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate audio: %v", err)
	}
	_ = f.Close()
	format, _ := audio.FormatFromPath(path)
	return audio.Asset{Path: path, SizeBytes: size, Format: format}
}

func newServer(t *testing.T, calls *int, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribeVerboseJSON(t *testing.T) {
	calls := 0
	var form map[string]string
	srv := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		form = map[string]string{
			"model":           r.FormValue("model"),
			"language":        r.FormValue("language"),
			"response_format": r.FormValue("response_format"),
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("expected uploaded file: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "french",
			"duration": 12.5,
			"text":     " Bienvenue à Phandaline. ",
			"segments": []any{
				map[string]any{"id": 0, "start": 0.0, "end": 4.0, "text": " Bienvenue"},
				map[string]any{"id": 1, "start": 4.0, "end": 12.5, "text": " à Phandaline."},
			},
		})
	})

	client := transcription.NewClient(transcription.Config{
		APIKey:   "test",
		BaseURL:  srv.URL + "/v1",
		Model:    "whisper-1",
		Language: "fr",
	}, nil)
	result, err := client.Transcribe(context.Background(), writeAudio(t, "session.mp3", 4096), 0)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if result.Text != "Bienvenue à Phandaline." {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.Language != "french" || result.Duration != 12500*time.Millisecond {
		t.Fatalf("unexpected metadata %+v", result)
	}
	if len(result.Segments) != 2 || result.Segments[1].Start != 4*time.Second {
		t.Fatalf("unexpected segments %+v", result.Segments)
	}
	if form["model"] != "whisper-1" || form["language"] != "fr" || form["response_format"] != "verbose_json" {
		t.Fatalf("unexpected form %v", form)
	}
	if calls != 1 {
		t.Fatalf("expected one request, got %d", calls)
	}
}

func TestTranscribeRefusesOversizedLocally(t *testing.T) {
	calls := 0
	srv := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {})
	client := transcription.NewClient(transcription.Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)

	asset := writeAudio(t, "huge.mp3", 26*audio.BytesPerMB)
	_, err := client.Transcribe(context.Background(), asset, 0)
	if !errors.Is(err, services.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if calls != 0 {
		t.Fatal("oversized file must not be uploaded")
	}
}

func TestTranscribeRemote413(t *testing.T) {
	calls := 0
	srv := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"error":{"message":"Maximum content size limit (26214400) exceeded","type":"invalid_request_error"}}`))
	})
	client := transcription.NewClient(transcription.Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)

	_, err := client.Transcribe(context.Background(), writeAudio(t, "edge.m4a", 2048), 0)
	if !errors.Is(err, services.ErrPayloadTooLarge) || !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected payload too large external error, got %v", err)
	}
}

func TestTranscribeServerError(t *testing.T) {
	calls := 0
	srv := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"bad gateway","type":"server_error"}}`))
	})
	client := transcription.NewClient(transcription.Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)

	_, err := client.Transcribe(context.Background(), writeAudio(t, "a.mp3", 2048), 0)
	if services.Kind(err) != services.KindExternalService {
		t.Fatalf("kind = %s (%v)", services.Kind(err), err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one request, got %d", calls)
	}
}

func TestTranscribeEmptyText(t *testing.T) {
	calls := 0
	srv := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":"transcribe","language":"fr","duration":1,"text":"   "}`))
	})
	client := transcription.NewClient(transcription.Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)
	if _, err := client.Transcribe(context.Background(), writeAudio(t, "a.mp3", 2048), 0); !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestTranscribeValidation(t *testing.T) {
	client := transcription.NewClient(transcription.Config{}, nil)
	if _, err := client.Transcribe(context.Background(), audio.Asset{Path: "x.mp3"}, 0); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	keyed := transcription.NewClient(transcription.Config{APIKey: "k"}, nil)
	if _, err := keyed.Transcribe(context.Background(), audio.Asset{Path: filepath.Join(t.TempDir(), "missing.mp3")}, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing file, got %v", err)
	}
	if _, err := keyed.Transcribe(context.Background(), writeAudio(t, "a.aac", 2048), 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for aac, got %v", err)
	}
}

func TestTimeoutFor(t *testing.T) {
	client := transcription.NewClient(transcription.Config{TimeoutSeconds: 60}, nil)
	if got := client.TimeoutFor(50); got != time.Minute {
		t.Fatalf("TimeoutFor(50) = %s", got)
	}
	if got := client.TimeoutFor(150); got != 2*time.Minute {
		t.Fatalf("TimeoutFor(150) = %s", got)
	}
}
