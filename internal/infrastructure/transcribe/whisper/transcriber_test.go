package whisper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/resilience"
)

type fakeAudioExtractor struct {
	calls int
}

func (f *fakeAudioExtractor) ExtractAudio(_ context.Context, _, dst string) error {
	f.calls++
	return os.WriteFile(dst, []byte("RIFF....WAVE"), 0o644)
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func TestTranscribeMapsVerboseJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Fatalf("expected verbose_json, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"task": "transcribe",
			"language": "english",
			"duration": 4.2,
			"text": " hello kids ",
			"segments": [
				{"id": 0, "start": 0.0, "end": 1.5, "text": " hello"},
				{"id": 1, "start": 1.5, "end": 4.2, "text": " kids"}
			]
		}`))
	}))
	defer server.Close()

	audio := &fakeAudioExtractor{}
	tr := New(Config{BaseURL: server.URL + "/v1", Model: "whisper-1"}, audio, fastExecutor())

	got, err := tr.Transcribe(context.Background(), "/videos/source.mp4")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if audio.calls != 1 {
		t.Fatalf("expected audio extraction once, got %d", audio.calls)
	}
	if got.Text != "hello kids" || got.Language != "english" || len(got.Segments) != 2 {
		t.Fatalf("unexpected transcript %+v", got)
	}
	if got.Segments[1].Text != "kids" || got.Segments[1].End != 4.2 {
		t.Fatalf("unexpected segment %+v", got.Segments[1])
	}
	if got.WordCount() != 2 {
		t.Fatalf("expected 2 words, got %d", got.WordCount())
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"ok","segments":[]}`))
	}))
	defer server.Close()

	tr := New(Config{BaseURL: server.URL + "/v1"}, &fakeAudioExtractor{}, fastExecutor())
	got, err := tr.Transcribe(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "ok" || calls.Load() != 2 {
		t.Fatalf("expected retry then success, calls=%d text=%q", calls.Load(), got.Text)
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	tr := New(Config{BaseURL: server.URL + "/v1"}, &fakeAudioExtractor{}, fastExecutor())
	_, err := tr.Transcribe(context.Background(), "in.mp4")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) || calls.Load() != 1 {
		t.Fatalf("expected a single permanent failure, calls=%d err=%v", calls.Load(), err)
	}
}
