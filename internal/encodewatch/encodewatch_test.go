package encodewatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vidpress/internal/encodewatch"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/services"
	"vidpress/internal/services/backend"
	"vidpress/internal/testsupport"
)

type encodeServer struct {
	mu        sync.Mutex
	responses []map[string]any
	polls     int
	finalized int
}

func (s *encodeServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/encode-status"):
			response := s.responses[len(s.responses)-1]
			if s.polls < len(s.responses) {
				response = s.responses[s.polls]
			}
			s.polls++
			_ = json.NewEncoder(w).Encode(response)
		case strings.HasSuffix(r.URL.Path, "/encode-complete"):
			s.finalized++
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (s *encodeServer) counts() (polls, finalized int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls, s.finalized
}

func newWatcher(t *testing.T, server *encodeServer, maxAttempts int) (*encodewatch.Watcher, *queue.Store, *queue.Job) {
	t.Helper()

	ts := httptest.NewServer(server.handler())
	t.Cleanup(ts.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(ts.URL))
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "Encode Watch")
	job.Status = queue.StatusTranscoding
	if err := job.SetSession(&queue.UploadSession{
		VideoID:        "guid-1",
		LibraryID:      9,
		UploadEndpoint: "https://cdn.test/upload",
		Signature:      "sig",
		Expires:        time.Now().Add(time.Hour).Unix(),
	}); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	watcher := encodewatch.NewWatcherWithDependencies(
		cfg, store, logging.NewNop(), backend.New(cfg), time.Millisecond, maxAttempts)
	return watcher, store, job
}

func TestExecuteFinalizesWhenReady(t *testing.T) {
	server := &encodeServer{responses: []map[string]any{
		{"state": "processing", "encode_progress": 20},
		{"state": "processing", "encode_progress": 80},
		{"state": "ready", "encode_progress": 100},
	}}
	watcher, _, job := newWatcher(t, server, 150)

	if err := watcher.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	polls, finalized := server.counts()
	if polls != 3 {
		t.Fatalf("polls = %d", polls)
	}
	if finalized != 1 {
		t.Fatalf("finalized = %d", finalized)
	}
	if job.ProgressPercent != 100 {
		t.Fatalf("progress = %f", job.ProgressPercent)
	}
}

func TestExecuteSurfacesCDNFailureVerbatim(t *testing.T) {
	server := &encodeServer{responses: []map[string]any{
		{"state": "processing", "encode_progress": 10},
		{"state": "processing", "encode_progress": 20},
		{"state": "failed", "message": "source bitrate unsupported"},
	}}
	watcher, _, job := newWatcher(t, server, 150)

	err := watcher.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("err = %v, want remote", err)
	}
	if !strings.Contains(err.Error(), "source bitrate unsupported") {
		t.Fatalf("err = %v, want verbatim CDN message", err)
	}

	polls, finalized := server.counts()
	if polls != 3 {
		t.Fatalf("polls = %d, want failure on attempt 3", polls)
	}
	if finalized != 0 {
		t.Fatalf("finalized = %d", finalized)
	}
}

func TestExecuteTimesOutAfterExactlyMaxAttempts(t *testing.T) {
	server := &encodeServer{responses: []map[string]any{
		{"state": "processing", "encode_progress": 50},
	}}
	watcher, _, job := newWatcher(t, server, 5)

	err := watcher.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}

	polls, finalized := server.counts()
	if polls != 5 {
		t.Fatalf("polls = %d, want exactly the attempt cap", polls)
	}
	if finalized != 0 {
		t.Fatalf("finalized = %d", finalized)
	}
}

func TestExecuteRequiresSession(t *testing.T) {
	server := &encodeServer{responses: []map[string]any{{"state": "ready"}}}
	watcher, store, job := newWatcher(t, server, 150)

	if err := job.SetSession(nil); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	err := watcher.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	polls, _ := server.counts()
	if polls != 0 {
		t.Fatalf("polls = %d, want none", polls)
	}
}
