package upload_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"vidpress/internal/config"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/services"
	"vidpress/internal/services/backend"
	"vidpress/internal/services/streamcdn"
	"vidpress/internal/testsupport"
	"vidpress/internal/upload"
)

type fakeCDN struct {
	sessions []*queue.UploadSession
	err      error
}

func (f *fakeCDN) Upload(ctx context.Context, session *queue.UploadSession, path string, progress streamcdn.ProgressFunc) error {
	f.sessions = append(f.sessions, session)
	if f.err != nil {
		return f.err
	}
	if progress != nil {
		progress(50, 512, 1024)
		progress(100, 1024, 1024)
	}
	return nil
}

type fixture struct {
	cfg       *config.Config
	store     *queue.Store
	job       *queue.Job
	client    *backend.Client
	initCalls *atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var initCalls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"video_id":        "fresh-guid",
			"library_id":      3,
			"upload_endpoint": "https://cdn.test/upload",
			"signature":       "fresh-sig",
			"expires":         time.Now().Add(time.Hour).Unix(),
		})
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(server.URL))
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "Session Reuse")
	video := filepath.Join(t.TempDir(), "video.mp4")
	testsupport.WriteFile(t, video, 1024)
	job.VideoFile = video
	job.Status = queue.StatusUploading
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	return &fixture{
		cfg:       cfg,
		store:     store,
		job:       job,
		client:    backend.New(cfg),
		initCalls: &initCalls,
	}
}

func (f *fixture) handler(t *testing.T, cdn upload.ChunkUploader) *upload.Handler {
	t.Helper()
	return upload.NewHandlerWithDependencies(f.cfg, f.store, logging.NewNop(), f.client, cdn)
}

func (f *fixture) storeSession(t *testing.T, expiresIn time.Duration) {
	t.Helper()
	session := &queue.UploadSession{
		VideoID:        "stored-guid",
		LibraryID:      7,
		UploadEndpoint: "https://cdn.test/upload",
		Signature:      "stored-sig",
		Expires:        time.Now().Add(expiresIn).Unix(),
	}
	if err := f.job.SetSession(session); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if err := f.store.Update(context.Background(), f.job); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestReusesSessionOutsideReuseWindow(t *testing.T) {
	f := newFixture(t)
	f.storeSession(t, 2*time.Hour)

	cdn := &fakeCDN{}
	handler := f.handler(t, cdn)

	// Two executions simulate a retry; neither may mint a new session.
	for i := 0; i < 2; i++ {
		if err := handler.Execute(context.Background(), f.job); err != nil {
			t.Fatalf("Execute #%d: %v", i+1, err)
		}
	}
	if f.initCalls.Load() != 0 {
		t.Fatalf("init calls = %d, want 0", f.initCalls.Load())
	}
	for _, used := range cdn.sessions {
		if used.VideoID != "stored-guid" {
			t.Fatalf("used session %q, want stored", used.VideoID)
		}
	}
}

func TestMintsSessionInsideReuseWindow(t *testing.T) {
	f := newFixture(t)
	f.storeSession(t, 30*time.Second) // inside the default 60s window

	cdn := &fakeCDN{}
	handler := f.handler(t, cdn)

	if err := handler.Execute(context.Background(), f.job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.initCalls.Load() != 1 {
		t.Fatalf("init calls = %d, want 1", f.initCalls.Load())
	}
	if len(cdn.sessions) != 1 || cdn.sessions[0].VideoID != "fresh-guid" {
		t.Fatalf("sessions = %+v", cdn.sessions)
	}
	if f.job.CDNVideoID != "fresh-guid" || f.job.CDNLibraryID != 3 {
		t.Fatalf("job CDN ids = %s/%d", f.job.CDNVideoID, f.job.CDNLibraryID)
	}

	fetched, err := f.store.GetByID(context.Background(), f.job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	session, err := fetched.Session()
	if err != nil || session == nil || session.VideoID != "fresh-guid" {
		t.Fatalf("persisted session = %+v, err %v", session, err)
	}
}

func TestMintsSessionWhenNoneStored(t *testing.T) {
	f := newFixture(t)

	cdn := &fakeCDN{}
	if err := f.handler(t, cdn).Execute(context.Background(), f.job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.initCalls.Load() != 1 {
		t.Fatalf("init calls = %d, want 1", f.initCalls.Load())
	}
}

func TestStallErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.storeSession(t, 2*time.Hour)

	cdn := &fakeCDN{err: services.Wrap(services.ErrStalled, "upload", "put chunk", "No upload progress", nil)}
	err := f.handler(t, cdn).Execute(context.Background(), f.job)
	if !errors.Is(err, services.ErrStalled) {
		t.Fatalf("err = %v, want stall", err)
	}
	if services.FailureStatus(err) != queue.StatusFailed {
		t.Fatalf("failure status = %s", services.FailureStatus(err))
	}
}
