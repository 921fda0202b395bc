package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vidpress/internal/config"
	"vidpress/internal/encodewatch"
	"vidpress/internal/finalize"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/record"
	"vidpress/internal/services"
	"vidpress/internal/services/backend"
	"vidpress/internal/services/streamcdn"
	"vidpress/internal/testsupport"
	"vidpress/internal/upload"
	"vidpress/internal/workflow"
)

func newPipeline(t *testing.T, site *fakeSite, notifier *recordingNotifier) (*workflow.Manager, *queue.Store, *config.Config) {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(site.URL()))
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	client := backend.New(cfg)

	manager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)
	manager.RegisterStage(queue.StepCreate, record.NewCreatorWithDependencies(cfg, store, logger, client))
	manager.RegisterStage(queue.StepUpload, upload.NewHandlerWithDependencies(
		cfg, store, logger, client, streamcdn.NewUploader(4096, time.Minute)))
	manager.RegisterStage(queue.StepProcess, encodewatch.NewWatcherWithDependencies(
		cfg, store, logger, client, time.Millisecond, 150))
	manager.RegisterStage(queue.StepThumbnail, finalize.NewThumbnailerWithDependencies(cfg, store, logger, client))
	manager.RegisterStage(queue.StepUpdate, finalize.NewUpdaterWithDependencies(cfg, store, logger, client))
	return manager, store, cfg
}

func enqueueDraft(t *testing.T, store *queue.Store, title string) *queue.Job {
	t.Helper()
	dir := t.TempDir()
	video := filepath.Join(dir, "video.mp4")
	thumb := filepath.Join(dir, "thumb.jpg")
	testsupport.WriteFile(t, video, 10_000)
	testsupport.WriteFile(t, thumb, 256)

	job := testsupport.NewJob(t, store, title)
	job.VideoFile = video
	job.ThumbnailFile = thumb
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return job
}

func TestRunJobHappyPath(t *testing.T) {
	site := newFakeSite(t, []map[string]any{
		{"state": "processing", "encode_progress": 30},
		{"state": "processing", "encode_progress": 70},
		{"state": "ready", "encode_progress": 100},
	})
	notifier := &recordingNotifier{}
	manager, store, _ := newPipeline(t, site, notifier)
	job := enqueueDraft(t, store, "Spring Launch")

	final, err := manager.RunJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s", final.Status)
	}
	for step, state := range final.StepStates() {
		if state != queue.StepDone {
			t.Fatalf("step %s = %s, want done", step, state)
		}
	}

	counts := site.snapshot()
	if counts.create != 1 || counts.init != 1 || counts.finalize != 1 || counts.thumbnail != 1 || counts.update != 1 {
		t.Fatalf("call counts = %+v", counts)
	}
	if counts.uploaded != 10_000 {
		t.Fatalf("uploaded = %d bytes", counts.uploaded)
	}
	if counts.body["cdn_video_id"] != "guid-e2e" || counts.body["cdn_library_id"] != float64(11) {
		t.Fatalf("final PATCH body = %v", counts.body)
	}
	if counts.body["thumbnail_url"] != "https://cdn.test/e2e.jpg" {
		t.Fatalf("final PATCH body = %v", counts.body)
	}

	if len(notifier.started) != 1 || len(notifier.completed) != 1 {
		t.Fatalf("notifications: started %v completed %v", notifier.started, notifier.completed)
	}
}

func TestRunJobProcessFailureHaltsAndResumesForwardOnly(t *testing.T) {
	site := newFakeSite(t, []map[string]any{
		{"state": "processing", "encode_progress": 20},
		{"state": "processing", "encode_progress": 40},
		{"state": "failed", "message": "encode farm rejected source"},
	})
	notifier := &recordingNotifier{}
	manager, store, _ := newPipeline(t, site, notifier)
	job := enqueueDraft(t, store, "Doomed Encode")

	final, err := manager.RunJob(context.Background(), job.ID)
	if err == nil {
		t.Fatal("expected process failure")
	}
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("err = %v", err)
	}
	if final.Status != queue.StatusFailed {
		t.Fatalf("status = %s", final.Status)
	}
	if final.FailedFrom != queue.StatusTranscoding {
		t.Fatalf("failed from = %s", final.FailedFrom)
	}

	states := final.StepStates()
	if states[queue.StepCreate] != queue.StepDone || states[queue.StepUpload] != queue.StepDone {
		t.Fatalf("earlier steps = %v", states)
	}
	if states[queue.StepProcess] != queue.StepFailed {
		t.Fatalf("process = %s", states[queue.StepProcess])
	}
	if states[queue.StepThumbnail] != queue.StepPending || states[queue.StepUpdate] != queue.StepPending {
		t.Fatalf("later steps = %v", states)
	}

	beforeRetry := site.snapshot()
	if beforeRetry.polls != 3 {
		t.Fatalf("polls = %d, want failure on attempt 3", beforeRetry.polls)
	}

	// Make the next poll succeed immediately, then retry. The saga must
	// resume at the process step without re-creating or re-uploading.
	site.mu.Lock()
	site.encodeScript = []map[string]any{{"state": "ready", "encode_progress": 100}}
	site.encodePolls = 0
	site.mu.Unlock()

	retried, err := store.RetryFailed(context.Background(), job.ID)
	if err != nil || retried != 1 {
		t.Fatalf("RetryFailed = %d, %v", retried, err)
	}

	final, err = manager.RunJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("RunJob (retry): %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s", final.Status)
	}

	counts := site.snapshot()
	if counts.create != 1 {
		t.Fatalf("create calls = %d, want no re-create on retry", counts.create)
	}
	if counts.uploaded != beforeRetry.uploaded {
		t.Fatalf("uploaded grew from %d to %d on retry", beforeRetry.uploaded, counts.uploaded)
	}
	if len(notifier.failed) != 1 {
		t.Fatalf("failed notifications = %v", notifier.failed)
	}
}

func TestRunJobRoutesValidationToReview(t *testing.T) {
	site := newFakeSite(t, []map[string]any{{"state": "ready"}})
	notifier := &recordingNotifier{}
	manager, store, _ := newPipeline(t, site, notifier)

	job := testsupport.NewJob(t, store, "Missing Files")
	job.VideoFile = "/nonexistent/video.mp4"
	job.ThumbnailFile = "/nonexistent/thumb.jpg"
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	final, err := manager.RunJob(context.Background(), job.ID)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if final.Status != queue.StatusReview {
		t.Fatalf("status = %s, want review", final.Status)
	}
	if !final.NeedsReview || final.ReviewReason == "" {
		t.Fatalf("review fields = %+v", final)
	}
	if site.snapshot().create != 0 {
		t.Fatal("validation failure must precede any network call")
	}
	if len(notifier.reviews) != 1 {
		t.Fatalf("review notifications = %v", notifier.reviews)
	}
}

func TestBackgroundProcessingDrivesJobToCompletion(t *testing.T) {
	site := newFakeSite(t, []map[string]any{
		{"state": "processing", "encode_progress": 50},
		{"state": "ready", "encode_progress": 100},
	})
	notifier := &recordingNotifier{}
	manager, store, _ := newPipeline(t, site, notifier)
	job := enqueueDraft(t, store, "Background Run")

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	deadline := time.Now().Add(15 * time.Second)
	for {
		current, err := store.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if current.Status == queue.StatusCompleted {
			break
		}
		if current.Status == queue.StatusFailed || current.Status == queue.StatusReview {
			t.Fatalf("job ended in %s: %s", current.Status, current.ErrorMessage)
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for completion; status = %s", current.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunJobRewindsInterruptedProcessingStatus(t *testing.T) {
	site := newFakeSite(t, []map[string]any{{"state": "ready", "encode_progress": 100}})
	notifier := &recordingNotifier{}
	manager, store, _ := newPipeline(t, site, notifier)
	job := enqueueDraft(t, store, "Interrupted")

	// Simulate a crash mid-create: status stuck at the processing status.
	job.Status = queue.StatusCreating
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	final, err := manager.RunJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("status = %s", final.Status)
	}
}
