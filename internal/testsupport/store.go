package testsupport

import (
	"context"
	"testing"
	"time"

	"vidpress/internal/config"
	"vidpress/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a minimal valid publish job for tests.
func NewJob(t testing.TB, store *queue.Store, title string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), &queue.Job{
		Brand:            "main",
		Title:            title,
		Slug:             "test-" + title,
		ShortDescription: "desc",
		PublishAt:        time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		VideoFile:        "/tmp/video.mp4",
		ThumbnailFile:    "/tmp/thumb.jpg",
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
