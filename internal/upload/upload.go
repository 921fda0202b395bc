package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"vidpress/internal/config"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/services"
	"vidpress/internal/services/backend"
	"vidpress/internal/services/streamcdn"
	"vidpress/internal/stage"
)

// ChunkUploader moves the video file to the CDN for a signed session.
type ChunkUploader interface {
	Upload(ctx context.Context, session *queue.UploadSession, path string, progress streamcdn.ProgressFunc) error
}

// Handler runs the upload step: it mints or reuses a signed CDN session,
// then streams the video file chunk by chunk.
type Handler struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	client *backend.Client
	cdn    ChunkUploader
}

// NewHandler constructs the upload stage handler using default dependencies.
func NewHandler(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Handler {
	uploader := streamcdn.NewUploader(cfg.ChunkSize(), cfg.StallTimeout())
	return NewHandlerWithDependencies(cfg, store, logger, backend.New(cfg), uploader)
}

// NewHandlerWithDependencies allows injecting collaborators (used in tests).
func NewHandlerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client *backend.Client, cdn ChunkUploader) *Handler {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "upload"))
	}
	return &Handler{cfg: cfg, store: store, logger: stageLogger, client: client, cdn: cdn}
}

func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Uploading", "Preparing video upload", 0)
	job.ErrorMessage = ""
	return nil
}

func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, h.logger)

	info, err := os.Stat(job.VideoFile)
	if err != nil {
		return services.Wrap(services.ErrValidation, "upload", "stat video file",
			"Video file is missing or unreadable", err)
	}
	job.TotalBytes = info.Size()

	session, err := h.ensureSession(ctx, job, logger)
	if err != nil {
		return err
	}

	logger.Info("starting resumable upload",
		logging.String("video_file", job.VideoFile),
		logging.String("size", humanize.Bytes(uint64(info.Size()))),
		logging.String("cdn_video_id", session.VideoID),
	)

	// Persist progress at whole-percent boundaries only; the callback
	// fires for every buffer the transport reads.
	lastPersisted := -1.0
	err = h.cdn.Upload(ctx, session, job.VideoFile, func(pct float64, uploaded, total int64) {
		if pct-lastPersisted < 1 && uploaded != total {
			return
		}
		lastPersisted = pct
		h.updateProgress(ctx, job, pct, uploaded, total)
	})
	if err != nil {
		return err
	}

	job.SetProgress("Uploading", "Upload complete", 100)
	job.ProgressBytes = job.TotalBytes
	logger.Info("upload completed", logging.String("cdn_video_id", session.VideoID))
	return nil
}

// ensureSession reuses the stored session when it is not about to expire,
// otherwise mints a fresh one. Reuse avoids CDN session churn on retry.
func (h *Handler) ensureSession(ctx context.Context, job *queue.Job, logger *slog.Logger) (*queue.UploadSession, error) {
	session, err := job.Session()
	if err != nil {
		logger.Warn("discarding corrupt stored session", logging.Error(err))
		session = nil
	}

	if session != nil && !session.ExpiresWithin(h.cfg.SessionReuseWindow()) {
		logger.Info("reusing stored upload session", logging.String("cdn_video_id", session.VideoID))
		return session, nil
	}

	logger.Info("requesting fresh upload session")
	session, err = h.client.InitUpload(ctx)
	if err != nil {
		return nil, err
	}
	if err := job.SetSession(session); err != nil {
		return nil, services.Wrap(services.ErrTransient, "upload", "persist session",
			"Failed to store upload session", err)
	}
	job.CDNVideoID = session.VideoID
	job.CDNLibraryID = session.LibraryID
	if err := h.store.Update(ctx, job); err != nil {
		return nil, services.Wrap(services.ErrTransient, "upload", "persist session",
			"Failed to persist upload session", err)
	}
	return session, nil
}

func (h *Handler) updateProgress(ctx context.Context, job *queue.Job, pct float64, uploaded, total int64) {
	job.SetProgress("Uploading",
		fmt.Sprintf("Uploaded %s of %s", humanize.Bytes(uint64(uploaded)), humanize.Bytes(uint64(total))),
		pct)
	job.ProgressBytes = uploaded
	job.TotalBytes = total
	if err := h.store.Update(ctx, job); err != nil {
		logging.WithContext(ctx, h.logger).Warn("failed to persist upload progress", logging.Error(err))
	}
}

// HealthCheck verifies upload prerequisites.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	const name = "upload"
	if h.cfg == nil || strings.TrimSpace(h.cfg.Backend.BaseURL) == "" {
		return stage.Unhealthy(name, "backend base URL not configured")
	}
	if h.cdn == nil {
		return stage.Unhealthy(name, "cdn uploader unavailable")
	}
	return stage.Healthy(name)
}
