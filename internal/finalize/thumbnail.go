package finalize

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"vidpress/internal/config"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/services"
	"vidpress/internal/services/backend"
	"vidpress/internal/stage"
)

// Thumbnailer runs the thumbnail step: it pushes the thumbnail image to
// the backend scoped to the CDN video.
type Thumbnailer struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	client *backend.Client
}

// NewThumbnailer constructs the thumbnail stage handler using default dependencies.
func NewThumbnailer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Thumbnailer {
	return NewThumbnailerWithDependencies(cfg, store, logger, backend.New(cfg))
}

// NewThumbnailerWithDependencies allows injecting collaborators (used in tests).
func NewThumbnailerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client *backend.Client) *Thumbnailer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "thumbnail"))
	}
	return &Thumbnailer{cfg: cfg, store: store, logger: stageLogger, client: client}
}

func (t *Thumbnailer) Prepare(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Thumbnailing", "Uploading thumbnail", 0)
	job.ErrorMessage = ""
	return nil
}

func (t *Thumbnailer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)

	session, err := stage.RequireSession(job, "thumbnail")
	if err != nil {
		return err
	}
	if strings.TrimSpace(job.ThumbnailFile) == "" {
		return services.Wrap(services.ErrValidation, "thumbnail", "validate inputs",
			"No thumbnail file on the job", nil)
	}
	if _, err := os.Stat(job.ThumbnailFile); err != nil {
		return services.Wrap(services.ErrValidation, "thumbnail", "validate inputs",
			"Thumbnail file is missing or unreadable", err)
	}

	logger.Info("uploading thumbnail",
		logging.String("thumbnail_file", job.ThumbnailFile),
		logging.String("cdn_video_id", session.VideoID),
	)
	job.SetProgress("Thumbnailing", "Uploading thumbnail", 40)

	url, err := t.client.UploadThumbnail(ctx, job.ThumbnailFile, session.VideoID, session.LibraryID)
	if err != nil {
		return err
	}

	job.ThumbnailURL = url
	job.SetProgress("Thumbnailing", "Thumbnail uploaded", 100)
	logger.Info("thumbnail uploaded", logging.String("thumbnail_url", url))
	return nil
}

// HealthCheck verifies thumbnail upload prerequisites.
func (t *Thumbnailer) HealthCheck(ctx context.Context) stage.Health {
	const name = "thumbnail"
	if t.cfg == nil || strings.TrimSpace(t.cfg.Backend.BaseURL) == "" {
		return stage.Unhealthy(name, "backend base URL not configured")
	}
	if t.client == nil {
		return stage.Unhealthy(name, "backend client unavailable")
	}
	return stage.Healthy(name)
}
