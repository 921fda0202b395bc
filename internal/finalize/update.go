package finalize

import (
	"context"
	"log/slog"
	"strings"

	"vidpress/internal/config"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/services/backend"
	"vidpress/internal/stage"
)

// Updater runs the update step: it patches the backend record with final
// metadata plus the CDN identifiers, making the video publicly visible.
type Updater struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	client *backend.Client
}

// NewUpdater constructs the update stage handler using default dependencies.
func NewUpdater(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Updater {
	return NewUpdaterWithDependencies(cfg, store, logger, backend.New(cfg))
}

// NewUpdaterWithDependencies allows injecting collaborators (used in tests).
func NewUpdaterWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client *backend.Client) *Updater {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "update"))
	}
	return &Updater{cfg: cfg, store: store, logger: stageLogger, client: client}
}

func (u *Updater) Prepare(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Updating", "Finalizing backend record", 0)
	job.ErrorMessage = ""
	return nil
}

func (u *Updater) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, u.logger)

	if err := stage.RequireRecord(job, "update"); err != nil {
		return err
	}
	session, err := stage.RequireSession(job, "update")
	if err != nil {
		return err
	}

	logger.Info("updating backend record",
		logging.Int64("record_id", job.RecordID),
		logging.String("cdn_video_id", session.VideoID),
	)
	job.SetProgress("Updating", "Patching backend record", 50)

	err = u.client.UpdateVideo(ctx, job.RecordID, backend.VideoMetadata{
		Title:            job.Title,
		Slug:             job.Slug,
		ShortDescription: job.ShortDescription,
		LongDescription:  job.LongDescription,
		PublishAt:        job.PublishAt,
	}, session.VideoID, session.LibraryID, job.ThumbnailURL)
	if err != nil {
		return err
	}

	job.SetProgress("Updating", "Record published", 100)
	logger.Info("backend record published", logging.Int64("record_id", job.RecordID))
	return nil
}

// HealthCheck verifies update prerequisites.
func (u *Updater) HealthCheck(ctx context.Context) stage.Health {
	const name = "update"
	if u.cfg == nil || strings.TrimSpace(u.cfg.Backend.BaseURL) == "" {
		return stage.Unhealthy(name, "backend base URL not configured")
	}
	if u.client == nil {
		return stage.Unhealthy(name, "backend client unavailable")
	}
	return stage.Healthy(name)
}
