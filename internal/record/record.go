package record

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

// Creator persists the sponsor-video draft on the site backend. This is
// the only step whose remote side effect is not idempotent; once a record
// id is stored the step is never re-run.
type Creator struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	client *backend.Client
}

// NewCreator constructs the create stage handler using default dependencies.
func NewCreator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Creator {
	return NewCreatorWithDependencies(cfg, store, logger, backend.New(cfg))
}

// NewCreatorWithDependencies allows injecting collaborators (used in tests).
func NewCreatorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client *backend.Client) *Creator {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "record"))
	}
	return &Creator{cfg: cfg, store: store, logger: stageLogger, client: client}
}

func (c *Creator) Prepare(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Creating", "Validating draft", 0)
	job.ErrorMessage = ""
	return nil
}

func (c *Creator) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, c.logger)

	if err := ValidateJob(job); err != nil {
		return err
	}

	if job.RecordID != 0 {
		// Already created on a previous run; nothing to redo.
		logger.Info("backend record already exists", logging.Int64("record_id", job.RecordID))
		job.SetProgress("Creating", "Record already created", 100)
		return nil
	}

	logger.Info("creating backend record", logging.String("title", job.Title))
	job.SetProgress("Creating", "Creating backend record", 30)

	id, err := c.client.CreateVideo(ctx, backend.VideoMetadata{
		Title:            job.Title,
		Slug:             job.Slug,
		ShortDescription: job.ShortDescription,
		LongDescription:  job.LongDescription,
		PublishAt:        job.PublishAt,
	})
	if err != nil {
		return err
	}

	job.RecordID = id
	job.SetProgress("Creating", "Backend record created", 100)
	logger.Info("backend record created", logging.Int64("record_id", id))
	return nil
}

// HealthCheck verifies backend connectivity configuration.
func (c *Creator) HealthCheck(ctx context.Context) stage.Health {
	const name = "record"
	if c.cfg == nil || strings.TrimSpace(c.cfg.Backend.BaseURL) == "" {
		return stage.Unhealthy(name, "backend base URL not configured")
	}
	if c.client == nil {
		return stage.Unhealthy(name, "backend client unavailable")
	}
	return stage.Healthy(name)
}

// ValidateJob checks the draft's required fields before any network call.
// Failures carry per-field messages and route to review, never retry.
func ValidateJob(job *queue.Job) error {
	fields := services.FieldErrors{}
	if strings.TrimSpace(job.Title) == "" {
		fields.Add("title", "can't be blank")
	}
	if strings.TrimSpace(job.ShortDescription) == "" {
		fields.Add("short_description", "can't be blank")
	}
	if job.PublishAt.IsZero() {
		fields.Add("created_at", "can't be blank")
	}
	if strings.TrimSpace(job.VideoFile) == "" {
		fields.Add("video_file", "can't be blank")
	} else if _, err := os.Stat(job.VideoFile); err != nil {
		fields.Add("video_file", "is not readable")
	}
	if strings.TrimSpace(job.ThumbnailFile) == "" {
		fields.Add("thumbnail_file", "can't be blank")
	} else if _, err := os.Stat(job.ThumbnailFile); err != nil {
		fields.Add("thumbnail_file", "is not readable")
	}
	if len(fields) == 0 {
		return nil
	}
	return services.ValidationError("create", "validate draft", fields)
}
