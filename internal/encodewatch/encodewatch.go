package encodewatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidpress/internal/config"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/services"
	"vidpress/internal/services/backend"
	"vidpress/internal/stage"
)

// Watcher runs the process step: it polls the backend-proxied CDN encode
// state at a fixed interval until the video is ready, the CDN reports
// failure, or the attempt cap is reached, then records completion on the
// backend.
type Watcher struct {
	cfg         *config.Config
	store       *queue.Store
	logger      *slog.Logger
	client      *backend.Client
	interval    time.Duration
	maxAttempts int
}

// NewWatcher constructs the process stage handler using default dependencies.
func NewWatcher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Watcher {
	return NewWatcherWithDependencies(cfg, store, logger, backend.New(cfg), cfg.EncodePollInterval(), cfg.Encode.MaxAttempts)
}

// NewWatcherWithDependencies allows injecting collaborators and poll
// cadence (used in tests).
func NewWatcherWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client *backend.Client, interval time.Duration, maxAttempts int) *Watcher {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "encodewatch"))
	}
	if maxAttempts <= 0 {
		maxAttempts = 150
	}
	return &Watcher{
		cfg:         cfg,
		store:       store,
		logger:      stageLogger,
		client:      client,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

func (w *Watcher) Prepare(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Transcoding", "Waiting for CDN encoding", 0)
	job.ErrorMessage = ""
	return nil
}

func (w *Watcher) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, w.logger)

	session, err := stage.RequireSession(job, "process")
	if err != nil {
		return err
	}

	logger.Info("polling encode status",
		logging.String("cdn_video_id", session.VideoID),
		logging.Int("max_attempts", w.maxAttempts),
	)

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		status, err := w.client.EncodeStatus(ctx, session.VideoID, session.LibraryID)
		if err != nil {
			return err
		}

		switch status.State {
		case backend.EncodeReady:
			logger.Info("encoding ready", logging.Int("attempts", attempt))
			job.SetProgress("Transcoding", "Recording encode completion", 100)
			if err := w.client.FinalizeEncode(ctx, session.VideoID, session.LibraryID); err != nil {
				return err
			}
			return nil
		case backend.EncodeFailed:
			message := strings.TrimSpace(status.Message)
			if message == "" {
				message = "CDN reported encoding failure"
			}
			// CDN failure reason is surfaced verbatim.
			return services.Wrap(services.ErrRemote, "process", "poll encode status", message, nil)
		default:
			w.updateProgress(ctx, job, status.Progress)
		}

		if attempt == w.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrTransient, "process", "poll encode status",
				"Encode polling cancelled", ctx.Err())
		case <-time.After(w.interval):
		}
	}

	return services.Wrap(services.ErrTimeout, "process", "poll encode status",
		fmt.Sprintf("Encoding not ready after %d attempts", w.maxAttempts), nil)
}

func (w *Watcher) updateProgress(ctx context.Context, job *queue.Job, percent float64) {
	if percent < job.ProgressPercent {
		percent = job.ProgressPercent
	}
	job.SetProgress("Transcoding", fmt.Sprintf("Encoding %.0f%%", percent), percent)
	if err := w.store.Update(ctx, job); err != nil {
		logging.WithContext(ctx, w.logger).Warn("failed to persist encode progress", logging.Error(err))
	}
}

// HealthCheck verifies encode polling prerequisites.
func (w *Watcher) HealthCheck(ctx context.Context) stage.Health {
	const name = "encodewatch"
	if w.cfg == nil || strings.TrimSpace(w.cfg.Backend.BaseURL) == "" {
		return stage.Unhealthy(name, "backend base URL not configured")
	}
	if w.maxAttempts <= 0 || w.interval < 0 {
		return stage.Unhealthy(name, "poll cadence not configured")
	}
	return stage.Healthy(name)
}
