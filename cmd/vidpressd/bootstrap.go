package main

import (
	"context"
	"log/slog"

	"vidpress/internal/config"
	"vidpress/internal/encodewatch"
	"vidpress/internal/finalize"
	"vidpress/internal/logging"
	"vidpress/internal/preflight"
	"vidpress/internal/queue"
	"vidpress/internal/record"
	"vidpress/internal/stage"
	"vidpress/internal/upload"
)

type stageRegistrar interface {
	RegisterStage(queue.Step, stage.Handler)
}

// registerStages wires the five publish steps onto the workflow manager
// in ladder order.
func registerStages(reg stageRegistrar, cfg *config.Config, store *queue.Store, logger *slog.Logger) {
	if reg == nil || cfg == nil {
		return
	}

	reg.RegisterStage(queue.StepCreate, record.NewCreator(cfg, store, logger))
	reg.RegisterStage(queue.StepUpload, upload.NewHandler(cfg, store, logger))
	reg.RegisterStage(queue.StepProcess, encodewatch.NewWatcher(cfg, store, logger))
	reg.RegisterStage(queue.StepThumbnail, finalize.NewThumbnailer(cfg, store, logger))
	reg.RegisterStage(queue.StepUpdate, finalize.NewUpdater(cfg, store, logger))
}

// reportPreflight logs check results at startup. Failures are logged but
// do not stop the daemon; a broken backend heals without a restart.
func reportPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
}
