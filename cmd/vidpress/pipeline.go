package main

import (
	"log/slog"
	"path/filepath"

	"vidpress/internal/config"
	"vidpress/internal/encodewatch"
	"vidpress/internal/finalize"
	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/record"
	"vidpress/internal/upload"
	"vidpress/internal/workflow"
)

// registerPipelineStages wires the five publish steps onto a workflow
// manager in ladder order.
func registerPipelineStages(manager *workflow.Manager, cfg *config.Config, store *queue.Store, logger *slog.Logger) {
	manager.RegisterStage(queue.StepCreate, record.NewCreator(cfg, store, logger))
	manager.RegisterStage(queue.StepUpload, upload.NewHandler(cfg, store, logger))
	manager.RegisterStage(queue.StepProcess, encodewatch.NewWatcher(cfg, store, logger))
	manager.RegisterStage(queue.StepThumbnail, finalize.NewThumbnailer(cfg, store, logger))
	manager.RegisterStage(queue.StepUpdate, finalize.NewUpdater(cfg, store, logger))
}

// newCLILogger logs to the log file only, keeping stdout free for
// progress output during inline runs.
func newCLILogger(cfg *config.Config) *slog.Logger {
	if cfg == nil || cfg.Paths.LogDir == "" {
		return logging.NewNop()
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "vidpress.log")},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}
