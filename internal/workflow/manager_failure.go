package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/services"
)

// handleStageFailure persists the failure outcome. Validation and
// configuration problems park the job in review with per-field detail;
// everything else marks the job failed and resumable at the same step.
func (m *Manager) handleStageFailure(ctx context.Context, step queue.Step, job *queue.Job, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)

	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = string(step) + " failed without error detail"
	}

	resolved := services.FailureStatus(stageErr)
	if resolved == queue.StatusReview {
		reason := message
		if fields, ok := services.AsFieldErrors(stageErr); ok {
			reason = fields.Error()
		}
		job.SetReview(reason)
	} else {
		job.SetFailed(message)
	}

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("resolved_status", string(job.Status)),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)

	if err := m.store.Update(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not persist stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastJob(job)
	m.notifyStageFailure(ctx, step, job, stageErr)
}

func (m *Manager) notifyStageFailure(ctx context.Context, step queue.Step, job *queue.Job, stageErr error) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()

	var err error
	if job.Status == queue.StatusReview {
		err = m.notifier.NotifyReviewRequired(ctx, job.Title, job.ReviewReason)
	} else {
		err = m.notifier.NotifyPublishFailed(ctx, job.Title, string(step), stageErr)
	}
	if err != nil {
		m.logger.Warn("failure notification failed", logging.Error(err))
	}
}

func (m *Manager) onJobStarted(ctx context.Context, job *queue.Job) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyPublishStarted(ctx, job.Title); err != nil {
		m.logger.Warn("start notification failed", logging.Error(err))
	}
}

func (m *Manager) onJobCompleted(ctx context.Context, job *queue.Job) {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()

	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyPublishCompleted(ctx, job.Title, job.Brand); err != nil {
		m.logger.Warn("completion notification failed", logging.Error(err))
	}
}

func (m *Manager) markQueueActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.queueActive {
		m.queueActive = true
		m.queueStart = time.Now()
	}
}

// checkQueueCompletion fires the queue-drained notification once the lane
// has gone idle after doing work.
func (m *Manager) checkQueueCompletion(ctx context.Context) {
	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	processed := m.processed
	failed := m.failed
	duration := time.Since(m.queueStart)
	m.queueActive = false
	m.processed = 0
	m.failed = 0
	m.mu.Unlock()

	if processed == 0 && failed == 0 {
		return
	}
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyQueueCompleted(ctx, processed, failed, duration); err != nil {
		m.logger.Warn("queue completion notification failed", logging.Error(err))
	}
}
