package workflow

import (
	"context"
	"fmt"

	"vidpress/internal/queue"
)

// RunJob drives a single job synchronously until it reaches a terminal
// status. It powers the CLI's inline publish mode; the background run
// loop must not be active on the same store.
func (m *Manager) RunJob(ctx context.Context, jobID int64) (*queue.Job, error) {
	m.mu.RLock()
	configured := len(m.stages) > 0
	m.mu.RUnlock()
	if !configured {
		return nil, fmt.Errorf("workflow stages not configured")
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		job, err := m.store.GetByID(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("load job %d: %w", jobID, err)
		}
		if job == nil {
			return nil, fmt.Errorf("job %d not found", jobID)
		}
		if job.IsTerminal() {
			m.checkQueueCompletion(ctx)
			return job, nil
		}

		// A job stuck at a processing status (interrupted run) rewinds to
		// the owning step's entry status before resuming.
		if step, ok := queue.StepForProcessing(job.Status); ok {
			job.Status = step.EntryStatus()
			if err := m.store.Update(ctx, job); err != nil {
				return nil, fmt.Errorf("rewind job %d: %w", jobID, err)
			}
			continue
		}

		if _, ok := m.stageFor(job.Status); !ok {
			return nil, fmt.Errorf("no stage configured for status %s", job.Status)
		}
		if err := m.processJob(ctx, job); err != nil {
			// Failure state is already persisted; surface the terminal job.
			final, loadErr := m.store.GetByID(ctx, jobID)
			if loadErr != nil {
				return nil, err
			}
			m.checkQueueCompletion(ctx)
			return final, err
		}
	}
}
