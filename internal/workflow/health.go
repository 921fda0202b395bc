package workflow

import (
	"context"

	"vidpress/internal/stage"
)

// StageHealth reports each registered stage's readiness in step order.
func (m *Manager) StageHealth(ctx context.Context) []stage.Health {
	m.mu.RLock()
	order := make([]pipelineStage, 0, len(m.stageOrder))
	for _, step := range m.stageOrder {
		order = append(order, m.stages[step.EntryStatus()])
	}
	m.mu.RUnlock()

	results := make([]stage.Health, 0, len(order))
	for _, ps := range order {
		if ps.handler == nil {
			results = append(results, stage.Unhealthy(string(ps.step), "handler not registered"))
			continue
		}
		results = append(results, ps.handler.HealthCheck(ctx))
	}
	return results
}

// Healthy reports whether every registered stage is ready.
func (m *Manager) Healthy(ctx context.Context) bool {
	for _, health := range m.StageHealth(ctx) {
		if !health.Ready {
			return false
		}
	}
	return true
}
