package workflow

import (
	"context"

	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Health      queue.HealthSummary
	StageHealth map[string]stage.Health
}

// Status aggregates record counts and stage readiness. It also refreshes the
// per-status gauges.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	health, err := m.store.Health(ctx)
	if err != nil {
		m.logger.Warn("failed to read workflow counts", logging.Error(err))
	}
	counts := make(map[string]int, len(health.ByStatus))
	for status, count := range health.ByStatus {
		counts[string(status)] = count
	}
	m.metrics.SetWorkflowCounts(counts)

	stages := make(map[string]stage.Health, len(m.stages))
	for _, h := range m.stages {
		stages[h.Name()] = h.HealthCheck(ctx)
	}
	return StatusSummary{Health: health, StageHealth: stages}
}
