package workflow

import (
	"context"
	"errors"

	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/scheduling"
	"postflow/internal/services"
)

// handleStageError routes a handler error by class and returns it unchanged.
// Permanent errors fail the record; everything else is recorded on
// last_error and left for the sweep.
func (m *Manager) handleStageError(ctx context.Context, stageName string, item *queue.Item, stageErr error) error {
	if errors.Is(stageErr, context.Canceled) {
		return stageErr
	}
	logger := logging.WithContext(ctx, m.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldStage, stageName),
		logging.Status(item.Status),
		logging.String("error_kind", services.Kind(stageErr)),
		logging.Error(stageErr),
	}

	if services.IsRetryable(stageErr) {
		logging.WarnWithContext(logger, "stage will be retried", "stage_retry",
			append(attrs, logging.String(logging.FieldImpact, "record keeps its status until the next sweep"))...)
		if _, err := m.store.Annotate(context.WithoutCancel(ctx), item.ID, item.Status, queue.Patch{LastError: queue.Set(stageErr.Error())}); err != nil &&
			!errors.Is(err, queue.ErrStaleTransition) {
			logger.Warn("persist stage error", logging.Error(err))
		}
		return stageErr
	}

	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)
	failed, err := m.store.ForceFail(context.WithoutCancel(ctx), item.ID, item.Status, stageErr.Error())
	if err != nil {
		if !errors.Is(err, queue.ErrStaleTransition) {
			logger.Error("persist stage failure", logging.Error(err))
		}
		return stageErr
	}
	m.releaseSlots(ctx, failed)
	m.observe(ctx, item.Status, failed)
	return stageErr
}

// releaseSlots frees the slot claims of a record that will never publish.
func (m *Manager) releaseSlots(ctx context.Context, item *queue.Item) {
	if m.claimer == nil || item == nil || len(item.Schedule) == 0 {
		return
	}
	if err := scheduling.ReleaseDecisions(context.WithoutCancel(ctx), m.claimer, item.Brand, item.Schedule, item.SlotOwner()); err != nil {
		m.logger.Warn("release slots of failed record",
			logging.WorkflowID(item.ID),
			logging.Error(err),
		)
	}
}
