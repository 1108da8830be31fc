package workflow

import (
	"context"
	"errors"

	"postflow/internal/logging"
	"postflow/internal/notifications"
	"postflow/internal/queue"
)

func (m *Manager) notifyCompleted(ctx context.Context, item *queue.Item) {
	event := notifications.EventWorkflowCompleted
	payload := notifications.Payload{
		"title": item.Title,
		"brand": item.Brand,
		"slots": len(item.Schedule),
	}
	if item.LastError != "" {
		event = notifications.EventPartialDispatch
		payload["error"] = item.LastError
	}
	m.publish(ctx, event, payload)
}

func (m *Manager) notifyFailed(ctx context.Context, item *queue.Item) {
	m.publish(ctx, notifications.EventWorkflowFailed, notifications.Payload{
		"title": item.Title,
		"brand": item.Brand,
		"stage": string(item.FailedStage),
		"error": item.LastError,
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("shutting down, notification skipped", logging.String("event", string(event)))
			return
		}
		m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
