package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/metrics"
	"postflow/internal/notifications"
	"postflow/internal/queue"
	"postflow/internal/scheduling"
	"postflow/internal/services"
	"postflow/internal/services/heygen"
	"postflow/internal/services/submagic"
	"postflow/internal/stage"
)

// SynthesisCallbacks applies video provider notifications.
type SynthesisCallbacks interface {
	OnCallback(ctx context.Context, cb heygen.Callback) (*queue.Item, error)
}

// CaptionCallbacks applies caption provider notifications.
type CaptionCallbacks interface {
	OnCallback(ctx context.Context, cb submagic.Callback) (*queue.Item, error)
}

// Manager advances workflow records through the registered stage handlers.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	metrics  *metrics.Metrics
	claimer  scheduling.SlotClaimer

	handlers  map[queue.Status]stage.Handler
	stages    []stage.Handler
	synthesis SynthesisCallbacks
	captions  CaptionCallbacks
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier sets the notification sink.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithMetrics records transitions on m.
func WithMetrics(metrics *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithSlotClaimer lets the manager release slot claims of records it fails.
func WithSlotClaimer(c scheduling.SlotClaimer) ManagerOption {
	return func(m *Manager) { m.claimer = c }
}

// WithCallbacks registers the handlers for provider webhooks.
func WithCallbacks(synthesis SynthesisCallbacks, captions CaptionCallbacks) ManagerOption {
	return func(m *Manager) {
		m.synthesis = synthesis
		m.captions = captions
	}
}

// NewManager constructs a manager. Each handler is registered for every
// status it reports through Handles; a later handler replaces an earlier one.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, handlers []stage.Handler, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow-manager"),
		notifier: notifications.NewService(cfg),
		handlers: make(map[queue.Status]stage.Handler),
	}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		m.stages = append(m.stages, h)
		for _, status := range h.Handles() {
			m.handlers[status] = h
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the record store.
func (m *Manager) Store() *queue.Store { return m.store }

// Advance loads record id and runs its handlers until it stops moving.
// Terminal records are returned unchanged.
func (m *Manager) Advance(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.drive(ctx, item, false)
}

// Recheck is Advance with provider polling enabled for records that are
// waiting on a callback.
func (m *Manager) Recheck(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.drive(ctx, item, true)
}

// Started hands a freshly created record to its first stage.
func (m *Manager) Started(ctx context.Context, item *queue.Item) (*queue.Item, error) {
	if item == nil {
		return nil, queue.ErrNotFound
	}
	return m.drive(ctx, item, false)
}

// SynthesisCallback applies a video provider notification and continues the
// record from wherever it lands. Unknown jobs yield services.ErrNotFound.
func (m *Manager) SynthesisCallback(ctx context.Context, cb heygen.Callback) (*queue.Item, error) {
	if m.synthesis == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "synthesis callback", "no synthesis stage registered", nil)
	}
	before, _ := m.store.FindBySynthesisJob(ctx, cb.JobID)
	item, err := m.synthesis.OnCallback(ctx, cb)
	return m.afterCallback(ctx, "synthesis", before, item, err)
}

// CaptionCallback applies a caption provider notification and continues the
// record from wherever it lands. Unknown projects yield services.ErrNotFound.
func (m *Manager) CaptionCallback(ctx context.Context, cb submagic.Callback) (*queue.Item, error) {
	if m.captions == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "caption callback", "no caption stage registered", nil)
	}
	before, _ := m.store.FindByCaptionJob(ctx, cb.ProjectID)
	item, err := m.captions.OnCallback(ctx, cb)
	return m.afterCallback(ctx, "captions", before, item, err)
}

func (m *Manager) afterCallback(ctx context.Context, stageName string, before, item *queue.Item, err error) (*queue.Item, error) {
	if err != nil {
		if before == nil || errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		return before, m.handleStageError(ctx, stageName, before, err)
	}
	if before != nil {
		m.observe(ctx, before.Status, item)
	}
	return m.drive(ctx, item, false)
}

func (m *Manager) load(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("workflow %d: %w", id, queue.ErrNotFound)
	}
	return item, nil
}

// drive runs handlers from the record's current status until the status stops
// changing. Only the first step polls when recheck is set; later steps act on
// a status the record just entered.
func (m *Manager) drive(ctx context.Context, item *queue.Item, recheck bool) (*queue.Item, error) {
	for range len(queue.AllStatuses()) {
		if item.Status.IsTerminal() {
			return item, nil
		}
		handler, ok := m.handlers[item.Status]
		if !ok {
			return item, services.Wrap(services.ErrConfiguration, "workflow", "dispatch",
				"no stage registered for status "+string(item.Status), nil)
		}

		stageCtx := services.WithWorkflow(ctx, item.ID, item.Brand, handler.Name())
		started := time.Now()
		updated, err := handler.Advance(stageCtx, item, recheck)
		if err != nil {
			return item, m.handleStageError(stageCtx, handler.Name(), item, err)
		}
		if updated == nil {
			return item, nil
		}
		if updated.Status == item.Status {
			return updated, nil
		}
		logging.WithContext(stageCtx, m.logger).Info("workflow advanced",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("from", string(item.Status)),
			logging.String("to", string(updated.Status)),
			logging.Duration("stage_duration", time.Since(started)),
		)
		m.observe(ctx, item.Status, updated)
		item = updated
		recheck = false
	}
	return item, nil
}

// observe records a status change and reacts to terminal outcomes.
func (m *Manager) observe(ctx context.Context, from queue.Status, item *queue.Item) {
	if item == nil || item.Status == from {
		return
	}
	m.metrics.ObserveTransition(string(from), string(item.Status))
	switch item.Status {
	case queue.StatusCompleted:
		if item.ContentID != 0 {
			if err := m.store.MarkContentProcessed(ctx, item.ContentID); err != nil {
				m.logger.Warn("mark content processed",
					logging.WorkflowID(item.ID),
					logging.Int64("content_id", item.ContentID),
					logging.Error(err),
				)
			}
		}
		m.notifyCompleted(ctx, item)
	case queue.StatusFailed:
		m.notifyFailed(ctx, item)
	}
}
