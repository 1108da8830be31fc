package publishing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/scheduling"
	"postflow/internal/services"
	"postflow/internal/stage"
	"postflow/internal/textutil"
)

const stageName = "publishing"

// Stage publishes records in posting and settles them as completed or failed.
type Stage struct {
	store     *queue.Store
	cfg       *config.Config
	publisher *Publisher
	claimer   scheduling.SlotClaimer
	logger    *slog.Logger
}

// NewStage wires the publishing stage.
func NewStage(store *queue.Store, cfg *config.Config, publisher *Publisher, claimer scheduling.SlotClaimer, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{
		store:     store,
		cfg:       cfg,
		publisher: publisher,
		claimer:   claimer,
		logger:    logging.NewComponentLogger(logger, stageName),
	}
}

func (s *Stage) Name() string { return stageName }

func (s *Stage) Handles() []queue.Status {
	return []queue.Status{queue.StatusPosting}
}

// Advance dispatches the record's decisions, persisting each result as it
// lands. Any accepted decision completes the record; failed decisions stay on
// it with their error. When nothing was accepted the record fails only if a
// failure is permanent; otherwise it stays in posting for the sweep.
func (s *Stage) Advance(ctx context.Context, item *queue.Item, _ bool) (*queue.Item, error) {
	if item == nil || item.Status != queue.StatusPosting {
		return item, nil
	}
	current, err := s.store.GetByID(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, queue.ErrNotFound
	}
	if current.Status != queue.StatusPosting {
		return current, nil
	}
	item = current

	if len(item.Schedule) == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "publish", "record has no schedule decisions", nil)
	}
	if err := stage.RequireField(stageName, "final asset url", item.FinalAssetURL); err != nil {
		return nil, err
	}
	brand, ok := s.cfg.Brand(item.Brand)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "lookup brand", "unknown brand "+item.Brand, nil)
	}

	var progressErr error
	result := s.publisher.Publish(ctx, Request{
		AssetURL:  item.FinalAssetURL,
		Caption:   textutil.BuildCaption(item.Caption, brand.Hashtags),
		Title:     textutil.CleanTitle(item.Title),
		Brand:     item.Brand,
		Decisions: item.Schedule,
		Progress: func(decisions []queue.ScheduleDecision) {
			if progressErr != nil {
				return
			}
			_, progressErr = s.store.Annotate(ctx, item.ID, queue.StatusPosting, queue.Patch{}.WithSchedule(decisions))
		},
	})
	if progressErr != nil {
		return stage.Settle(ctx, s.store, item.ID, nil, progressErr)
	}

	switch {
	case result.AnySucceeded():
		patch := queue.Patch{LastError: queue.Set("")}
		if result.Failed > 0 {
			partial := services.Wrap(services.ErrPartialDispatch, stageName, "publish",
				fmt.Sprintf("%d of %d decisions failed", result.Failed, len(result.Decisions)), nil)
			patch.LastError = queue.Set(partial.Error())
		}
		updated, err := s.store.Transition(ctx, item.ID, queue.StatusPosting, queue.StatusCompleted, patch.WithSchedule(result.Decisions))
		return stage.Settle(ctx, s.store, item.ID, updated, err)
	case result.Permanent:
		reason := "publish failed: " + firstError(result.Decisions)
		updated, err := s.store.Transition(ctx, item.ID, queue.StatusPosting, queue.StatusFailed,
			queue.Patch{LastError: queue.Set(reason)}.WithSchedule(result.Decisions))
		updated, err = stage.Settle(ctx, s.store, item.ID, updated, err)
		if err != nil {
			return nil, err
		}
		if updated.Status == queue.StatusFailed {
			s.release(ctx, updated)
		}
		return updated, nil
	default:
		return nil, services.Wrap(services.ErrTransient, stageName, "publish",
			"every decision failed: "+firstError(result.Decisions), nil)
	}
}

func (s *Stage) release(ctx context.Context, item *queue.Item) {
	if s.claimer == nil {
		return
	}
	if err := scheduling.ReleaseDecisions(ctx, s.claimer, item.Brand, item.Schedule, item.SlotOwner()); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("release slots of failed record",
			logging.WorkflowID(item.ID),
			logging.Error(err),
		)
	}
}

func firstError(decisions []queue.ScheduleDecision) string {
	for _, decision := range decisions {
		if decision.Error != "" {
			if idx := strings.Index(decision.Error, "; "); idx > 0 {
				return decision.Error[:idx]
			}
			return decision.Error
		}
	}
	return "unknown error"
}

// HealthCheck verifies the scheduling API is configured.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.publisher == nil || s.publisher.scheduler == nil {
		return stage.Unhealthy(stageName, "scheduler not configured")
	}
	if s.cfg.Late.APIKey == "" {
		return stage.MissingSetting(stageName, "late.api_key")
	}
	return stage.Healthy(stageName)
}
