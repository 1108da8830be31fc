package scheduling

import (
	"context"
	"log/slog"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
)

// Stage plans slots for relocated records and persists the decisions while
// moving them to posting.
type Stage struct {
	store   *queue.Store
	cfg     *config.Config
	planner *Planner
	claimer SlotClaimer
	logger  *slog.Logger
}

// NewStage wires the scheduling stage.
func NewStage(store *queue.Store, cfg *config.Config, planner *Planner, claimer SlotClaimer, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{
		store:   store,
		cfg:     cfg,
		planner: planner,
		claimer: claimer,
		logger:  logging.NewComponentLogger(logger, "scheduling"),
	}
}

func (s *Stage) Name() string { return "scheduling" }

func (s *Stage) Handles() []queue.Status {
	return []queue.Status{queue.StatusScheduling}
}

// Advance plans the record and commits the plan in one guarded transition.
// When the commit fails, slots claimed here are released unless the record's
// committed schedule holds them.
func (s *Stage) Advance(ctx context.Context, item *queue.Item, _ bool) (*queue.Item, error) {
	if item == nil || item.Status != queue.StatusScheduling {
		return item, nil
	}
	brand, ok := s.cfg.Brand(item.Brand)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, s.Name(), "lookup brand", "unknown brand "+item.Brand, nil)
	}
	if err := stage.RequireField(s.Name(), "final asset url", item.FinalAssetURL); err != nil {
		return nil, err
	}

	plan, err := s.planner.Plan(ctx, PlanRequest{
		Brand:      item.Brand,
		Platforms:  brand.Platforms,
		VideoIndex: item.VideoIndex,
		Owner:      item.SlotOwner(),
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Transition(ctx, item.ID, queue.StatusScheduling, queue.StatusPosting, queue.Patch{}.WithSchedule(plan.Decisions))
	if err != nil {
		s.releaseUncommitted(ctx, item, plan.Claimed)
	}
	updated, err = stage.Settle(ctx, s.store, item.ID, updated, err)
	if err != nil {
		return nil, err
	}
	if updated.Status == queue.StatusPosting && len(plan.Claimed) > 0 {
		s.logger.Info("schedule committed",
			logging.WorkflowID(item.ID),
			logging.Brand(item.Brand),
			logging.Int("decisions", len(plan.Decisions)),
			logging.String("first_slot", plan.Decisions[0].ScheduledAt.Format("2006-01-02 15:04 MST")),
		)
	}
	return updated, nil
}

// releaseUncommitted gives back keys claimed by a plan that was not committed.
// Claims are owned per record, so a concurrent invocation for the same record
// may have committed a schedule that relies on one of these keys; those stay.
// If the record cannot be reloaded nothing is released.
func (s *Stage) releaseUncommitted(ctx context.Context, item *queue.Item, keys []SlotKey) {
	if len(keys) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	current, err := s.store.GetByID(ctx, item.ID)
	if err != nil {
		logging.WarnWithContext(s.logger, "slots kept after failed commit", "slot_release_skipped",
			logging.WorkflowID(item.ID),
			logging.Int("slots", len(keys)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "slot claims are pruned after their day passes"),
			logging.String(logging.FieldImpact, "slots stay unavailable to other records"),
		)
		return
	}
	committed := make(map[SlotKey]struct{})
	if current != nil {
		for _, d := range current.Schedule {
			committed[SlotKey{Brand: item.Brand, Day: d.Day, Hour: d.Hour}] = struct{}{}
		}
	}
	for _, key := range keys {
		if _, held := committed[key]; held {
			continue
		}
		if err := s.claimer.Release(ctx, key, item.SlotOwner()); err != nil {
			s.logger.Warn("release slot after failed commit",
				logging.WorkflowID(item.ID),
				logging.String("slot", key.String()),
				logging.Error(err),
			)
		}
	}
}

// HealthCheck reports whether any brand can be scheduled.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if len(s.cfg.Brands) == 0 {
		return stage.Unhealthy(s.Name(), "no brands configured")
	}
	if s.claimer == nil {
		return stage.Unhealthy(s.Name(), "slot claimer not configured")
	}
	return stage.Healthy(s.Name())
}
