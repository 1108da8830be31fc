package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/heygen"
	"postflow/internal/stage"
)

const stageName = "synthesis"

// Provider is the synthesis API surface the stage needs.
type Provider interface {
	Submit(ctx context.Context, req heygen.Request) (string, error)
	Status(ctx context.Context, jobID string) (services.JobStatus, error)
}

// Stage submits scripts and applies synthesis results.
type Stage struct {
	store    *queue.Store
	cfg      *config.Config
	provider Provider
	logger   *slog.Logger
}

// NewStage wires the synthesis stage.
func NewStage(store *queue.Store, cfg *config.Config, provider Provider, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{
		store:    store,
		cfg:      cfg,
		provider: provider,
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

func (s *Stage) Name() string { return stageName }

func (s *Stage) Handles() []queue.Status {
	return []queue.Status{queue.StatusQueued, queue.StatusVideoProcessing}
}

// Advance submits queued records. Records waiting on the provider are only
// polled when recheck is set; otherwise the callback is awaited.
func (s *Stage) Advance(ctx context.Context, item *queue.Item, recheck bool) (*queue.Item, error) {
	if item == nil {
		return nil, nil
	}
	switch item.Status {
	case queue.StatusQueued:
		return s.submit(ctx, item)
	case queue.StatusVideoProcessing:
		if !recheck {
			return item, nil
		}
		return s.poll(ctx, item)
	default:
		return item, nil
	}
}

func (s *Stage) submit(ctx context.Context, item *queue.Item) (*queue.Item, error) {
	release, claimed, err := stage.ClaimSubmit(ctx, s.store, stageName, item.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lease so a caller holding an old copy never submits twice.
	current, err := s.store.GetByID(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, queue.ErrNotFound
	}
	if current.Status != queue.StatusQueued {
		return current, nil
	}
	if !claimed {
		s.logger.Debug("synthesis submit already in progress", logging.WorkflowID(item.ID))
		return current, nil
	}
	item = current
	jobID := item.SynthesisJobID
	if jobID == "" {
		if err := stage.RequireField(stageName, "script", item.Script); err != nil {
			return nil, err
		}
		presenter, ok := s.cfg.HeyGen.Presenters[item.Presenter]
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, stageName, "resolve presenter",
				fmt.Sprintf("presenter %q has no [heygen.presenters] entry", item.Presenter), nil)
		}
		submitted, err := s.provider.Submit(ctx, heygen.Request{
			Script:      item.Script,
			AvatarID:    presenter.AvatarID,
			VoiceID:     presenter.VoiceID,
			Title:       item.Title,
			CallbackID:  item.SlotOwner(),
			CallbackURL: s.callbackURL(),
		})
		if err != nil {
			return nil, err
		}
		jobID = submitted
		s.logger.Info("synthesis submitted",
			logging.WorkflowID(item.ID),
			logging.String("job_id", jobID),
			logging.String("presenter", item.Presenter),
		)
	}

	updated, err := s.store.Transition(ctx, item.ID, queue.StatusQueued, queue.StatusVideoProcessing,
		queue.Patch{SynthesisJobID: queue.Set(jobID), LastError: queue.Set("")})
	updated, err = stage.Settle(ctx, s.store, item.ID, updated, err)
	if err != nil {
		return nil, err
	}
	if updated.SynthesisJobID != jobID {
		logging.WarnWithContext(s.logger, "synthesis job orphaned by concurrent submit", "synthesis_orphan",
			logging.WorkflowID(item.ID),
			logging.String("job_id", jobID),
			logging.String(logging.FieldImpact, "provider renders a video nobody collects"),
		)
	}
	return updated, nil
}

// poll re-checks the provider. A record in video_processing without a job id
// has lost its job; ErrNotFound sends it back to queued through the sweep.
func (s *Stage) poll(ctx context.Context, item *queue.Item) (*queue.Item, error) {
	if item.SynthesisJobID == "" {
		return nil, services.Wrap(services.ErrNotFound, stageName, "poll", "record has no synthesis job id", nil)
	}
	status, err := s.provider.Status(ctx, item.SynthesisJobID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, item, status)
}

// OnCallback applies a provider notification. Duplicate deliveries are no-ops.
func (s *Stage) OnCallback(ctx context.Context, cb heygen.Callback) (*queue.Item, error) {
	item, err := s.store.FindBySynthesisJob(ctx, cb.JobID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, stageName, "callback", "unknown job "+cb.JobID, nil)
	}
	return s.apply(ctx, item, cb.Status)
}

func (s *Stage) apply(ctx context.Context, item *queue.Item, status services.JobStatus) (*queue.Item, error) {
	if item.Status != queue.StatusVideoProcessing {
		return item, nil
	}
	var (
		updated *queue.Item
		err     error
	)
	switch status.State {
	case services.JobCompleted:
		if strings.TrimSpace(status.URL) == "" {
			return nil, services.Wrap(services.ErrValidation, stageName, "apply result", "completed job without a video url", nil)
		}
		updated, err = s.store.Transition(ctx, item.ID, queue.StatusVideoProcessing, queue.StatusCaptionProcessing,
			queue.Patch{SynthesisVideoURL: queue.Set(status.URL)})
	case services.JobFailed:
		reason := "synthesis failed"
		if status.Error != "" {
			reason += ": " + status.Error
		}
		updated, err = s.store.Transition(ctx, item.ID, queue.StatusVideoProcessing, queue.StatusFailed,
			queue.Patch{LastError: queue.Set(reason)})
	default:
		return item, nil
	}
	return stage.Settle(ctx, s.store, item.ID, updated, err)
}

func (s *Stage) callbackURL() string {
	if s.cfg.Webhooks.PublicBaseURL == "" {
		return ""
	}
	return s.cfg.Webhooks.PublicBaseURL + "/webhooks/synthesis"
}

// HealthCheck verifies credentials and presenters are configured.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	switch {
	case s.provider == nil:
		return stage.Unhealthy(stageName, "provider not configured")
	case s.cfg.HeyGen.APIKey == "":
		return stage.MissingSetting(stageName, "heygen.api_key")
	case len(s.cfg.HeyGen.Presenters) == 0:
		return stage.Unhealthy(stageName, "no heygen presenters configured")
	default:
		return stage.Healthy(stageName)
	}
}
