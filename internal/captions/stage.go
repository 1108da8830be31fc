package captions

import (
	"context"
	"errors"
	"log/slog"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/submagic"
	"postflow/internal/stage"
	"postflow/internal/textutil"
)

const stageName = "captions"

// Provider is the caption API surface the stage needs.
type Provider interface {
	Submit(ctx context.Context, req submagic.Request) (string, error)
	Fetch(ctx context.Context, projectID string) (services.JobStatus, error)
}

// Stage submits caption projects and applies their results.
type Stage struct {
	store    *queue.Store
	cfg      *config.Config
	provider Provider
	logger   *slog.Logger
}

// NewStage wires the caption stage.
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
	return []queue.Status{queue.StatusCaptionProcessing}
}

// Advance submits a project for records without one. Records with a project
// are polled only on recheck.
func (s *Stage) Advance(ctx context.Context, item *queue.Item, recheck bool) (*queue.Item, error) {
	if item == nil || item.Status != queue.StatusCaptionProcessing {
		return item, nil
	}
	current, err := s.store.GetByID(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, queue.ErrNotFound
	}
	if current.Status != queue.StatusCaptionProcessing {
		return current, nil
	}
	if current.CaptionJobID == "" {
		return s.submit(ctx, current)
	}
	if !recheck {
		return current, nil
	}
	return s.FetchResult(ctx, current)
}

func (s *Stage) submit(ctx context.Context, item *queue.Item) (*queue.Item, error) {
	release, claimed, err := stage.ClaimSubmit(ctx, s.store, stageName, item.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.store.GetByID(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, queue.ErrNotFound
	}
	if current.Status != queue.StatusCaptionProcessing || current.CaptionJobID != "" {
		return current, nil
	}
	if !claimed {
		s.logger.Debug("caption submit already in progress", logging.WorkflowID(item.ID))
		return current, nil
	}
	item = current

	if err := stage.RequireField(stageName, "synthesis video url", item.SynthesisVideoURL); err != nil {
		return nil, err
	}
	projectID, err := s.provider.Submit(ctx, submagic.Request{
		Title:      textutil.CleanTitle(item.Title),
		VideoURL:   item.SynthesisVideoURL,
		WebhookURL: s.callbackURL(),
	})
	if err != nil {
		return nil, err
	}
	updated, err := s.store.ClaimCaptionJob(ctx, item.ID, projectID)
	if errors.Is(err, queue.ErrStaleTransition) {
		logging.WarnWithContext(s.logger, "caption project orphaned by concurrent submit", "caption_orphan",
			logging.WorkflowID(item.ID),
			logging.String("project_id", projectID),
		)
	}
	updated, err = stage.Settle(ctx, s.store, item.ID, updated, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("caption project submitted",
		logging.WorkflowID(item.ID),
		logging.String("project_id", updated.CaptionJobID),
	)
	return updated, nil
}

// FetchResult polls the provider for the record's project and applies it.
func (s *Stage) FetchResult(ctx context.Context, item *queue.Item) (*queue.Item, error) {
	if item.CaptionJobID == "" {
		return nil, services.Wrap(services.ErrNotFound, stageName, "fetch", "record has no caption project", nil)
	}
	status, err := s.provider.Fetch(ctx, item.CaptionJobID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, item, status)
}

// OnCallback applies a webhook notification. A completed notice without a
// download URL is confirmed by fetching the project.
func (s *Stage) OnCallback(ctx context.Context, cb submagic.Callback) (*queue.Item, error) {
	item, err := s.store.FindByCaptionJob(ctx, cb.ProjectID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, stageName, "callback", "unknown project "+cb.ProjectID, nil)
	}
	if item.Status != queue.StatusCaptionProcessing {
		return item, nil
	}
	if cb.Status.State == services.JobCompleted && cb.Status.URL == "" {
		return s.FetchResult(ctx, item)
	}
	return s.apply(ctx, item, cb.Status)
}

func (s *Stage) apply(ctx context.Context, item *queue.Item, status services.JobStatus) (*queue.Item, error) {
	if item.Status != queue.StatusCaptionProcessing {
		return item, nil
	}
	var (
		updated *queue.Item
		err     error
	)
	switch {
	case status.Ready():
		updated, err = s.store.Transition(ctx, item.ID, queue.StatusCaptionProcessing, queue.StatusRelocating,
			queue.Patch{StyledURL: queue.Set(status.URL), LastError: queue.Set("")})
	case status.State == services.JobFailed:
		reason := "captioning failed"
		if status.Error != "" {
			reason += ": " + status.Error
		}
		updated, err = s.store.Transition(ctx, item.ID, queue.StatusCaptionProcessing, queue.StatusFailed,
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
	return s.cfg.Webhooks.PublicBaseURL + "/webhooks/captions"
}

// HealthCheck verifies the provider is configured.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	switch {
	case s.provider == nil:
		return stage.Unhealthy(stageName, "provider not configured")
	case s.cfg.Submagic.APIKey == "":
		return stage.MissingSetting(stageName, "submagic.api_key")
	default:
		return stage.Healthy(stageName)
	}
}
