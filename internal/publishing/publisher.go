package publishing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/metrics"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/late"
	"postflow/internal/services/youtube"
)

// maxParallelDecisions bounds concurrent dispatches for one record.
const maxParallelDecisions = 4

// Scheduler is the scheduling API surface the publisher needs.
type Scheduler interface {
	CreatePost(ctx context.Context, post late.Post) (string, error)
	ResolveTargets(ctx context.Context, profileID string, configured map[string]string, platforms []string) ([]late.Target, []string, error)
}

// DirectUploader publishes to a platform's own API.
type DirectUploader interface {
	Enabled() bool
	Upload(ctx context.Context, up youtube.Upload) (string, error)
}

// Request is everything needed to publish one record.
type Request struct {
	AssetURL  string
	Caption   string
	Title     string
	Brand     string
	Decisions []queue.ScheduleDecision
	// Progress, when set, receives the full decision list after each decision
	// finishes dispatching. Calls are serialized.
	Progress func([]queue.ScheduleDecision)
}

// Result aggregates the per-decision outcomes.
type Result struct {
	Decisions []queue.ScheduleDecision
	Succeeded int
	Failed    int
	// Permanent is set when at least one failure will not heal on retry.
	Permanent bool
}

// AnySucceeded reports whether at least one decision was accepted.
func (r Result) AnySucceeded() bool { return r.Succeeded > 0 }

// Partial reports that something failed while something else was accepted.
func (r Result) Partial() bool { return r.Succeeded > 0 && r.Failed > 0 }

// Publisher fans decisions out to the configured channels.
type Publisher struct {
	cfg       *config.Config
	scheduler Scheduler
	direct    DirectUploader
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewPublisher wires a publisher. direct may be nil when no platform is
// uploaded directly; its platforms then go through the scheduler.
func NewPublisher(cfg *config.Config, scheduler Scheduler, direct DirectUploader, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		cfg:       cfg,
		scheduler: scheduler,
		direct:    direct,
		metrics:   m,
		logger:    logging.NewComponentLogger(logger, "publisher"),
		now:       time.Now,
	}
}

// SetClock replaces the wall clock.
func (p *Publisher) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Publish dispatches every decision and returns the updated decisions.
// Failures are recorded on their decision; Publish itself never fails.
func (p *Publisher) Publish(ctx context.Context, req Request) Result {
	decisions := make([]queue.ScheduleDecision, len(req.Decisions))
	copy(decisions, req.Decisions)

	var (
		mu        sync.Mutex
		permanent bool
		group     errgroup.Group
	)
	group.SetLimit(maxParallelDecisions)
	for i := range decisions {
		group.Go(func() error {
			mu.Lock()
			decision := cloneDecision(decisions[i])
			mu.Unlock()

			updated, hardFailure := p.dispatch(ctx, req, decision)

			mu.Lock()
			defer mu.Unlock()
			decisions[i] = updated
			permanent = permanent || hardFailure
			if req.Progress != nil {
				snapshot := make([]queue.ScheduleDecision, len(decisions))
				copy(snapshot, decisions)
				req.Progress(snapshot)
			}
			return nil
		})
	}
	_ = group.Wait()

	result := Result{Decisions: decisions, Permanent: permanent}
	for _, decision := range decisions {
		if decision.Succeeded() {
			result.Succeeded++
		}
		if decision.Error != "" {
			result.Failed++
		}
	}
	return result
}

// dispatch sends one decision to every channel that has not accepted it yet.
func (p *Publisher) dispatch(ctx context.Context, req Request, decision queue.ScheduleDecision) (queue.ScheduleDecision, bool) {
	var (
		scheduled []string
		direct    []string
		errs      []string
		permanent bool
	)
	for _, platform := range decision.Platforms {
		if p.isDirect(platform) {
			if !decision.DispatchedTo(queue.ChannelDirect, platform) {
				direct = append(direct, platform)
			}
			continue
		}
		if !decision.DispatchedTo(queue.ChannelScheduler, platform) {
			scheduled = append(scheduled, platform)
		}
	}

	record := func(channel string, platforms []string, postID string, err error) {
		entry := queue.Dispatch{Channel: channel, Platforms: platforms, PostID: postID, At: p.now().UTC()}
		outcome := "success"
		if err != nil {
			entry.Error = err.Error()
			entry.PostID = ""
			errs = append(errs, fmt.Sprintf("%s: %s", strings.Join(platforms, ","), err.Error()))
			permanent = permanent || services.IsPermanent(err)
			outcome = services.Kind(err)
		} else if decision.ExternalPostID == "" {
			decision.ExternalPostID = postID
		}
		decision.Dispatches = append(decision.Dispatches, entry)
		p.metrics.ObserveDispatch(channel, outcome)
	}

	if len(scheduled) > 0 {
		postID, missing, err := p.schedule(ctx, req, decision, scheduled)
		if len(missing) > 0 {
			record(queue.ChannelScheduler, missing, "", services.Wrap(services.ErrConfiguration, "publishing", "resolve accounts", "no connected account", nil))
		}
		if accepted := subtract(scheduled, missing); len(accepted) > 0 {
			record(queue.ChannelScheduler, accepted, postID, err)
		}
	}
	for _, platform := range direct {
		videoID, err := p.upload(ctx, req, decision)
		record(queue.ChannelDirect, []string{platform}, videoID, err)
	}

	if len(errs) > 0 {
		decision.Error = strings.Join(errs, "; ")
		logging.WarnWithContext(p.logger, "decision dispatch failed", "dispatch_failed",
			logging.Brand(req.Brand),
			logging.String("slot", decision.ScheduledAt.Format(time.RFC3339)),
			logging.String(logging.FieldErrorHint, decision.Error),
		)
	} else if decision.Succeeded() {
		decision.Error = ""
	}
	return decision, permanent
}

func (p *Publisher) schedule(ctx context.Context, req Request, decision queue.ScheduleDecision, platforms []string) (string, []string, error) {
	brand, _ := p.cfg.Brand(req.Brand)
	targets, missing, err := p.scheduler.ResolveTargets(ctx, brand.LateProfileID, brand.Accounts, platforms)
	if err != nil {
		return "", nil, err
	}
	if len(targets) == 0 {
		return "", missing, nil
	}
	postID, err := p.scheduler.CreatePost(ctx, late.Post{
		Content:      req.Caption,
		Title:        req.Title,
		MediaURL:     req.AssetURL,
		Targets:      targets,
		ScheduledFor: p.futureOrZero(decision.ScheduledAt),
		Timezone:     decision.Timezone,
	})
	return postID, missing, err
}

func (p *Publisher) upload(ctx context.Context, req Request, decision queue.ScheduleDecision) (string, error) {
	brand, _ := p.cfg.Brand(req.Brand)
	return p.direct.Upload(ctx, youtube.Upload{
		AssetURL:    req.AssetURL,
		Title:       req.Title,
		Description: req.Caption,
		Tags:        brand.Hashtags,
		CategoryID:  brand.Category,
		PublishAt:   p.futureOrZero(decision.ScheduledAt),
	})
}

// futureOrZero drops schedule times that already passed so the channel
// publishes immediately instead of rejecting a past timestamp.
func (p *Publisher) futureOrZero(at time.Time) time.Time {
	if at.After(p.now()) {
		return at
	}
	return time.Time{}
}

func (p *Publisher) isDirect(platform string) bool {
	if p.direct == nil || !p.direct.Enabled() {
		return false
	}
	entry, ok := p.cfg.Platforms[platform]
	return ok && entry.Direct
}

func subtract(all, remove []string) []string {
	if len(remove) == 0 {
		return all
	}
	skip := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		skip[r] = struct{}{}
	}
	var out []string
	for _, a := range all {
		if _, ok := skip[a]; !ok {
			out = append(out, a)
		}
	}
	return out
}

func cloneDecision(d queue.ScheduleDecision) queue.ScheduleDecision {
	d.Platforms = append([]string(nil), d.Platforms...)
	d.Dispatches = append([]queue.Dispatch(nil), d.Dispatches...)
	return d
}
