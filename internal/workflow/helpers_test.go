package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"postflow/internal/captions"
	"postflow/internal/config"
	"postflow/internal/notifications"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/heygen"
	"postflow/internal/services/submagic"
	"postflow/internal/stage"
	"postflow/internal/synthesis"
	"postflow/internal/testsupport"
	"postflow/internal/workflow"
)

type videoProvider struct {
	mu        sync.Mutex
	submits   int
	submitErr error
	status    services.JobStatus
}

func (p *videoProvider) Submit(context.Context, heygen.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	p.submits++
	return fmt.Sprintf("job-%d", p.submits), nil
}

func (p *videoProvider) Status(context.Context, string) (services.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, nil
}

type captionProvider struct {
	mu       sync.Mutex
	fetches  int
	status   services.JobStatus
	fetchErr error
}

func (p *captionProvider) Submit(context.Context, submagic.Request) (string, error) {
	return "project-1", nil
}

func (p *captionProvider) Fetch(context.Context, string) (services.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	return p.status, p.fetchErr
}

func (p *captionProvider) set(status services.JobStatus, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
	p.fetchErr = err
}

// stepHandler moves records from one status to the next, or holds them when
// hold is set.
type stepHandler struct {
	store *queue.Store
	from  queue.Status
	to    queue.Status
	patch queue.Patch
	hold  bool
}

func (h *stepHandler) Name() string            { return "step-" + string(h.from) }
func (h *stepHandler) Handles() []queue.Status { return []queue.Status{h.from} }

func (h *stepHandler) Advance(ctx context.Context, item *queue.Item, _ bool) (*queue.Item, error) {
	if h.hold {
		return item, nil
	}
	updated, err := h.store.Transition(ctx, item.ID, h.from, h.to, h.patch)
	return stage.Settle(ctx, h.store, item.ID, updated, err)
}

func (h *stepHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy(h.Name()) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) has(event notifications.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

type env struct {
	cfg      *config.Config
	store    *queue.Store
	clock    *testsupport.Clock
	video    *videoProvider
	captions *captionProvider
	notifier *recordingNotifier
	manager  *workflow.Manager
	monitor  *workflow.Monitor
}

// newEnv wires the real synthesis and caption stages. Relocating holds unless
// tailSteps is set, in which case relocating, scheduling, and posting each step
// straight through to completed.
func newEnv(t *testing.T, tailSteps bool, opts ...testsupport.ConfigOption) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(time.Date(2026, 5, 12, 14, 0, 0, 0, time.UTC))
	store.SetClock(clock.Now)

	e := &env{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		video:    &videoProvider{},
		captions: &captionProvider{},
		notifier: &recordingNotifier{},
	}
	synth := synthesis.NewStage(store, cfg, e.video, nil)
	capt := captions.NewStage(store, cfg, e.captions, nil)
	handlers := []stage.Handler{
		synth,
		capt,
		&stepHandler{store: store, from: queue.StatusRelocating, to: queue.StatusScheduling, hold: !tailSteps,
			patch: queue.Patch{FinalAssetURL: queue.Set("https://cdn.postflow.test/final.mp4")}},
		&stepHandler{store: store, from: queue.StatusScheduling, to: queue.StatusPosting},
		&stepHandler{store: store, from: queue.StatusPosting, to: queue.StatusCompleted},
	}
	e.manager = workflow.NewManager(cfg, store, nil, handlers,
		workflow.WithNotifier(e.notifier),
		workflow.WithCallbacks(synth, capt),
	)
	e.monitor = workflow.NewMonitor(e.manager, nil)
	return e
}

func (e *env) get(t *testing.T, id int64) *queue.Item {
	t.Helper()
	item, err := e.store.GetByID(context.Background(), id)
	if err != nil || item == nil {
		t.Fatalf("get workflow %d: %v", id, err)
	}
	return item
}
