package daemon

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"postflow/internal/captions"
	"postflow/internal/config"
	"postflow/internal/metrics"
	"postflow/internal/queue"
	"postflow/internal/selector"
	"postflow/internal/services"
	"postflow/internal/services/heygen"
	"postflow/internal/services/submagic"
	"postflow/internal/stage"
	"postflow/internal/synthesis"
	"postflow/internal/testsupport"
	"postflow/internal/workflow"
)

type videoProvider struct {
	mu      sync.Mutex
	submits int
}

func (p *videoProvider) Submit(context.Context, heygen.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits++
	return fmt.Sprintf("job-%d", p.submits), nil
}

func (p *videoProvider) Status(context.Context, string) (services.JobStatus, error) {
	return services.JobStatus{State: services.JobPending}, nil
}

type captionProvider struct {
	mu        sync.Mutex
	submitErr error
}

func (p *captionProvider) Submit(context.Context, submagic.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return "project-1", nil
}

func (p *captionProvider) Fetch(context.Context, string) (services.JobStatus, error) {
	return services.JobStatus{State: services.JobPending}, nil
}

// holdHandler accepts records in relocating and leaves them there, failing
// with err when set.
type holdHandler struct {
	mu  sync.Mutex
	err error
}

func (*holdHandler) Name() string            { return "hold" }
func (*holdHandler) Handles() []queue.Status { return []queue.Status{queue.StatusRelocating} }
func (h *holdHandler) Advance(_ context.Context, item *queue.Item, _ bool) (*queue.Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return item, nil
}
func (*holdHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy("hold") }

func (h *holdHandler) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	captions *captionProvider
	hold     *holdHandler
	metrics  *metrics.Metrics
	daemon   *Daemon
	handler  http.Handler
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	h := &harness{cfg: cfg, store: store, captions: &captionProvider{}, hold: &holdHandler{}, metrics: metrics.New()}

	synth := synthesis.NewStage(store, cfg, &videoProvider{}, nil)
	capt := captions.NewStage(store, cfg, h.captions, nil)
	manager := workflow.NewManager(cfg, store, nil, []stage.Handler{synth, capt, h.hold},
		workflow.WithCallbacks(synth, capt),
		workflow.WithMetrics(h.metrics),
	)
	d, err := New(cfg, nil, Deps{
		Store:    store,
		Manager:  manager,
		Monitor:  workflow.NewMonitor(manager, nil),
		Selector: selector.New(store, cfg, nil),
		Metrics:  h.metrics,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	h.daemon = d
	h.handler = d.Handler()
	return h
}

func (h *harness) do(t *testing.T, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) cronHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + h.cfg.Cron.Secret}
}

func (h *harness) webhook(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, http.MethodPost, path, body, map[string]string{
		signatureHeader: sign(h.cfg.Webhooks.Secret, []byte(body)),
	})
}

// startWorkflow seeds content and starts it through the cron endpoint.
func (h *harness) startWorkflow(t *testing.T, title string) *queue.Item {
	t.Helper()
	if _, err := h.store.AddContent(context.Background(), newContent(title)); err != nil {
		t.Fatalf("add content: %v", err)
	}
	rec := h.do(t, http.MethodPost, "/api/cron/start?brand="+testsupport.TestBrand, "", h.cronHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Started  bool `json:"started"`
		Workflow struct {
			ID int64 `json:"id"`
		} `json:"workflow"`
	}
	decode(t, rec, &resp)
	if !resp.Started {
		t.Fatalf("expected a started workflow, got %s", rec.Body.String())
	}
	return h.get(t, resp.Workflow.ID)
}

func (h *harness) get(t *testing.T, id int64) *queue.Item {
	t.Helper()
	item, err := h.store.GetByID(context.Background(), id)
	if err != nil || item == nil {
		t.Fatalf("get workflow %d: %v", id, err)
	}
	return item
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func newContent(title string) queue.NewContent {
	return queue.NewContent{Brand: testsupport.TestBrand, Title: title, Body: title + " body", QualityScore: 10}
}
