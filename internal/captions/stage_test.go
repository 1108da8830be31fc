package captions_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"postflow/internal/captions"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/submagic"
	"postflow/internal/testsupport"
)

type fakeProvider struct {
	submits atomic.Int32
	fetches atomic.Int32
	lastReq submagic.Request
	status  services.JobStatus
	// during runs inside Submit, before the project id is returned.
	during func()
}

func (f *fakeProvider) Submit(_ context.Context, req submagic.Request) (string, error) {
	f.submits.Add(1)
	f.lastReq = req
	if during := f.during; during != nil {
		f.during = nil
		during()
	}
	return "proj-1", nil
}

func (f *fakeProvider) Fetch(context.Context, string) (services.JobStatus, error) {
	f.fetches.Add(1)
	return f.status, nil
}

func captionReady(t *testing.T) (*captions.Stage, *queue.Store, *fakeProvider, *queue.Item) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	provider := &fakeProvider{}
	st := captions.NewStage(store, cfg, provider, nil)

	item := testsupport.MustCreate(t, store, "Tom &amp; Jerry's Garage")
	item = testsupport.MustAdvanceTo(t, store, item, queue.StatusVideoProcessing)
	item, err := store.Transition(context.Background(), item.ID, queue.StatusVideoProcessing, queue.StatusCaptionProcessing,
		queue.Patch{SynthesisVideoURL: queue.Set("https://heygen.test/v.mp4")})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	return st, store, provider, item
}

func TestAdvanceSubmitsProjectOnce(t *testing.T) {
	st, _, provider, item := captionReady(t)
	ctx := context.Background()

	first, err := st.Advance(ctx, item, false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if first.CaptionJobID != "proj-1" || first.Status != queue.StatusCaptionProcessing {
		t.Fatalf("unexpected record: %+v", first)
	}
	if _, err := st.Advance(ctx, item, false); err != nil {
		t.Fatalf("second advance: %v", err)
	}
	if got := provider.submits.Load(); got != 1 {
		t.Fatalf("expected one submit, got %d", got)
	}
	if provider.lastReq.Title != "Tom & Jerry's Garage" {
		t.Fatalf("expected cleaned title, got %q", provider.lastReq.Title)
	}
	if provider.lastReq.WebhookURL != "https://postflow.test/webhooks/captions" {
		t.Fatalf("unexpected webhook url %q", provider.lastReq.WebhookURL)
	}
	if provider.fetches.Load() != 0 {
		t.Fatal("expected no poll without recheck")
	}
}

func TestCallbackReadyMovesToRelocating(t *testing.T) {
	st, _, _, item := captionReady(t)
	ctx := context.Background()
	if _, err := st.Advance(ctx, item, false); err != nil {
		t.Fatalf("advance: %v", err)
	}
	cb := submagic.Callback{ProjectID: "proj-1", Status: services.JobStatus{State: services.JobCompleted, URL: "https://submagic.test/s.mp4"}}
	updated, err := st.OnCallback(ctx, cb)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if updated.Status != queue.StatusRelocating || updated.StyledURL != "https://submagic.test/s.mp4" {
		t.Fatalf("unexpected record: %+v", updated)
	}
	again, err := st.OnCallback(ctx, cb)
	if err != nil || again.Status != queue.StatusRelocating {
		t.Fatalf("duplicate callback should be a no-op, got %v %v", again, err)
	}
}

func TestCallbackWithoutURLFetchesResult(t *testing.T) {
	st, _, provider, item := captionReady(t)
	ctx := context.Background()
	if _, err := st.Advance(ctx, item, false); err != nil {
		t.Fatalf("advance: %v", err)
	}
	provider.status = services.JobStatus{State: services.JobCompleted, URL: "https://submagic.test/fetched.mp4"}
	updated, err := st.OnCallback(ctx, submagic.Callback{ProjectID: "proj-1", Status: services.JobStatus{State: services.JobCompleted}})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if provider.fetches.Load() != 1 || updated.StyledURL != "https://submagic.test/fetched.mp4" {
		t.Fatalf("expected fetched url, got %+v (fetches=%d)", updated, provider.fetches.Load())
	}
}

func TestRecheckPendingThenFailed(t *testing.T) {
	st, _, provider, item := captionReady(t)
	ctx := context.Background()
	item, err := st.Advance(ctx, item, false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}

	provider.status = services.JobStatus{State: services.JobPending}
	pending, err := st.Advance(ctx, item, true)
	if err != nil || pending.Status != queue.StatusCaptionProcessing {
		t.Fatalf("expected pending record unchanged, got %v %v", pending, err)
	}

	provider.status = services.JobStatus{State: services.JobFailed, Error: "render error"}
	failed, err := st.Advance(ctx, item, true)
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if failed.Status != queue.StatusFailed || failed.LastError != "captioning failed: render error" {
		t.Fatalf("unexpected record: %+v", failed)
	}
}

func TestCallbackUnknownProject(t *testing.T) {
	st, _, _, _ := captionReady(t)
	_, err := st.OnCallback(context.Background(), submagic.Callback{ProjectID: "nope"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitRequiresVideoURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	st := captions.NewStage(store, cfg, &fakeProvider{}, nil)
	item := testsupport.MustAdvanceTo(t, store, testsupport.MustCreate(t, store, "No video"), queue.StatusCaptionProcessing)
	if _, err := st.Advance(context.Background(), item, false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAdvanceDuringInFlightSubmitDoesNotResubmit(t *testing.T) {
	st, store, provider, item := captionReady(t)
	ctx := context.Background()

	var concurrent *queue.Item
	provider.during = func() {
		got, err := st.Advance(ctx, item, false)
		if err != nil {
			t.Errorf("concurrent advance: %v", err)
			return
		}
		concurrent = got
	}

	first, err := st.Advance(ctx, item, false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := provider.submits.Load(); got != 1 {
		t.Fatalf("expected one submit, got %d", got)
	}
	if concurrent == nil || concurrent.CaptionJobID != "" {
		t.Fatalf("expected concurrent advance to leave the record untouched, got %+v", concurrent)
	}
	if first.CaptionJobID != "proj-1" {
		t.Fatalf("unexpected project id %q", first.CaptionJobID)
	}

	// The lease is released, so a later advance is not blocked.
	if _, err := store.Annotate(ctx, item.ID, queue.StatusCaptionProcessing, queue.Patch{CaptionJobID: queue.Set("")}); err != nil {
		t.Fatalf("clear project: %v", err)
	}
	if _, err := st.Advance(ctx, item, false); err != nil {
		t.Fatalf("advance after release: %v", err)
	}
	if got := provider.submits.Load(); got != 2 {
		t.Fatalf("expected resubmit once the lease is free, got %d", got)
	}
}
