package synthesis_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/heygen"
	"postflow/internal/synthesis"
	"postflow/internal/testsupport"
)

type fakeProvider struct {
	mu       sync.Mutex
	submits  []heygen.Request
	statuses map[string]services.JobStatus
	statusFn func(jobID string) (services.JobStatus, error)
	// during runs inside Submit, before the job id is returned.
	during func()
}

func (f *fakeProvider) Submit(_ context.Context, req heygen.Request) (string, error) {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	during := f.during
	f.during = nil
	f.mu.Unlock()
	if during != nil {
		during()
	}
	return "job-1", nil
}

func (f *fakeProvider) Status(_ context.Context, jobID string) (services.JobStatus, error) {
	if f.statusFn != nil {
		return f.statusFn(jobID)
	}
	return f.statuses[jobID], nil
}

func (f *fakeProvider) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func newStage(t *testing.T) (*synthesis.Stage, *queue.Store, *fakeProvider) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	provider := &fakeProvider{statuses: map[string]services.JobStatus{}}
	return synthesis.NewStage(store, cfg, provider, nil), store, provider
}

func TestAdvanceSubmitsOnce(t *testing.T) {
	st, store, provider := newStage(t)
	ctx := context.Background()
	item := testsupport.MustCreate(t, store, "Idempotent")

	first, err := st.Advance(ctx, item, false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if first.Status != queue.StatusVideoProcessing || first.SynthesisJobID != "job-1" {
		t.Fatalf("unexpected record after submit: %+v", first)
	}
	// The second call holds the record as it was before the first transition.
	second, err := st.Advance(ctx, item, false)
	if err != nil {
		t.Fatalf("second advance: %v", err)
	}
	if second.Status != queue.StatusVideoProcessing {
		t.Fatalf("unexpected status after duplicate advance: %s", second.Status)
	}
	if got := provider.submitCount(); got != 1 {
		t.Fatalf("expected one submit, got %d", got)
	}

	req := provider.submits[0]
	if req.AvatarID != "avatar-ava" || req.VoiceID != "voice-ava" {
		t.Fatalf("unexpected presenter mapping: %+v", req)
	}
	if req.CallbackURL != "https://postflow.test/webhooks/synthesis" {
		t.Fatalf("unexpected callback url %q", req.CallbackURL)
	}
}

func TestAdvanceReusesStoredJobID(t *testing.T) {
	st, store, provider := newStage(t)
	ctx := context.Background()
	item := testsupport.MustCreate(t, store, "Stored")
	item, err := store.Annotate(ctx, item.ID, queue.StatusQueued, queue.Patch{SynthesisJobID: queue.Set("job-existing")})
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}

	advanced, err := st.Advance(ctx, item, false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if advanced.SynthesisJobID != "job-existing" || advanced.Status != queue.StatusVideoProcessing {
		t.Fatalf("unexpected record: %+v", advanced)
	}
	if provider.submitCount() != 0 {
		t.Fatalf("expected no submit for a record with a job id, got %d", provider.submitCount())
	}
}

func TestAdvanceUnknownPresenterIsConfigurationError(t *testing.T) {
	st, store, _ := newStage(t)
	item, err := store.Create(context.Background(), queue.NewItem{
		Brand: testsupport.TestBrand, Title: "x", Script: "s", Presenter: "nobody",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.Advance(context.Background(), item, false); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCallbackAdvancesAndIgnoresDuplicates(t *testing.T) {
	st, store, _ := newStage(t)
	ctx := context.Background()
	item := testsupport.MustCreate(t, store, "Callback")
	if _, err := st.Advance(ctx, item, false); err != nil {
		t.Fatalf("advance: %v", err)
	}

	cb := heygen.Callback{JobID: "job-1", Status: services.JobStatus{State: services.JobCompleted, URL: "https://heygen.test/v.mp4"}}
	updated, err := st.OnCallback(ctx, cb)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if updated.Status != queue.StatusCaptionProcessing || updated.SynthesisVideoURL != "https://heygen.test/v.mp4" {
		t.Fatalf("unexpected record after callback: %+v", updated)
	}
	changedAt := updated.StatusChangedAt

	again, err := st.OnCallback(ctx, cb)
	if err != nil {
		t.Fatalf("duplicate callback: %v", err)
	}
	if again.Status != queue.StatusCaptionProcessing || !again.StatusChangedAt.Equal(changedAt) {
		t.Fatalf("duplicate callback must not transition again: %+v", again)
	}
}

func TestCallbackFailureFailsRecord(t *testing.T) {
	st, store, _ := newStage(t)
	ctx := context.Background()
	if _, err := st.Advance(ctx, testsupport.MustCreate(t, store, "Fail"), false); err != nil {
		t.Fatalf("advance: %v", err)
	}
	updated, err := st.OnCallback(ctx, heygen.Callback{JobID: "job-1", Status: services.JobStatus{State: services.JobFailed, Error: "avatar missing"}})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if updated.Status != queue.StatusFailed || updated.LastError != "synthesis failed: avatar missing" {
		t.Fatalf("unexpected record: %+v", updated)
	}
	if updated.FailedStage != queue.StatusVideoProcessing {
		t.Fatalf("expected failed stage video_processing, got %s", updated.FailedStage)
	}
}

func TestCallbackValidation(t *testing.T) {
	st, store, _ := newStage(t)
	ctx := context.Background()
	if _, err := st.Advance(ctx, testsupport.MustCreate(t, store, "Invalid"), false); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, err := st.OnCallback(ctx, heygen.Callback{JobID: "job-1", Status: services.JobStatus{State: services.JobCompleted}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing url, got %v", err)
	}
	_, err = st.OnCallback(ctx, heygen.Callback{JobID: "job-unknown", Status: services.JobStatus{State: services.JobCompleted, URL: "u"}})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
}

func TestRecheckPollsProvider(t *testing.T) {
	st, store, provider := newStage(t)
	ctx := context.Background()
	item, err := st.Advance(ctx, testsupport.MustCreate(t, store, "Poll"), false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}

	waiting, err := st.Advance(ctx, item, false)
	if err != nil || waiting.Status != queue.StatusVideoProcessing {
		t.Fatalf("expected callback wait without recheck, got %v %v", waiting, err)
	}

	provider.statuses["job-1"] = services.JobStatus{State: services.JobPending}
	pending, err := st.Advance(ctx, item, true)
	if err != nil || pending.Status != queue.StatusVideoProcessing {
		t.Fatalf("expected pending to leave the record, got %v %v", pending, err)
	}

	provider.statuses["job-1"] = services.JobStatus{State: services.JobCompleted, URL: "https://heygen.test/p.mp4"}
	done, err := st.Advance(ctx, item, true)
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if done.Status != queue.StatusCaptionProcessing {
		t.Fatalf("expected caption_processing, got %s", done.Status)
	}
}

func TestRecheckReportsLostJob(t *testing.T) {
	st, store, provider := newStage(t)
	ctx := context.Background()
	item, err := st.Advance(ctx, testsupport.MustCreate(t, store, "Lost"), false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	provider.statusFn = func(string) (services.JobStatus, error) {
		return services.JobStatus{}, services.Wrap(services.ErrNotFound, "heygen", "status", "gone", nil)
	}
	if _, err := st.Advance(ctx, item, true); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdvanceDuringInFlightSubmitDoesNotResubmit(t *testing.T) {
	st, store, provider := newStage(t)
	ctx := context.Background()
	item := testsupport.MustCreate(t, store, "In flight")

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
	if got := provider.submitCount(); got != 1 {
		t.Fatalf("expected one submit, got %d", got)
	}
	if concurrent == nil || concurrent.Status != queue.StatusQueued {
		t.Fatalf("expected concurrent advance to leave the record queued, got %+v", concurrent)
	}
	if first.Status != queue.StatusVideoProcessing || first.SynthesisJobID != "job-1" {
		t.Fatalf("unexpected record after submit: %+v", first)
	}
}

func TestAdvanceReleasesSubmitLeaseOnProviderError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	failing := &failingProvider{err: services.Wrap(services.ErrTransient, "heygen", "submit", "503", nil)}
	st := synthesis.NewStage(store, cfg, failing, nil)
	item := testsupport.MustCreate(t, store, "Retry")

	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := st.Advance(ctx, item, false); !errors.Is(err, services.ErrTransient) {
			t.Fatalf("attempt %d: expected transient error, got %v", attempt, err)
		}
	}
	if failing.calls != 2 {
		t.Fatalf("expected each attempt to reach the provider, got %d", failing.calls)
	}
}

type failingProvider struct {
	err   error
	calls int
}

func (f *failingProvider) Submit(context.Context, heygen.Request) (string, error) {
	f.calls++
	return "", f.err
}

func (f *failingProvider) Status(context.Context, string) (services.JobStatus, error) {
	return services.JobStatus{}, f.err
}
