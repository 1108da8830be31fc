package stage_test

import (
	"context"
	"errors"
	"testing"

	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
	"postflow/internal/testsupport"
)

func TestSettleReturnsLatestRecordOnStaleTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.MustCreate(t, store, "Settle")
	if _, err := store.Transition(ctx, item.ID, queue.StatusQueued, queue.StatusVideoProcessing, queue.Patch{}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	updated, err := store.Transition(ctx, item.ID, queue.StatusQueued, queue.StatusVideoProcessing, queue.Patch{})
	settled, err := stage.Settle(ctx, store, item.ID, updated, err)
	if err != nil {
		t.Fatalf("expected stale transition to settle, got %v", err)
	}
	if settled.Status != queue.StatusVideoProcessing {
		t.Fatalf("expected latest status, got %s", settled.Status)
	}
}

func TestSettlePassesOtherErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	boom := errors.New("boom")
	if _, err := stage.Settle(context.Background(), store, 1, nil, boom); !errors.Is(err, boom) {
		t.Fatalf("expected passthrough error, got %v", err)
	}
}

func TestRequireField(t *testing.T) {
	if err := stage.RequireField("captions", "video url", "https://x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := stage.RequireField("captions", "video url", "  ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := stage.Healthy("synthesis"); !h.Ready || h.Name != "synthesis" {
		t.Fatalf("unexpected healthy record: %+v", h)
	}
	if h := stage.Unhealthy("captions", "missing api key"); h.Ready || h.Detail != "missing api key" {
		t.Fatalf("unexpected unhealthy record: %+v", h)
	}
	if h := stage.MissingSetting("publishing", "late.api_key"); h.Ready || h.Detail != "late.api_key is not set" {
		t.Fatalf("unexpected missing-setting record: %+v", h)
	}
}

func TestClaimSubmitIsExclusivePerRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	release, ok, err := stage.ClaimSubmit(ctx, store, "synthesis", 7)
	if err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	blocked, ok, err := stage.ClaimSubmit(ctx, store, "synthesis", 7)
	if err != nil || ok {
		t.Fatalf("expected second claim refused, got %v %v", ok, err)
	}
	blocked()

	other, ok, err := stage.ClaimSubmit(ctx, store, "captions", 7)
	if err != nil || !ok {
		t.Fatalf("expected other stage to claim independently, got %v %v", ok, err)
	}
	other()

	release()
	again, ok, err := stage.ClaimSubmit(ctx, store, "synthesis", 7)
	if err != nil || !ok {
		t.Fatalf("expected claim after release, got %v %v", ok, err)
	}
	again()
}
