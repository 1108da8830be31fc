package daemon

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t)
	d := h.daemon

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status(ctx)
	if !status.Running || status.Address == "" {
		t.Fatalf("expected running daemon with an address, got %+v", status)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + status.Address + "/healthz")
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(h.daemon.Stop)

	other, err := New(h.cfg, nil, Deps{
		Store:    h.store,
		Manager:  h.daemon.manager,
		Monitor:  h.daemon.monitor,
		Selector: h.daemon.selector,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected lock contention to block the second daemon")
	}
}

func TestStartTickStartsEveryBrand(t *testing.T) {
	h := newHarness(t)
	h.startWorkflow(t, "First")
	if _, err := h.store.AddContent(context.Background(), newContent("Second")); err != nil {
		t.Fatalf("add content: %v", err)
	}

	h.daemon.startTick(context.Background())

	stats, err := h.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	var total int
	for _, count := range stats {
		total += count
	}
	if total != 2 {
		t.Fatalf("expected two workflows after the tick, got %v", stats)
	}

	// Nothing left to start; the tick must not fail.
	h.daemon.startTick(context.Background())
}
