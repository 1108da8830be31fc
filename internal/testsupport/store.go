package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"postflow/internal/config"
	"postflow/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustCreate inserts a queued workflow record for the test brand.
func MustCreate(t testing.TB, store *queue.Store, title string) *queue.Item {
	t.Helper()

	item, err := store.Create(context.Background(), queue.NewItem{
		Brand:     TestBrand,
		Title:     title,
		Caption:   title + " caption",
		Script:    title + " script",
		Presenter: "ava",
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return item
}

// MustAdvanceTo walks a record forward through each intermediate status until
// it reaches target.
func MustAdvanceTo(t testing.TB, store *queue.Store, item *queue.Item, target queue.Status) *queue.Item {
	t.Helper()

	ctx := context.Background()
	for item.Status != target {
		next := nextStatus(item.Status)
		if next == "" {
			t.Fatalf("cannot advance workflow %d from %s to %s", item.ID, item.Status, target)
		}
		updated, err := store.Transition(ctx, item.ID, item.Status, next, queue.Patch{})
		if err != nil {
			t.Fatalf("advance workflow %d to %s: %v", item.ID, next, err)
		}
		item = updated
	}
	return item
}

func nextStatus(status queue.Status) queue.Status {
	statuses := queue.AllStatuses()
	for i, s := range statuses {
		if s == status && i+1 < len(statuses) && !s.IsTerminal() {
			return statuses[i+1]
		}
	}
	return ""
}

// Clock is a manually advanced time source for store and scheduler tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
