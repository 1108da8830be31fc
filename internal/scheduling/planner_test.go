package scheduling_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"postflow/internal/config"
	"postflow/internal/queue"
	"postflow/internal/scheduling"
	"postflow/internal/services"
	"postflow/internal/testsupport"
)

var chicago = mustLocation("America/Chicago")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// ladderOnly gives the test brand one platform ranked exactly like the ladder,
// so every record is a single group walking the ladder.
func ladderOnly() []testsupport.ConfigOption {
	return []testsupport.ConfigOption{
		testsupport.WithBrand(testsupport.TestBrand, config.Brand{Platforms: []string{"tiktok"}}),
		testsupport.WithPlatformHours("tiktok", 9, 11, 14, 18, 20),
	}
}

func newPlanner(t *testing.T, at time.Time, opts ...testsupport.ConfigOption) (*scheduling.Planner, *queue.Store, *testsupport.Clock) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(at)
	planner := scheduling.NewPlanner(cfg, scheduling.NewSQLiteClaimer(store), scheduling.WithClock(clock.Now))
	return planner, store, clock
}

func planFor(t *testing.T, planner *scheduling.Planner, owner string, platforms ...string) scheduling.Plan {
	t.Helper()
	if len(platforms) == 0 {
		platforms = []string{"tiktok"}
	}
	plan, err := planner.Plan(context.Background(), scheduling.PlanRequest{
		Brand:     testsupport.TestBrand,
		Platforms: platforms,
		Owner:     owner,
	})
	if err != nil {
		t.Fatalf("plan for %s: %v", owner, err)
	}
	return plan
}

func TestPlanSameDayClaimsNextOpenLadderHours(t *testing.T) {
	at := time.Date(2026, 5, 12, 9, 30, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at, ladderOnly()...)

	var got []int
	for i := 1; i <= 3; i++ {
		plan := planFor(t, planner, queue.SlotOwner(int64(i)))
		if len(plan.Decisions) != 1 {
			t.Fatalf("expected one decision, got %+v", plan.Decisions)
		}
		decision := plan.Decisions[0]
		if decision.Day != "2026-05-12" {
			t.Fatalf("expected today, got %s", decision.Day)
		}
		got = append(got, decision.Hour)
	}
	want := []int{11, 14, 18}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected hours: got %v want %v", got, want)
		}
	}
}

func TestPlanSameDayRollsOverWhenLadderExhausted(t *testing.T) {
	at := time.Date(2026, 5, 12, 8, 30, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at, ladderOnly()...)

	type slot struct {
		day  string
		hour int
	}
	var got []slot
	for i := 1; i <= 6; i++ {
		decision := planFor(t, planner, queue.SlotOwner(int64(i))).Decisions[0]
		got = append(got, slot{decision.Day, decision.Hour})
	}
	want := []slot{
		{"2026-05-12", 9}, {"2026-05-12", 11}, {"2026-05-12", 14},
		{"2026-05-12", 18}, {"2026-05-12", 20}, {"2026-05-13", 9},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected slots: got %v want %v", got, want)
		}
	}
}

func TestPlanSameDayAfterLastLadderHourUsesTomorrow(t *testing.T) {
	at := time.Date(2026, 5, 12, 21, 0, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at, ladderOnly()...)

	decision := planFor(t, planner, queue.SlotOwner(1)).Decisions[0]
	if decision.Day != "2026-05-13" || decision.Hour != 9 {
		t.Fatalf("expected tomorrow 09:00, got %s %d", decision.Day, decision.Hour)
	}
	want := time.Date(2026, 5, 13, 9, 0, 0, 0, chicago)
	if !decision.ScheduledAt.Equal(want) {
		t.Fatalf("unexpected scheduled time %s", decision.ScheduledAt)
	}
	if decision.Timezone != "America/Chicago" {
		t.Fatalf("unexpected timezone %q", decision.Timezone)
	}
}

func TestPlanGroupsPlatformsSharingPreferredHour(t *testing.T) {
	at := time.Date(2026, 5, 12, 10, 0, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at,
		testsupport.WithPlatformHours("tiktok", 12, 19),
		testsupport.WithPlatformHours("instagram", 12, 14),
		testsupport.WithPlatformHours("facebook", 15),
	)

	plan := planFor(t, planner, queue.SlotOwner(1), "tiktok", "instagram", "facebook")
	if len(plan.Decisions) != 2 {
		t.Fatalf("expected two decisions, got %+v", plan.Decisions)
	}
	first, second := plan.Decisions[0], plan.Decisions[1]
	if first.Hour != 12 || len(first.Platforms) != 2 {
		t.Fatalf("expected tiktok+instagram at 12, got %+v", first)
	}
	if second.Hour != 15 || len(second.Platforms) != 1 || second.Platforms[0] != "facebook" {
		t.Fatalf("expected facebook at 15, got %+v", second)
	}
	if len(plan.Claimed) != 2 {
		t.Fatalf("expected two claims, got %v", plan.Claimed)
	}
}

func TestPlanSameDayTriesPlatformRankingBeforeLadder(t *testing.T) {
	at := time.Date(2026, 5, 12, 10, 0, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at,
		testsupport.WithBrand(testsupport.TestBrand, config.Brand{Platforms: []string{"tiktok"}}),
		testsupport.WithPlatformHours("tiktok", 12, 19),
	)

	first := planFor(t, planner, queue.SlotOwner(1)).Decisions[0]
	second := planFor(t, planner, queue.SlotOwner(2)).Decisions[0]
	third := planFor(t, planner, queue.SlotOwner(3)).Decisions[0]
	if first.Hour != 12 || second.Hour != 19 {
		t.Fatalf("expected ranked hours 12 then 19, got %d and %d", first.Hour, second.Hour)
	}
	if third.Hour != 11 {
		t.Fatalf("expected ladder fallback 11, got %d", third.Hour)
	}
}

func TestPlanIsIdempotentForOwner(t *testing.T) {
	at := time.Date(2026, 5, 12, 9, 30, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at, ladderOnly()...)

	first := planFor(t, planner, queue.SlotOwner(7))
	again := planFor(t, planner, queue.SlotOwner(7))
	if first.Decisions[0].Hour != again.Decisions[0].Hour {
		t.Fatalf("expected the same slot on re-plan, got %d then %d", first.Decisions[0].Hour, again.Decisions[0].Hour)
	}
	if len(again.Claimed) != 0 {
		t.Fatalf("expected re-plan to claim nothing new, got %v", again.Claimed)
	}
}

func TestPlanFixedFutureUsesVideoIndexTomorrow(t *testing.T) {
	at := time.Date(2026, 5, 12, 10, 0, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at,
		testsupport.WithPolicy("fixed_future"),
		testsupport.WithPlatformHours("tiktok", 9, 12, 19),
		testsupport.WithPlatformHours("instagram", 11, 12, 19),
	)

	plan, err := planner.Plan(context.Background(), scheduling.PlanRequest{
		Brand:      testsupport.TestBrand,
		Platforms:  []string{"tiktok", "instagram"},
		VideoIndex: 1,
		Owner:      queue.SlotOwner(1),
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Decisions) != 1 {
		t.Fatalf("expected merged decision, got %+v", plan.Decisions)
	}
	decision := plan.Decisions[0]
	if decision.Day != "2026-05-13" || decision.Hour != 12 || len(decision.Platforms) != 2 {
		t.Fatalf("unexpected fixed-future decision: %+v", decision)
	}

	plan, err = planner.Plan(context.Background(), scheduling.PlanRequest{
		Brand:      testsupport.TestBrand,
		Platforms:  []string{"tiktok"},
		VideoIndex: 3,
		Owner:      queue.SlotOwner(2),
	})
	if err != nil {
		t.Fatalf("plan index wrap: %v", err)
	}
	if got := plan.Decisions[0]; got.Day != "2026-05-13" || got.Hour != 9 {
		t.Fatalf("expected index 3 to wrap to 09:00 tomorrow, got %+v", got)
	}
}

func TestPlanFixedFutureFallsBackToLadderOnCollision(t *testing.T) {
	at := time.Date(2026, 5, 12, 10, 0, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at,
		testsupport.WithPolicy("fixed_future"),
		testsupport.WithBrand(testsupport.TestBrand, config.Brand{Platforms: []string{"tiktok"}}),
		testsupport.WithPlatformHours("tiktok", 14),
	)

	first := planFor(t, planner, queue.SlotOwner(1)).Decisions[0]
	second := planFor(t, planner, queue.SlotOwner(2)).Decisions[0]
	if first.Hour != 14 || first.Day != "2026-05-13" {
		t.Fatalf("unexpected first decision %+v", first)
	}
	if second.Hour != 9 || second.Day != "2026-05-13" {
		t.Fatalf("expected ladder fallback to 09:00 tomorrow, got %+v", second)
	}
}

func TestPlanExhaustedWindowIsTransient(t *testing.T) {
	at := time.Date(2026, 5, 12, 8, 30, 0, 0, chicago)
	cfg := testsupport.NewConfig(t, ladderOnly()...)
	cfg.Scheduling.Ladder = []int{9}
	cfg.Scheduling.MaxRolloverDays = 1
	cfg.Platforms["tiktok"] = config.Platform{Hours: []int{9}}
	store := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(at)
	planner := scheduling.NewPlanner(cfg, scheduling.NewSQLiteClaimer(store), scheduling.WithClock(clock.Now))

	planFor(t, planner, queue.SlotOwner(1))
	planFor(t, planner, queue.SlotOwner(2))
	_, err := planner.Plan(context.Background(), scheduling.PlanRequest{
		Brand:     testsupport.TestBrand,
		Platforms: []string{"tiktok"},
		Owner:     queue.SlotOwner(3),
	})
	if !errors.Is(err, scheduling.ErrNoSlotAvailable) || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient no-slot error, got %v", err)
	}
	if !errors.Is(err, services.ErrSlotCollision) || !services.IsRetryable(err) {
		t.Fatalf("expected the last collision in the chain, got %v", err)
	}
}

func TestPlanRejectsBadRequests(t *testing.T) {
	planner, _, _ := newPlanner(t, time.Date(2026, 5, 12, 9, 0, 0, 0, chicago))
	ctx := context.Background()

	if _, err := planner.Plan(ctx, scheduling.PlanRequest{Brand: testsupport.TestBrand, Owner: "o"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty platforms, got %v", err)
	}
	if _, err := planner.Plan(ctx, scheduling.PlanRequest{Brand: "nope", Platforms: []string{"tiktok"}, Owner: "o"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown brand, got %v", err)
	}
}

func TestConcurrentPlansNeverShareSlot(t *testing.T) {
	at := time.Date(2026, 5, 12, 8, 30, 0, 0, chicago)
	planner, store, _ := newPlanner(t, at, ladderOnly()...)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		slots   = map[string]string{}
		errs    []error
		barrier = make(chan struct{})
	)
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			<-barrier
			plan, err := planner.Plan(context.Background(), scheduling.PlanRequest{
				Brand:     testsupport.TestBrand,
				Platforms: []string{"tiktok"},
				Owner:     queue.SlotOwner(id),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			for _, d := range plan.Decisions {
				key := fmt.Sprintf("%s@%02d", d.Day, d.Hour)
				if prev, dup := slots[key]; dup {
					errs = append(errs, fmt.Errorf("slot %s assigned to %s and %s", key, prev, queue.SlotOwner(id)))
				}
				slots[key] = queue.SlotOwner(id)
			}
		}(int64(i))
	}
	close(barrier)
	wg.Wait()

	for _, err := range errs {
		t.Error(err)
	}
	if len(slots) != workers {
		t.Fatalf("expected %d distinct slots, got %d", workers, len(slots))
	}
	claims, err := store.SlotsForDay(context.Background(), testsupport.TestBrand, "2026-05-12")
	if err != nil {
		t.Fatalf("slots for day: %v", err)
	}
	if len(claims) != 5 {
		t.Fatalf("expected every ladder hour claimed today, got %d", len(claims))
	}
}

func TestDescribeReportsNextRankedHour(t *testing.T) {
	at := time.Date(2026, 5, 12, 20, 30, 0, 0, chicago)
	planner, _, _ := newPlanner(t, at, testsupport.WithPlatformHours("tiktok", 9, 21))

	preview, err := planner.Describe(testsupport.TestBrand)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if preview.Policy != "same_day" || preview.Timezone != "America/Chicago" {
		t.Fatalf("unexpected preview header: %+v", preview)
	}
	var tiktok scheduling.PlatformPreview
	for _, p := range preview.Platforms {
		if p.Platform == "tiktok" {
			tiktok = p
		}
	}
	if want := time.Date(2026, 5, 12, 21, 0, 0, 0, chicago); !tiktok.Next.Equal(want) {
		t.Fatalf("expected next tiktok slot %s, got %s", want, tiktok.Next)
	}
	if _, err := planner.Describe("unknown"); err == nil {
		t.Fatal("expected error for unknown brand")
	}
}
