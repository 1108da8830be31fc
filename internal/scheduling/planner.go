package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/metrics"
	"postflow/internal/queue"
	"postflow/internal/services"
)

const (
	PolicySameDay     = "same_day"
	PolicyFixedFuture = "fixed_future"
)

// ErrNoSlotAvailable reports that every candidate within the rollover window
// was claimed. It is wrapped as transient so the sweep retries later.
var ErrNoSlotAvailable = errors.New("no slot available")

// PlanRequest describes one record's scheduling needs.
type PlanRequest struct {
	Brand      string
	Platforms  []string
	VideoIndex int
	// Policy overrides the brand policy when set.
	Policy string
	Owner  string
}

// Plan is the planner's result. Claimed lists the keys this call newly
// reserved so the caller can release them if it cannot commit the plan.
type Plan struct {
	Decisions []queue.ScheduleDecision
	Claimed   []SlotKey
}

// Planner allocates publish slots for records.
type Planner struct {
	cfg      *config.Config
	calendar *Calendar
	claimer  SlotClaimer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Planner.
type Option func(*Planner)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMetrics records claim outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithLogger sets the planner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logging.NewComponentLogger(logger, "scheduler")
		}
	}
}

// NewPlanner builds a planner backed by claimer.
func NewPlanner(cfg *config.Config, claimer SlotClaimer, opts ...Option) *Planner {
	p := &Planner{
		cfg:      cfg,
		calendar: NewCalendar(cfg),
		claimer:  claimer,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Calendar exposes the hour rankings the planner uses.
func (p *Planner) Calendar() *Calendar {
	return p.calendar
}

type group struct {
	platforms []string
	// candidates are tried in order until one claim succeeds.
	candidates []slotCandidate
}

type slotCandidate struct {
	day  time.Time
	hour int
}

// Plan groups the requested platforms by optimal hour and claims one slot per
// group. Lost claims advance to the next candidate; only store errors and an
// exhausted rollover window are returned.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (Plan, error) {
	if len(req.Platforms) == 0 {
		return Plan{}, services.Wrap(services.ErrValidation, "scheduling", "plan", "no platforms to schedule", nil)
	}
	if req.Owner == "" {
		return Plan{}, services.Wrap(services.ErrValidation, "scheduling", "plan", "missing slot owner", nil)
	}
	loc, err := p.cfg.BrandLocation(req.Brand)
	if err != nil {
		return Plan{}, services.Wrap(services.ErrConfiguration, "scheduling", "plan", "resolve brand timezone", err)
	}
	policy := req.Policy
	if policy == "" {
		policy = p.cfg.BrandPolicy(req.Brand)
	}
	now := p.now().In(loc)

	var groups []group
	switch policy {
	case PolicyFixedFuture:
		groups = p.fixedFutureGroups(req, now)
	default:
		groups = p.sameDayGroups(req, now)
	}

	var plan Plan
	for _, g := range groups {
		key, outcome, err := p.claimFirst(ctx, req, g, now)
		if err != nil {
			p.release(ctx, req.Owner, plan.Claimed)
			return Plan{}, err
		}
		if outcome == ClaimWon {
			plan.Claimed = append(plan.Claimed, key)
		}
		plan.Decisions = mergeDecision(plan.Decisions, key, g.platforms, loc)
	}
	sort.SliceStable(plan.Decisions, func(i, j int) bool {
		return plan.Decisions[i].ScheduledAt.Before(plan.Decisions[j].ScheduledAt)
	})
	return plan, nil
}

func (p *Planner) claimFirst(ctx context.Context, req PlanRequest, g group, now time.Time) (SlotKey, ClaimOutcome, error) {
	tried := make(map[SlotKey]struct{}, len(g.candidates))
	var collision error
	for _, candidate := range g.candidates {
		if !slotStart(candidate.day, candidate.hour, now.Location()).After(now) {
			continue
		}
		key := SlotKey{Brand: req.Brand, Day: candidate.day.Format(dayLayout), Hour: candidate.hour}
		if _, seen := tried[key]; seen {
			continue
		}
		tried[key] = struct{}{}

		outcome, err := p.claimer.Claim(ctx, key, req.Owner)
		if err != nil {
			return SlotKey{}, ClaimLost, services.Wrap(services.ErrTransient, "scheduling", "claim slot", key.String(), err)
		}
		p.metrics.ObserveSlotClaim(req.Brand, outcome.String())
		if outcome == ClaimLost {
			collision = services.Wrap(services.ErrSlotCollision, "scheduling", "claim slot", key.String()+" held by another record", nil)
			p.logger.Debug("slot taken, trying next candidate",
				logging.Brand(req.Brand),
				logging.Error(collision),
			)
			continue
		}
		p.logger.Debug("slot claimed",
			logging.Brand(req.Brand),
			logging.String("slot", key.String()),
			logging.String("outcome", outcome.String()),
		)
		return key, outcome, nil
	}
	cause := ErrNoSlotAvailable
	if collision != nil {
		cause = fmt.Errorf("%w (last: %w)", ErrNoSlotAvailable, collision)
	}
	return SlotKey{}, ClaimLost, services.Wrap(services.ErrTransient, "scheduling", "plan",
		fmt.Sprintf("every slot for %s within %d days is taken", req.Brand, p.cfg.Scheduling.MaxRolloverDays),
		cause)
}

func (p *Planner) release(ctx context.Context, owner string, keys []SlotKey) {
	for _, key := range keys {
		if err := p.claimer.Release(ctx, key, owner); err != nil {
			p.logger.Warn("release slot after failed plan",
				logging.String("slot", key.String()),
				logging.Error(err),
			)
		}
	}
}

// sameDayGroups keys each platform on its first ranked hour still ahead today.
// Platforms with nothing left today share a group that starts on the ladder.
func (p *Planner) sameDayGroups(req PlanRequest, now time.Time) []group {
	today := startOfDay(now)
	var (
		order   []int
		byHour  = map[int]*group{}
		noHours = -1
	)
	for _, platform := range req.Platforms {
		ranked := p.calendar.RankedHours(platform, today.Weekday())
		preferred := noHours
		var remaining []int
		for i, hour := range ranked {
			if slotStart(today, hour, now.Location()).After(now) {
				preferred = hour
				remaining = ranked[i+1:]
				break
			}
		}
		g, ok := byHour[preferred]
		if !ok {
			g = &group{}
			if preferred != noHours {
				g.candidates = append(g.candidates, slotCandidate{day: today, hour: preferred})
				for _, hour := range remaining {
					g.candidates = append(g.candidates, slotCandidate{day: today, hour: hour})
				}
			}
			g.candidates = append(g.candidates, p.ladderFrom(today, 0)...)
			byHour[preferred] = g
			order = append(order, preferred)
		}
		g.platforms = append(g.platforms, platform)
	}
	return collect(order, byHour)
}

// fixedFutureGroups keys each platform on its VideoIndex-th ranked hour on the
// day 24 hours from now.
func (p *Planner) fixedFutureGroups(req PlanRequest, now time.Time) []group {
	target := startOfDay(now.Add(24 * time.Hour))
	var (
		order  []int
		byHour = map[int]*group{}
	)
	index := req.VideoIndex
	if index < 0 {
		index = -index
	}
	for _, platform := range req.Platforms {
		ranked := p.calendar.RankedHours(platform, target.Weekday())
		hour := ranked[index%len(ranked)]
		g, ok := byHour[hour]
		if !ok {
			g = &group{candidates: []slotCandidate{{day: target, hour: hour}}}
			g.candidates = append(g.candidates, p.ladderFrom(target, 0)...)
			byHour[hour] = g
			order = append(order, hour)
		}
		g.platforms = append(g.platforms, platform)
	}
	return collect(order, byHour)
}

// ladderFrom lists ladder hours on day+offset and each following day inside
// the rollover window.
func (p *Planner) ladderFrom(day time.Time, offset int) []slotCandidate {
	ladder := p.calendar.Ladder()
	var out []slotCandidate
	for d := offset; d <= p.cfg.Scheduling.MaxRolloverDays; d++ {
		current := day.AddDate(0, 0, d)
		for _, hour := range ladder {
			out = append(out, slotCandidate{day: current, hour: hour})
		}
	}
	return out
}

func collect(order []int, byHour map[int]*group) []group {
	out := make([]group, 0, len(order))
	for _, hour := range order {
		out = append(out, *byHour[hour])
	}
	return out
}

// mergeDecision folds platforms into an existing decision for the same slot,
// which happens when a later group falls back onto an hour this plan already
// holds.
func mergeDecision(decisions []queue.ScheduleDecision, key SlotKey, platforms []string, loc *time.Location) []queue.ScheduleDecision {
	for i := range decisions {
		if decisions[i].Day == key.Day && decisions[i].Hour == key.Hour {
			decisions[i].Platforms = append(decisions[i].Platforms, platforms...)
			return decisions
		}
	}
	day, _ := time.ParseInLocation(dayLayout, key.Day, loc)
	return append(decisions, queue.ScheduleDecision{
		Day:         key.Day,
		Hour:        key.Hour,
		ScheduledAt: slotStart(day, key.Hour, loc),
		Timezone:    loc.String(),
		Platforms:   append([]string(nil), platforms...),
	})
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
