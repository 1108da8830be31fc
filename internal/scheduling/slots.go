package scheduling

import (
	"context"
	"fmt"
	"time"

	"postflow/internal/queue"
)

const dayLayout = "2006-01-02"

// SlotKey identifies one publish slot in a brand's pool.
type SlotKey struct {
	Brand string
	Day   string
	Hour  int
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s:%s:%02d", k.Brand, k.Day, k.Hour)
}

// ClaimOutcome is the result of a slot claim attempt.
type ClaimOutcome int

const (
	// ClaimLost means another owner holds the slot.
	ClaimLost ClaimOutcome = iota
	// ClaimWon means this call reserved the slot.
	ClaimWon
	// ClaimAlreadyHeld means the owner reserved the slot earlier.
	ClaimAlreadyHeld
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimWon:
		return "won"
	case ClaimAlreadyHeld:
		return "held"
	default:
		return "lost"
	}
}

// SlotClaimer reserves slot keys atomically.
type SlotClaimer interface {
	Claim(ctx context.Context, key SlotKey, owner string) (ClaimOutcome, error)
	Release(ctx context.Context, key SlotKey, owner string) error
}

// SlotHolding is one claimed hour of a brand's day.
type SlotHolding struct {
	Hour  int    `json:"hour"`
	Owner string `json:"owner"`
}

// SlotLister reports the claimed hours of a day, ordered by hour.
type SlotLister interface {
	Holdings(ctx context.Context, brand, day string) ([]SlotHolding, error)
}

// SQLiteClaimer stores claims in the workflow database.
type SQLiteClaimer struct {
	store *queue.Store
}

// NewSQLiteClaimer returns a claimer backed by the slot_claims table.
func NewSQLiteClaimer(store *queue.Store) *SQLiteClaimer {
	return &SQLiteClaimer{store: store}
}

func (c *SQLiteClaimer) Claim(ctx context.Context, key SlotKey, owner string) (ClaimOutcome, error) {
	inserted, holder, err := c.store.ClaimSlot(ctx, key.Brand, key.Day, key.Hour, owner)
	if err != nil {
		return ClaimLost, err
	}
	switch {
	case inserted:
		return ClaimWon, nil
	case holder == owner:
		return ClaimAlreadyHeld, nil
	default:
		return ClaimLost, nil
	}
}

func (c *SQLiteClaimer) Release(ctx context.Context, key SlotKey, owner string) error {
	return c.store.ReleaseSlot(ctx, key.Brand, key.Day, key.Hour, owner)
}

func (c *SQLiteClaimer) Holdings(ctx context.Context, brand, day string) ([]SlotHolding, error) {
	claims, err := c.store.SlotsForDay(ctx, brand, day)
	if err != nil {
		return nil, err
	}
	out := make([]SlotHolding, 0, len(claims))
	for _, claim := range claims {
		out = append(out, SlotHolding{Hour: claim.Hour, Owner: claim.Owner})
	}
	return out, nil
}

// ReleaseDecisions frees every slot a record's decisions hold. Used when a
// record fails so its hours return to the pool.
func ReleaseDecisions(ctx context.Context, claimer SlotClaimer, brand string, decisions []queue.ScheduleDecision, owner string) error {
	var firstErr error
	for _, decision := range decisions {
		key := SlotKey{Brand: brand, Day: decision.Day, Hour: decision.Hour}
		if err := claimer.Release(ctx, key, owner); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func slotStart(day time.Time, hour int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)
}
