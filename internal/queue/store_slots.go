package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SlotClaim is a committed (brand, day, hour) reservation.
type SlotClaim struct {
	Brand string
	Day   string
	Hour  int
	Owner string
}

// ClaimSlot reserves (brand, day, hour) for owner with a single INSERT that
// does nothing on conflict. It reports whether this call inserted the row and
// which owner holds the slot afterwards.
func (s *Store) ClaimSlot(ctx context.Context, brand, day string, hour int, owner string) (bool, string, error) {
	brand = strings.ToLower(strings.TrimSpace(brand))
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO slot_claims (brand, day, hour, owner, claimed_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (brand, day, hour) DO NOTHING`,
		brand,
		day,
		hour,
		owner,
		s.timestamp(),
	)
	if err != nil {
		return false, "", fmt.Errorf("claim slot %s/%s/%d: %w", brand, day, hour, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, "", err
	}
	if inserted == 1 {
		return true, owner, nil
	}
	var holder string
	err = s.db.QueryRowContext(
		ctx,
		`SELECT owner FROM slot_claims WHERE brand = ? AND day = ? AND hour = ?`,
		brand, day, hour,
	).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		// Released between the insert and the lookup; report it as lost so the
		// caller moves on rather than spinning on one hour.
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("read slot owner: %w", err)
	}
	return false, holder, nil
}

// ReleaseSlot removes a claim if owner still holds it.
func (s *Store) ReleaseSlot(ctx context.Context, brand, day string, hour int, owner string) error {
	if _, err := s.execWithRetry(
		ctx,
		`DELETE FROM slot_claims WHERE brand = ? AND day = ? AND hour = ? AND owner = ?`,
		strings.ToLower(strings.TrimSpace(brand)), day, hour, owner,
	); err != nil {
		return fmt.Errorf("release slot %s/%s/%d: %w", brand, day, hour, err)
	}
	return nil
}

// SlotsForDay lists the claims for a brand on day ordered by hour.
func (s *Store) SlotsForDay(ctx context.Context, brand, day string) ([]SlotClaim, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT brand, day, hour, owner FROM slot_claims WHERE brand = ? AND day = ? ORDER BY hour`,
		strings.ToLower(strings.TrimSpace(brand)), day,
	)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var claims []SlotClaim
	for rows.Next() {
		var claim SlotClaim
		if err := rows.Scan(&claim.Brand, &claim.Day, &claim.Hour, &claim.Owner); err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}
