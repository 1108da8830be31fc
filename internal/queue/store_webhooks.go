package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DeliveryClaim is the outcome of ClaimDelivery.
type DeliveryClaim int

const (
	// DeliveryNew means the caller owns the delivery and must apply it.
	DeliveryNew DeliveryClaim = iota
	// DeliveryInFlight means another request is applying the same delivery.
	DeliveryInFlight
	// DeliveryDone means the delivery was already applied.
	DeliveryDone
)

const (
	deliveryProcessing = "processing"
	deliveryProcessed  = "processed"
)

// ClaimDelivery records a webhook delivery key as processing. A key left in
// processing for longer than staleAfter is taken over by the caller. An empty
// key is always new.
func (s *Store) ClaimDelivery(ctx context.Context, key string, staleAfter time.Duration) (DeliveryClaim, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return DeliveryNew, nil
	}
	now := s.Now()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO webhook_deliveries (delivery_key, processed_at, state) VALUES (?, ?, ?)
         ON CONFLICT (delivery_key) DO UPDATE SET processed_at = excluded.processed_at
         WHERE webhook_deliveries.state = ? AND webhook_deliveries.processed_at <= ?`,
		key,
		formatTime(now),
		deliveryProcessing,
		deliveryProcessing,
		formatTime(now.Add(-staleAfter)),
	)
	if err != nil {
		return DeliveryInFlight, fmt.Errorf("claim delivery %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return DeliveryInFlight, err
	}
	if affected > 0 {
		return DeliveryNew, nil
	}

	var state string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM webhook_deliveries WHERE delivery_key = ?`, key).Scan(&state)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Forgotten between the insert and the read; let the provider retry.
		return DeliveryInFlight, nil
	case err != nil:
		return DeliveryInFlight, fmt.Errorf("read delivery %s: %w", key, err)
	case state == deliveryProcessed:
		return DeliveryDone, nil
	default:
		return DeliveryInFlight, nil
	}
}

// CompleteDelivery marks a claimed delivery as processed so redeliveries are
// acknowledged as duplicates.
func (s *Store) CompleteDelivery(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE webhook_deliveries SET state = ?, processed_at = ? WHERE delivery_key = ?`,
		deliveryProcessed, s.timestamp(), key)
	if err != nil {
		return fmt.Errorf("complete delivery %s: %w", key, err)
	}
	return nil
}

// ForgetDelivery removes a delivery key so a provider redelivery is applied
// again.
func (s *Store) ForgetDelivery(ctx context.Context, key string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM webhook_deliveries WHERE delivery_key = ?`, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("forget delivery %s: %w", key, err)
	}
	return nil
}

// PruneDeliveries removes delivery keys last touched before cutoff.
func (s *Store) PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM webhook_deliveries WHERE processed_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return res.RowsAffected()
}

// WebhookFailure is a provider callback that could not be applied. Repeated
// failures of the same delivery share one row.
type WebhookFailure struct {
	ID            int64
	Provider      string
	DeliveryKey   string
	Body          string
	Error         string
	Permanent     bool
	Attempts      int
	FirstFailedAt time.Time
	LastFailedAt  time.Time
	ResolvedAt    *time.Time
}

// Resolved reports whether a later delivery was applied.
func (f *WebhookFailure) Resolved() bool {
	return f != nil && f.ResolvedAt != nil
}

// WebhookFailureFilter narrows ListWebhookFailures.
type WebhookFailureFilter struct {
	Provider        string
	IncludeResolved bool
	Limit           int
}

const webhookFailureColumns = "id, provider, delivery_key, body, error, permanent, attempts, first_failed_at, last_failed_at, resolved_at"

// RecordWebhookFailure stores a failed delivery, or bumps the attempt count of
// an existing one and clears its resolution.
func (s *Store) RecordWebhookFailure(ctx context.Context, provider, key string, body []byte, cause error, permanent bool) (*WebhookFailure, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("record webhook failure: delivery key is required")
	}
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	now := s.timestamp()
	ctx = ensureContext(ctx)

	var failure *WebhookFailure
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`INSERT INTO webhook_failures (provider, delivery_key, body, error, permanent, first_failed_at, last_failed_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT (delivery_key) DO UPDATE SET
                 body = excluded.body,
                 error = excluded.error,
                 permanent = excluded.permanent,
                 attempts = webhook_failures.attempts + 1,
                 last_failed_at = excluded.last_failed_at,
                 resolved_at = NULL
             RETURNING `+webhookFailureColumns,
			provider,
			key,
			string(body),
			message,
			boolToInt(permanent),
			now,
			now,
		)
		var scanErr error
		failure, scanErr = scanWebhookFailure(row)
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook failure %s: %w", key, err)
	}
	return failure, nil
}

// ResolveWebhookFailure marks the failure for key as resolved. Keys without a
// recorded failure are ignored.
func (s *Store) ResolveWebhookFailure(ctx context.Context, key string) error {
	_, err := s.execWithRetry(ctx,
		`UPDATE webhook_failures SET resolved_at = ? WHERE delivery_key = ? AND resolved_at IS NULL`,
		s.timestamp(), strings.TrimSpace(key))
	if err != nil {
		return fmt.Errorf("resolve webhook failure %s: %w", key, err)
	}
	return nil
}

// ListWebhookFailures returns failures, most recent first.
func (s *Store) ListWebhookFailures(ctx context.Context, filter WebhookFailureFilter) ([]*WebhookFailure, error) {
	query := `SELECT ` + webhookFailureColumns + ` FROM webhook_failures`
	var (
		clauses []string
		args    []any
	)
	if provider := strings.TrimSpace(filter.Provider); provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, provider)
	}
	if !filter.IncludeResolved {
		clauses = append(clauses, "resolved_at IS NULL")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY last_failed_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook failures: %w", err)
	}
	defer rows.Close()

	var failures []*WebhookFailure
	for rows.Next() {
		failure, err := scanWebhookFailure(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, failure)
	}
	return failures, rows.Err()
}

// PruneWebhookFailures removes failures whose last attempt was before cutoff.
func (s *Store) PruneWebhookFailures(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM webhook_failures WHERE last_failed_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune webhook failures: %w", err)
	}
	return res.RowsAffected()
}

func scanWebhookFailure(scanner interface{ Scan(dest ...any) error }) (*WebhookFailure, error) {
	var (
		failure     WebhookFailure
		permanent   int
		firstRaw    string
		lastRaw     string
		resolvedRaw sql.NullString
	)
	if err := scanner.Scan(
		&failure.ID,
		&failure.Provider,
		&failure.DeliveryKey,
		&failure.Body,
		&failure.Error,
		&permanent,
		&failure.Attempts,
		&firstRaw,
		&lastRaw,
		&resolvedRaw,
	); err != nil {
		return nil, err
	}
	failure.Permanent = permanent != 0
	var err error
	if failure.FirstFailedAt, err = parseTimeString(firstRaw); err != nil {
		return nil, fmt.Errorf("parse first_failed_at for webhook failure %d: %w", failure.ID, err)
	}
	if failure.LastFailedAt, err = parseTimeString(lastRaw); err != nil {
		return nil, fmt.Errorf("parse last_failed_at for webhook failure %d: %w", failure.ID, err)
	}
	if resolvedRaw.Valid && resolvedRaw.String != "" {
		if ts, err := parseTimeString(resolvedRaw.String); err == nil {
			failure.ResolvedAt = &ts
		}
	}
	return &failure, nil
}
