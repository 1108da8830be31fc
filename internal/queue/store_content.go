package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContentItem is a candidate seed awaiting video production.
type ContentItem struct {
	ID           int64
	Brand        string
	Title        string
	Body         string
	QualityScore float64
	FeedSource   string
	SourceURL    string
	LockedBy     string
	LockedAt     *time.Time
	Processed    bool
	CreatedAt    time.Time
}

// NewContent carries the fields supplied by the ingestion feed.
type NewContent struct {
	Brand        string
	Title        string
	Body         string
	QualityScore float64
	FeedSource   string
	SourceURL    string
}

// ContentFilter restricts which seeds ClaimNextContent may select.
type ContentFilter struct {
	Brand       string
	FeedSources []string
	MinQuality  float64
}

// AddContent inserts a seed. Re-adding the same brand/source URL returns the
// existing row's id with ErrDuplicateContent.
func (s *Store) AddContent(ctx context.Context, in NewContent) (*ContentItem, error) {
	brand := strings.ToLower(strings.TrimSpace(in.Brand))
	title := strings.TrimSpace(in.Title)
	if brand == "" || title == "" {
		return nil, errors.New("add content: brand and title are required")
	}
	now := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO content_items (brand, title, body, quality_score, feed_source, source_url, processed, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		brand,
		title,
		in.Body,
		in.QualityScore,
		nullableString(strings.TrimSpace(in.FeedSource)),
		nullableString(strings.TrimSpace(in.SourceURL)),
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("add content %q: %w", in.SourceURL, ErrDuplicateContent)
		}
		return nil, fmt.Errorf("insert content: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("content id: %w", err)
	}
	return s.GetContent(ctx, id)
}

// GetContent fetches a seed by id. A missing seed yields nil, nil.
func (s *Store) GetContent(ctx context.Context, id int64) (*ContentItem, error) {
	item, err := scanContent(s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content %d: %w", id, err)
	}
	return item, nil
}

// ClaimNextContent locks the highest-quality eligible seed for holder in a
// single conditional UPDATE. It returns nil, nil when nothing is eligible.
func (s *Store) ClaimNextContent(ctx context.Context, filter ContentFilter, holder string) (*ContentItem, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return nil, errors.New("claim content: holder is required")
	}
	clauses := []string{"processed = 0", "locked_by IS NULL", "quality_score >= ?"}
	args := []any{holder, s.timestamp(), s.timestamp(), filter.MinQuality}
	if brand := strings.ToLower(strings.TrimSpace(filter.Brand)); brand != "" {
		clauses = append(clauses, "brand = ?")
		args = append(args, brand)
	}
	if len(filter.FeedSources) > 0 {
		clauses = append(clauses, "feed_source IN ("+makePlaceholders(len(filter.FeedSources))+")")
		for _, source := range filter.FeedSources {
			args = append(args, source)
		}
	}

	query := `UPDATE content_items SET locked_by = ?, locked_at = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM content_items WHERE ` + strings.Join(clauses, " AND ") + `
            ORDER BY quality_score DESC, created_at ASC, id ASC LIMIT 1
        ) AND locked_by IS NULL
        RETURNING ` + contentColumns

	ctx = ensureContext(ctx)
	var item *ContentItem
	err := retryOnBusy(ctx, func() error {
		var scanErr error
		item, scanErr = scanContent(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim content: %w", err)
	}
	return item, nil
}

// ReleaseContent unlocks a seed, but only if holder still owns the lock.
func (s *Store) ReleaseContent(ctx context.Context, id int64, holder string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE content_items SET locked_by = NULL, locked_at = NULL, updated_at = ?
         WHERE id = ? AND locked_by = ? AND processed = 0`,
		s.timestamp(),
		id,
		holder,
	)
	if err != nil {
		return false, fmt.Errorf("release content %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// MarkContentProcessed records that a seed was published and must not be selected again.
func (s *Store) MarkContentProcessed(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE content_items SET processed = 1, updated_at = ? WHERE id = ?`,
		s.timestamp(),
		id,
	); err != nil {
		return fmt.Errorf("mark content %d processed: %w", id, err)
	}
	return nil
}

// ReleaseOrphanedLocks unlocks seeds locked before cutoff that never received a
// workflow record (the invocation died between claim and create).
func (s *Store) ReleaseOrphanedLocks(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE content_items SET locked_by = NULL, locked_at = NULL, updated_at = ?
         WHERE locked_by IS NOT NULL AND processed = 0 AND locked_at < ?
           AND NOT EXISTS (SELECT 1 FROM workflow_items w WHERE w.content_id = content_items.id)`,
		s.timestamp(),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("release orphaned locks: %w", err)
	}
	return res.RowsAffected()
}

// CountEligibleContent reports how many seeds a brand could still select.
func (s *Store) CountEligibleContent(ctx context.Context, brand string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM content_items WHERE brand = ? AND processed = 0 AND locked_by IS NULL`,
		strings.ToLower(strings.TrimSpace(brand)),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count eligible content: %w", err)
	}
	return count, nil
}
