package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create inserts a new workflow record in the queued state.
func (s *Store) Create(ctx context.Context, in NewItem) (*Item, error) {
	brand := strings.ToLower(strings.TrimSpace(in.Brand))
	if brand == "" {
		return nil, errors.New("create workflow: brand is required")
	}
	now := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO workflow_items (
            brand, content_id, title, caption, script, presenter, video_index,
            status, created_at, status_changed_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		brand,
		nullableInt64(in.ContentID),
		strings.TrimSpace(in.Title),
		in.Caption,
		in.Script,
		nullableString(in.Presenter),
		in.VideoIndex,
		StatusQueued,
		now,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create workflow for content %d: %w", in.ContentID, ErrDuplicateContent)
		}
		return nil, fmt.Errorf("insert workflow: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("workflow id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a workflow record by identifier. A missing record yields nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM workflow_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %d: %w", id, err)
	}
	return item, nil
}

// FindBySynthesisJob returns the record that owns a synthesis provider job.
func (s *Store) FindBySynthesisJob(ctx context.Context, jobID string) (*Item, error) {
	return s.findByColumn(ctx, "synthesis_job_id", jobID)
}

// FindByCaptionJob returns the record that owns a caption provider job.
func (s *Store) FindByCaptionJob(ctx context.Context, jobID string) (*Item, error) {
	return s.findByColumn(ctx, "caption_job_id", jobID)
}

func (s *Store) findByColumn(ctx context.Context, column, value string) (*Item, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM workflow_items WHERE `+column+` = ? LIMIT 1`, value)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find workflow by %s: %w", column, err)
	}
	return item, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses []Status
	Brand    string
	Limit    int
}

// List returns workflow records, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM workflow_items`
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if brand := strings.ToLower(strings.TrimSpace(filter.Brand)); brand != "" {
		clauses = append(clauses, `brand = ?`)
		args = append(args, brand)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountCreatedBetween counts a brand's workflow records created in [from, to).
// The selector uses it to derive the per-day video index.
func (s *Store) CountCreatedBetween(ctx context.Context, brand string, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM workflow_items WHERE brand = ? AND created_at >= ? AND created_at < ?`,
		strings.ToLower(strings.TrimSpace(brand)),
		formatTime(from),
		formatTime(to),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count workflows: %w", err)
	}
	return count, nil
}

// StuckCandidates returns active records whose status_changed_at is older than
// the per-status cutoff, oldest first. Statuses without a cutoff are ignored.
func (s *Store) StuckCandidates(ctx context.Context, cutoffs map[Status]time.Time, limit int) ([]*Item, error) {
	if len(cutoffs) == 0 {
		return nil, nil
	}
	var (
		clauses []string
		args    []any
	)
	for _, status := range ActiveStatuses() {
		cutoff, ok := cutoffs[status]
		if !ok {
			continue
		}
		clauses = append(clauses, `(status = ? AND status_changed_at < ?)`)
		args = append(args, status, formatTime(cutoff))
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + ` FROM workflow_items WHERE ` + strings.Join(clauses, " OR ") +
		` ORDER BY status_changed_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stuck candidates: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
