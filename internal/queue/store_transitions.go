package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Transition moves a record from -> to with compare-and-swap semantics and
// applies patch in the same statement. A record that no longer holds from
// yields ErrStaleTransition; callers treat that as a no-op.
func (s *Store) Transition(ctx context.Context, id int64, from, to Status, patch Patch) (*Item, error) {
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("workflow %d %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}
	sets, patchArgs, err := patch.assignments()
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	head := []string{"status = ?", "status_changed_at = ?", "updated_at = ?"}
	args := []any{to, now, now}
	if to == StatusFailed {
		head = append(head, "failed_stage = ?")
		args = append(args, from)
	}
	args = append(args, patchArgs...)
	args = append(args, id, from)

	query := `UPDATE workflow_items SET ` + strings.Join(append(head, sets...), ", ") +
		` WHERE id = ? AND status = ? RETURNING ` + itemColumns
	item, err := s.queryItemWithRetry(ctx, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrStale(ctx, id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("transition workflow %d %s -> %s: %w", id, from, to, err)
	}
	return item, nil
}

// Annotate writes patch while the record still holds expect. It never touches
// status_changed_at, so annotations cannot mask a stuck record.
func (s *Store) Annotate(ctx context.Context, id int64, expect Status, patch Patch) (*Item, error) {
	sets, patchArgs, err := patch.assignments()
	if err != nil {
		return nil, err
	}
	args := append([]any{s.timestamp()}, patchArgs...)
	args = append(args, id, expect)
	query := `UPDATE workflow_items SET ` + strings.Join(append([]string{"updated_at = ?"}, sets...), ", ") +
		` WHERE id = ? AND status = ? RETURNING ` + itemColumns
	item, err := s.queryItemWithRetry(ctx, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrStale(ctx, id, expect)
	}
	if err != nil {
		return nil, fmt.Errorf("annotate workflow %d: %w", id, err)
	}
	return item, nil
}

// ClaimCaptionJob stores the caption provider job id only when the record is in
// caption_processing and has none yet. Losing the race yields ErrStaleTransition.
func (s *Store) ClaimCaptionJob(ctx context.Context, id int64, jobID string) (*Item, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("claim caption job: job id is required")
	}
	item, err := s.queryItemWithRetry(
		ctx,
		`UPDATE workflow_items SET caption_job_id = ?, updated_at = ?
         WHERE id = ? AND status = ? AND caption_job_id IS NULL
         RETURNING `+itemColumns,
		jobID,
		s.timestamp(),
		id,
		StatusCaptionProcessing,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if missErr := s.missOrStale(ctx, id, StatusCaptionProcessing); !errors.Is(missErr, ErrStaleTransition) {
			return nil, missErr
		}
		return nil, fmt.Errorf("workflow %d already has a caption job: %w", id, ErrStaleTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("claim caption job for workflow %d: %w", id, err)
	}
	return item, nil
}

// RetryReset moves a record one step back from `from`, clears the job id of the
// abandoned stage, and increments retry_count. Once retry_count exceeds
// maxRetries the record fails with last_error "stuck:<from>" instead.
func (s *Store) RetryReset(ctx context.Context, id int64, from Status, maxRetries int, reason string) (*Item, error) {
	if from.IsTerminal() || from.Rank() < 0 {
		return nil, fmt.Errorf("retry reset from %s: %w", from, ErrInvalidTransition)
	}
	return s.bumpRetry(ctx, id, from, from.Previous(), maxRetries, reason)
}

// RecordStuck counts one stuck handling without moving the record. Once
// retry_count exceeds maxRetries the record fails with last_error "stuck:<status>".
func (s *Store) RecordStuck(ctx context.Context, id int64, status Status, maxRetries int, reason string) (*Item, error) {
	if status.IsTerminal() || status.Rank() < 0 {
		return nil, fmt.Errorf("record stuck for %s: %w", status, ErrInvalidTransition)
	}
	return s.bumpRetry(ctx, id, status, status, maxRetries, reason)
}

func (s *Store) bumpRetry(ctx context.Context, id int64, from, to Status, maxRetries int, reason string) (*Item, error) {
	now := s.timestamp()
	exceeded := `retry_count + 1 > ?`
	sets := []string{
		`retry_count = retry_count + 1`,
		`status = CASE WHEN ` + exceeded + ` THEN ? ELSE ? END`,
		`failed_stage = CASE WHEN ` + exceeded + ` THEN status ELSE failed_stage END`,
		`last_error = CASE WHEN ` + exceeded + ` THEN ? ELSE ? END`,
		`status_changed_at = CASE WHEN ` + exceeded + ` OR status != ? THEN ? ELSE status_changed_at END`,
		`updated_at = ?`,
	}
	args := []any{
		maxRetries, StatusFailed, to,
		maxRetries,
		maxRetries, "stuck:" + string(from), nullableString(reason),
		maxRetries, to, now,
		now,
	}
	if column := jobColumnFor(from); column != "" && to != from {
		sets = append(sets, column+` = CASE WHEN `+exceeded+` THEN `+column+` ELSE NULL END`)
		args = append(args, maxRetries)
	}
	args = append(args, id, from)

	query := `UPDATE workflow_items SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND status = ? RETURNING ` + itemColumns
	item, err := s.queryItemWithRetry(ctx, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrStale(ctx, id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("retry workflow %d from %s: %w", id, from, err)
	}
	return item, nil
}

// jobColumnFor names the provider job column abandoned when a record leaves status.
func jobColumnFor(status Status) string {
	switch status {
	case StatusVideoProcessing:
		return "synthesis_job_id"
	case StatusCaptionProcessing:
		return "caption_job_id"
	default:
		return ""
	}
}

// Reopen moves a failed record back to the status it failed from while
// retry_count is below maxRetries. Records that failed while posting return to
// scheduling with their decisions cleared so slots are claimed afresh.
// Completed records are never reopened.
func (s *Store) Reopen(ctx context.Context, id int64, maxRetries int) (*Item, error) {
	now := s.timestamp()
	item, err := s.queryItemWithRetry(
		ctx,
		`UPDATE workflow_items SET
            status = CASE failed_stage WHEN ? THEN ? ELSE failed_stage END,
            schedule_json = CASE failed_stage WHEN ? THEN NULL ELSE schedule_json END,
            retry_count = retry_count + 1,
            last_error = NULL,
            failed_stage = NULL,
            status_changed_at = ?,
            updated_at = ?
         WHERE id = ? AND status = ? AND failed_stage IS NOT NULL AND failed_stage != '' AND retry_count < ?
         RETURNING `+itemColumns,
		StatusPosting, StatusScheduling,
		StatusPosting,
		now,
		now,
		id,
		StatusFailed,
		maxRetries,
	)
	if err == nil {
		return item, nil
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("reopen workflow %d: %w", id, ErrDuplicateContent)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reopen workflow %d: %w", id, err)
	}
	current, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	switch {
	case current == nil:
		return nil, fmt.Errorf("workflow %d: %w", id, ErrNotFound)
	case current.Status != StatusFailed:
		return nil, fmt.Errorf("workflow %d is %s, only failed workflows can be reopened: %w", id, current.Status, ErrInvalidTransition)
	case current.RetryCount >= maxRetries:
		return nil, fmt.Errorf("workflow %d exhausted its %d retries: %w", id, maxRetries, ErrInvalidTransition)
	default:
		return nil, fmt.Errorf("workflow %d has no recorded failed stage: %w", id, ErrInvalidTransition)
	}
}

func (s *Store) missOrStale(ctx context.Context, id int64, expected Status) error {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("workflow %d: %w", id, ErrNotFound)
	}
	return fmt.Errorf("workflow %d is %s, expected %s: %w", id, current.Status, expected, ErrStaleTransition)
}

// ForceFail moves a record from `from` to failed with reason as last_error.
func (s *Store) ForceFail(ctx context.Context, id int64, from Status, reason string) (*Item, error) {
	return s.Transition(ctx, id, from, StatusFailed, Patch{LastError: Set(reason)})
}
