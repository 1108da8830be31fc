package api

import (
	"context"
	"errors"

	"postflow/internal/queue"
)

// Reopener captures the store operations needed to retry failed workflows.
type Reopener interface {
	GetByID(ctx context.Context, id int64) (*queue.Item, error)
	Reopen(ctx context.Context, id int64, maxRetries int) (*queue.Item, error)
}

type RetryOutcome string

const (
	RetryUpdated   RetryOutcome = "retried"
	RetryNotFound  RetryOutcome = "not_found"
	RetryNotFailed RetryOutcome = "not_failed"
	RetryExhausted RetryOutcome = "retries_exhausted"
	RetryDuplicate RetryOutcome = "content_in_flight"
	RetryNoStage   RetryOutcome = "no_failed_stage"
)

type RetryResult struct {
	ID        int64        `json:"id"`
	Outcome   RetryOutcome `json:"outcome"`
	NewStatus string       `json:"newStatus,omitempty"`
}

type RetryResults struct {
	UpdatedCount int64         `json:"updatedCount"`
	Items        []RetryResult `json:"items"`
	// Reopened holds the records that moved, for the caller to drive.
	Reopened []*queue.Item `json:"-"`
}

// RetryFailedByID reopens each failed workflow at the status it failed from,
// bounded by maxRetries. Records in any other state are reported, not changed.
func RetryFailedByID(ctx context.Context, store Reopener, ids []int64, maxRetries int) (RetryResults, error) {
	result := RetryResults{Items: make([]RetryResult, 0, len(ids))}
	for _, id := range ids {
		item, err := store.GetByID(ctx, id)
		if err != nil {
			return RetryResults{}, err
		}
		switch {
		case item == nil:
			result.Items = append(result.Items, RetryResult{ID: id, Outcome: RetryNotFound})
			continue
		case item.Status != queue.StatusFailed:
			result.Items = append(result.Items, RetryResult{ID: id, Outcome: RetryNotFailed})
			continue
		case item.RetryCount >= maxRetries:
			result.Items = append(result.Items, RetryResult{ID: id, Outcome: RetryExhausted})
			continue
		}

		updated, err := store.Reopen(ctx, id, maxRetries)
		switch {
		case err == nil:
			result.UpdatedCount++
			result.Reopened = append(result.Reopened, updated)
			result.Items = append(result.Items, RetryResult{ID: id, Outcome: RetryUpdated, NewStatus: string(updated.Status)})
		case errors.Is(err, queue.ErrDuplicateContent):
			result.Items = append(result.Items, RetryResult{ID: id, Outcome: RetryDuplicate})
		case errors.Is(err, queue.ErrInvalidTransition):
			result.Items = append(result.Items, RetryResult{ID: id, Outcome: RetryNoStage})
		default:
			return RetryResults{}, err
		}
	}
	return result, nil
}
