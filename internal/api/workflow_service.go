package api

import (
	"context"

	"postflow/internal/queue"
)

// WorkflowReader abstracts store interactions needed for API queries.
type WorkflowReader interface {
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Item, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id int64) (*queue.Item, error)
}

// WorkflowService exposes read-only workflow operations returning API DTOs.
type WorkflowService struct {
	store WorkflowReader
}

// NewWorkflowService constructs a WorkflowService around the provided reader.
func NewWorkflowService(store WorkflowReader) *WorkflowService {
	if store == nil {
		return nil
	}
	return &WorkflowService{store: store}
}

// List returns workflows matching filter, newest first.
func (s *WorkflowService) List(ctx context.Context, filter queue.ListFilter) ([]Workflow, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// Stats returns record counts keyed by status string.
func (s *WorkflowService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeCounts(stats), nil
}

// Describe fetches a single workflow. A missing record yields nil, nil.
func (s *WorkflowService) Describe(ctx context.Context, id int64) (*Workflow, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	dto := FromItem(item)
	return &dto, nil
}

// WebhookFailureReader lists dead-lettered webhook deliveries.
type WebhookFailureReader interface {
	ListWebhookFailures(ctx context.Context, filter queue.WebhookFailureFilter) ([]*queue.WebhookFailure, error)
}

// ListWebhookFailures returns failed deliveries matching filter, most recent
// first.
func ListWebhookFailures(ctx context.Context, store WebhookFailureReader, filter queue.WebhookFailureFilter) ([]WebhookFailure, error) {
	failures, err := store.ListWebhookFailures(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromWebhookFailures(failures), nil
}
