package stage

import (
	"context"

	"postflow/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
//
// Advance moves a record out of one of the statuses the handler owns. It must
// be idempotent: a second call with the same record state submits no second
// external job and performs no second transition. recheck is set when the
// stuck sweep invokes the handler; handlers then poll their provider instead
// of waiting for a callback.
type Handler interface {
	Name() string
	Handles() []queue.Status
	Advance(ctx context.Context, item *queue.Item, recheck bool) (*queue.Item, error)
	HealthCheck(context.Context) Health
}
