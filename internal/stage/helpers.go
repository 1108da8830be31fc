package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"postflow/internal/queue"
	"postflow/internal/services"
)

// Settle turns a lost compare-and-swap into a no-op. When err is
// queue.ErrStaleTransition the latest record is reloaded and returned without
// error; any other error passes through unchanged.
func Settle(ctx context.Context, store *queue.Store, id int64, updated *queue.Item, err error) (*queue.Item, error) {
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, queue.ErrStaleTransition) {
		return nil, err
	}
	current, getErr := store.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current == nil {
		return nil, queue.ErrNotFound
	}
	return current, nil
}

// RequireField returns a validation error when value is blank.
func RequireField(stageName, field, value string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return services.Wrap(services.ErrValidation, stageName, "validate", "missing "+field, nil)
}

// SubmitLeaseTTL is how long an unreleased submit lease blocks other
// invocations, for example after a crash mid-submit.
const SubmitLeaseTTL = 10 * time.Minute

// ClaimSubmit takes the lease guarding stageName's provider submission for
// record id. ok is false while another invocation holds it. release is always
// non-nil and drops the lease when ok is true.
func ClaimSubmit(ctx context.Context, store *queue.Store, stageName string, id int64) (release func(), ok bool, err error) {
	name := fmt.Sprintf("submit:%s:%d", stageName, id)
	holder := uuid.NewString()
	ok, err = store.AcquireLease(ctx, name, holder, SubmitLeaseTTL)
	if err != nil || !ok {
		return func() {}, false, err
	}
	return func() {
		// A failed release expires with the lease.
		_ = store.ReleaseLease(context.WithoutCancel(ctx), name, holder)
	}, true, nil
}
