package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks provider timeouts, 5xx responses, and network failures.
	// The record keeps its status and the monitor retries it later.
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks malformed payloads or missing required fields. The
	// record fails immediately.
	ErrValidation = errors.New("validation error")
	// ErrStuck marks a record that exceeded its status threshold.
	ErrStuck = errors.New("stuck workflow")
	// ErrSlotCollision marks a lost slot claim. It never reaches callers of the planner.
	ErrSlotCollision = errors.New("slot collision")
	// ErrPartialDispatch marks a publish where some decisions failed and at
	// least one succeeded.
	ErrPartialDispatch = errors.New("partial dispatch")
	ErrConfiguration   = errors.New("configuration error")
	// ErrNotFound marks a provider job the provider no longer knows about.
	ErrNotFound = errors.New("not found")
	ErrTimeout  = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether err should fail the record without retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration)
}

// IsRetryable reports whether err leaves the record in place for a later retry.
func IsRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return true
}

// Kind returns a short label for the error marker, used in metrics and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStuck):
		return "stuck"
	case errors.Is(err, ErrSlotCollision):
		return "slot_collision"
	case errors.Is(err, ErrPartialDispatch):
		return "partial_dispatch"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
