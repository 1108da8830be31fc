package queue

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStaleTransition means the record no longer holds the expected status.
	// Callers treat it as a no-op: another invocation already moved the record.
	ErrStaleTransition = errors.New("stale transition")
	// ErrInvalidTransition rejects backward, same-status, or post-terminal moves.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateContent means the content item already has an active workflow.
	ErrDuplicateContent = errors.New("content already has an active workflow")
)

// SlotOwner formats the slot claim owner for a workflow record.
func SlotOwner(id int64) string {
	return fmt.Sprintf("workflow:%d", id)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
