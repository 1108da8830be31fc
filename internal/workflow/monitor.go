package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"postflow/internal/logging"
	"postflow/internal/notifications"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/staging"
)

const (
	sweepLeaseName   = "stuck-sweep"
	stagingMaxAge    = 6 * time.Hour
	deliveryMaxAge   = 7 * 24 * time.Hour
	failureMaxAge    = 30 * 24 * time.Hour
	slotClaimMaxDays = 2
)

// Per-record sweep outcomes, also used as metric labels.
const (
	OutcomeAdvanced  = "advanced"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeStuck     = "stuck"
	OutcomeRetried   = "retried"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// SweepSummary reports what one sweep did.
type SweepSummary struct {
	// LeaseHeld is set when another sweep owned the lease and nothing ran.
	LeaseHeld bool
	Processed int
	Advanced  int
	Completed int
	Failed    int
	Stuck     int
	Retried   int
	Skipped   int
	Errors    int

	ReleasedLocks    int64
	RemovedFiles     int
	PrunedDeliveries int64
	PrunedFailures   int64
	PrunedSlots      int64
	PrunedLeases     int64
	Duration         time.Duration
}

func (s *SweepSummary) record(outcome string) {
	s.Processed++
	switch outcome {
	case OutcomeAdvanced:
		s.Advanced++
	case OutcomeCompleted:
		s.Completed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeStuck:
		s.Stuck++
	case OutcomeRetried:
		s.Retried++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Errors++
	}
}

// Monitor sweeps records that outlived their status threshold.
type Monitor struct {
	manager *Manager
	logger  *slog.Logger
	newID   func() string
}

// NewMonitor builds a sweep that drives records through manager.
func NewMonitor(manager *Manager, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		manager: manager,
		logger:  logging.NewComponentLogger(logger, "stuck-monitor"),
		newID:   uuid.NewString,
	}
}

// Sweep runs one pass. It returns early with LeaseHeld when another sweep is
// running. Per-record failures are counted, never returned.
func (mon *Monitor) Sweep(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary
	started := time.Now()
	store := mon.manager.store
	cfg := mon.manager.cfg

	holder := mon.newID()
	ttl := time.Duration(cfg.Workflow.SweepLease) * time.Second
	acquired, err := store.AcquireLease(ctx, sweepLeaseName, holder, ttl)
	if err != nil {
		return summary, err
	}
	if !acquired {
		summary.LeaseHeld = true
		mon.logger.Info("sweep skipped, lease held by another sweep", logging.String(logging.FieldEventType, "sweep_skipped"))
		return summary, nil
	}
	defer func() {
		if err := store.ReleaseLease(context.WithoutCancel(ctx), sweepLeaseName, holder); err != nil {
			mon.logger.Warn("release sweep lease", logging.Error(err))
		}
	}()

	now := store.Now()
	cutoffs := make(map[queue.Status]time.Time)
	for _, status := range queue.ActiveStatuses() {
		if threshold := cfg.StuckThreshold(string(status)); threshold > 0 {
			cutoffs[status] = now.Add(-threshold)
		}
	}
	candidates, err := store.StuckCandidates(ctx, cutoffs, cfg.Workflow.SweepBatchSize)
	if err != nil {
		return summary, err
	}

	for _, item := range candidates {
		if ctx.Err() != nil {
			break
		}
		outcome := mon.sweepRecord(ctx, item)
		summary.record(outcome)
		mon.manager.metrics.ObserveSweepRecord(outcome)
	}

	mon.housekeeping(ctx, now, &summary)

	summary.Duration = time.Since(started)
	mon.manager.metrics.ObserveSweepDuration(summary.Duration)
	mon.logger.Info("sweep finished",
		logging.String(logging.FieldEventType, "sweep_complete"),
		logging.Int("processed", summary.Processed),
		logging.Int("advanced", summary.Advanced),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("stuck", summary.Stuck),
		logging.Int("retried", summary.Retried),
		logging.Int("errors", summary.Errors),
		logging.Int64("released_locks", summary.ReleasedLocks),
		logging.Int64("pruned_webhook_failures", summary.PrunedFailures),
		logging.Duration("duration", summary.Duration),
	)
	if summary.Failed > 0 || summary.Stuck > 0 {
		mon.manager.publish(ctx, notifications.EventSweepAttention, notifications.Payload{
			"processed": summary.Processed,
			"failed":    summary.Failed,
			"stuck":     summary.Stuck,
		})
	}
	return summary, nil
}

// sweepRecord re-checks one record. A lost provider job steps the record one
// status back and re-runs it; a record that still did not move is counted as
// a stuck handling. Both paths fail the record once its retries run out.
func (mon *Monitor) sweepRecord(ctx context.Context, item *queue.Item) string {
	timeout := time.Duration(mon.manager.cfg.Workflow.RecordTimeout) * time.Second
	recordCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	store := mon.manager.store
	maxRetries := mon.manager.cfg.Workflow.MaxRetries
	from := item.Status
	logger := mon.logger.With(
		logging.WorkflowID(item.ID),
		logging.Status(from),
	)

	updated, err := mon.manager.drive(recordCtx, item, true)
	if errors.Is(err, services.ErrNotFound) {
		at := updated.Status
		reset, resetErr := store.RetryReset(recordCtx, item.ID, at, maxRetries, err.Error())
		if resetErr != nil {
			if errors.Is(resetErr, queue.ErrStaleTransition) {
				return OutcomeSkipped
			}
			logger.Warn("retry reset failed", logging.Error(resetErr))
			return OutcomeError
		}
		mon.manager.observe(ctx, at, reset)
		if reset.Status == queue.StatusFailed {
			return OutcomeFailed
		}
		logger.Info("provider job lost, stepped back",
			logging.String(logging.FieldEventType, "retry_reset"),
			logging.String("reset_to", string(reset.Status)),
			logging.Int("retry_count", reset.RetryCount),
		)
		if _, err := mon.manager.drive(recordCtx, reset, true); err != nil {
			logger.Debug("re-run after retry reset did not finish", logging.Error(err))
		}
		return OutcomeRetried
	}

	if updated != nil && updated.Status != from {
		switch updated.Status {
		case queue.StatusCompleted:
			return OutcomeCompleted
		case queue.StatusFailed:
			return OutcomeFailed
		default:
			return OutcomeAdvanced
		}
	}
	if err != nil && services.IsPermanent(err) {
		return OutcomeFailed
	}

	cause := services.Wrap(services.ErrStuck, string(from), "sweep", fmt.Sprintf("no progress in %s", from), err)
	stuck, stuckErr := store.RecordStuck(recordCtx, item.ID, from, maxRetries, cause.Error())
	if stuckErr != nil {
		if errors.Is(stuckErr, queue.ErrStaleTransition) {
			return OutcomeSkipped
		}
		logger.Warn("record stuck handling failed", logging.Error(stuckErr))
		return OutcomeError
	}
	if stuck.Status == queue.StatusFailed {
		mon.manager.releaseSlots(ctx, stuck)
		mon.manager.observe(ctx, from, stuck)
		return OutcomeFailed
	}
	logging.WarnWithContext(logger, "workflow stuck", "workflow_stuck",
		logging.Int("retry_count", stuck.RetryCount),
		logging.String("error_kind", services.Kind(cause)),
		logging.Error(cause),
	)
	return OutcomeStuck
}

func (mon *Monitor) housekeeping(ctx context.Context, now time.Time, summary *SweepSummary) {
	store := mon.manager.store
	cfg := mon.manager.cfg

	lockCutoff := now.Add(-time.Duration(cfg.Workflow.OrphanLockMinutes) * time.Minute)
	if released, err := store.ReleaseOrphanedLocks(ctx, lockCutoff); err != nil {
		mon.logger.Warn("release orphaned content locks", logging.Error(err))
	} else {
		summary.ReleasedLocks = released
	}

	cleaned := staging.CleanStale(cfg.StagingDir(), stagingMaxAge, now, mon.logger)
	summary.RemovedFiles = len(cleaned.Removed)

	if pruned, err := store.PruneDeliveries(ctx, now.Add(-deliveryMaxAge)); err != nil {
		mon.logger.Warn("prune webhook deliveries", logging.Error(err))
	} else {
		summary.PrunedDeliveries = pruned
	}

	if pruned, err := store.PruneWebhookFailures(ctx, now.Add(-failureMaxAge)); err != nil {
		mon.logger.Warn("prune webhook failures", logging.Error(err))
	} else {
		summary.PrunedFailures = pruned
	}

	day := now.UTC().AddDate(0, 0, -slotClaimMaxDays).Format("2006-01-02")
	if pruned, err := store.PruneSlotClaims(ctx, day); err != nil {
		mon.logger.Warn("prune slot claims", logging.Error(err))
	} else {
		summary.PrunedSlots = pruned
	}

	if pruned, err := store.PruneLeases(ctx); err != nil {
		mon.logger.Warn("prune leases", logging.Error(err))
	} else {
		summary.PrunedLeases = pruned
	}
}
