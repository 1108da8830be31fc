package daemon

import (
	"context"
	"errors"
	"time"

	"postflow/internal/logging"
	"postflow/internal/selector"
)

func (d *Daemon) startLoops(ctx context.Context) {
	if seconds := d.cfg.Workflow.SweepInterval; seconds > 0 {
		d.wg.Add(1)
		go d.every(ctx, time.Duration(seconds)*time.Second, d.sweepTick)
	}
	if seconds := d.cfg.Workflow.StartInterval; seconds > 0 {
		d.wg.Add(1)
		go d.every(ctx, time.Duration(seconds)*time.Second, d.startTick)
	}
}

func (d *Daemon) every(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (d *Daemon) sweepTick(ctx context.Context) {
	if _, err := d.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.ErrorWithContext(d.logger, "scheduled sweep failed", "sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}
}

// startTick starts at most one workflow per brand.
func (d *Daemon) startTick(ctx context.Context) {
	for _, brand := range d.cfg.BrandNames() {
		if ctx.Err() != nil {
			return
		}
		_, err := d.StartBrand(ctx, brand)
		switch {
		case err == nil:
		case errors.Is(err, selector.ErrNoContent):
			d.logger.Debug("no eligible content", logging.Brand(brand))
		case errors.Is(err, context.Canceled):
			return
		default:
			logging.WarnWithContext(d.logger, "scheduled start failed", "start_failed",
				logging.Brand(brand),
				logging.Error(err),
			)
		}
	}
}
