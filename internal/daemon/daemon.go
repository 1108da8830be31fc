package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/metrics"
	"postflow/internal/queue"
	"postflow/internal/selector"
	"postflow/internal/workflow"
)

// Deps are the collaborators the daemon drives.
type Deps struct {
	Store    *queue.Store
	Manager  *workflow.Manager
	Monitor  *workflow.Monitor
	Selector *selector.Selector
	Metrics  *metrics.Metrics
}

// Daemon coordinates the HTTP surface and background tickers and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	manager  *workflow.Manager
	monitor  *workflow.Monitor
	selector *selector.Selector
	metrics  *metrics.Metrics
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
	Address      string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Manager == nil || deps.Monitor == nil || deps.Selector == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, monitor, and selector")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "postflowd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    deps.Store,
		manager:  deps.Manager,
		monitor:  deps.Monitor,
		selector: deps.Selector,
		metrics:  deps.Metrics,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Handler exposes the HTTP routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.server.Handler
}

// Start acquires the daemon lock, begins serving HTTP on paths.api_bind, and
// launches the optional sweep and start tickers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another postflow daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.startLoops(runCtx)

	d.running.Store(true)
	d.logger.Info("postflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("postflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Sweep runs one stuck-workflow sweep.
func (d *Daemon) Sweep(ctx context.Context) (workflow.SweepSummary, error) {
	return d.monitor.Sweep(ctx)
}

// StartBrand selects the next eligible seed for brand and hands its new
// record to the first stage. A record that was created but could not be
// submitted is still returned; the sweep resubmits it.
func (d *Daemon) StartBrand(ctx context.Context, brand string) (*queue.Item, error) {
	item, err := d.selector.Start(ctx, brand)
	if err != nil {
		return nil, err
	}
	advanced, err := d.manager.Started(ctx, item)
	if err != nil {
		logging.WarnWithContext(d.logger, "workflow created but first stage failed", "start_deferred",
			logging.WorkflowID(item.ID),
			logging.Brand(item.Brand),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the sweep resubmits the record"),
		)
	}
	if advanced != nil {
		return advanced, nil
	}
	return item, nil
}

// Address returns the bound listener address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.manager.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Address:      d.api.address(),
	}
}
