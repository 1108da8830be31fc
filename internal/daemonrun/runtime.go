package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"postflow/internal/captions"
	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/metrics"
	"postflow/internal/notifications"
	"postflow/internal/objectstore"
	"postflow/internal/publishing"
	"postflow/internal/queue"
	"postflow/internal/relocation"
	"postflow/internal/scheduling"
	"postflow/internal/selector"
	"postflow/internal/services/heygen"
	"postflow/internal/services/httpx"
	"postflow/internal/services/late"
	"postflow/internal/services/llm"
	"postflow/internal/services/submagic"
	"postflow/internal/services/youtube"
	"postflow/internal/stage"
	"postflow/internal/synthesis"
	"postflow/internal/workflow"
)

const relocationTimeout = 10 * time.Minute

// Runtime holds the wired pipeline shared by the daemon and one-shot CLI
// commands.
type Runtime struct {
	Store    *queue.Store
	Manager  *workflow.Manager
	Monitor  *workflow.Monitor
	Selector *selector.Selector
	Planner  *scheduling.Planner
	Claimer  scheduling.SlotClaimer
	Metrics  *metrics.Metrics

	redis *redis.Client
}

// Build opens the store and assembles every stage against the configured
// providers. Callers must Close the runtime.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open workflow store: %w", err)
	}
	rt := &Runtime{Store: store, Metrics: metrics.New()}

	claimer, err := rt.openClaimer(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Claimer = claimer

	uploader, err := objectstore.NewS3(ctx, cfg.Storage)
	if err != nil {
		// Relocation reports itself unhealthy and fails records until storage is fixed.
		logging.WarnWithContext(logger, "object storage unavailable", "storage_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check [storage] bucket and credentials"),
			logging.String(logging.FieldImpact, "records will fail at relocating"),
		)
	}

	var direct publishing.DirectUploader
	if yt := youtube.New(cfg.YouTube, nil); yt.Enabled() {
		direct = yt
	}

	rt.Planner = scheduling.NewPlanner(cfg, claimer,
		scheduling.WithMetrics(rt.Metrics),
		scheduling.WithLogger(logger),
	)
	publisher := publishing.NewPublisher(cfg, late.New(cfg.Late), direct, rt.Metrics, logger)

	synth := synthesis.NewStage(store, cfg, heygen.New(cfg.HeyGen), logger)
	capt := captions.NewStage(store, cfg, submagic.New(cfg.Submagic), logger)
	download := httpx.New(httpx.Config{Name: "relocation", Timeout: relocationTimeout})

	handlers := []stage.Handler{
		synth,
		capt,
		relocation.NewStage(store, cfg, objectUploader(uploader), download, logger),
		scheduling.NewStage(store, cfg, rt.Planner, claimer, logger),
		publishing.NewStage(store, cfg, publisher, claimer, logger),
	}

	rt.Manager = workflow.NewManager(cfg, store, logger, handlers,
		workflow.WithNotifier(notifications.NewService(cfg)),
		workflow.WithMetrics(rt.Metrics),
		workflow.WithSlotClaimer(claimer),
		workflow.WithCallbacks(synth, capt),
	)
	rt.Monitor = workflow.NewMonitor(rt.Manager, logger)
	var selectorOpts []selector.Option
	if writer := llm.New(cfg.LLM); writer.Enabled() {
		selectorOpts = append(selectorOpts, selector.WithScriptWriter(writer))
	}
	rt.Selector = selector.New(store, cfg, logger, selectorOpts...)
	return rt, nil
}

func (rt *Runtime) openClaimer(cfg *config.Config) (scheduling.SlotClaimer, error) {
	if cfg.Scheduling.ClaimBackend != "redis" {
		return scheduling.NewSQLiteClaimer(rt.Store), nil
	}
	client, err := scheduling.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("redis claim backend: %w", err)
	}
	rt.redis = client
	ttl := time.Duration(cfg.Redis.SlotTTLHours) * time.Hour
	return scheduling.NewRedisClaimer(client, cfg.Redis.KeyPrefix, ttl), nil
}

// objectUploader keeps a nil *S3 from becoming a non-nil interface.
func objectUploader(s3 *objectstore.S3) objectstore.Uploader {
	if s3 == nil {
		return nil
	}
	return s3
}

// Close releases the store and any redis connection.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	return errors.Join(errs...)
}
