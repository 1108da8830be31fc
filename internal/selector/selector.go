// Package selector picks the next content seed for a brand and starts its
// workflow record.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/llm"
)

const (
	componentName       = "selector"
	scriptWriterTimeout = 90 * time.Second
)

// ErrNoContent means the brand has no eligible seed right now.
var ErrNoContent = errors.New("no eligible content")

// ScriptWriter drafts the spoken script, title, and caption for a seed.
type ScriptWriter interface {
	WriteScript(ctx context.Context, seed llm.Seed) (llm.Script, error)
}

// Selector locks content seeds and turns them into queued workflow records.
type Selector struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	writer ScriptWriter
	newID  func() string
}

// Option customizes a Selector.
type Option func(*Selector)

// WithScriptWriter drafts scripts through w instead of speaking the article
// body verbatim.
func WithScriptWriter(w ScriptWriter) Option {
	return func(s *Selector) {
		s.writer = w
	}
}

// New constructs a selector.
func New(store *queue.Store, cfg *config.Config, logger *slog.Logger, opts ...Option) *Selector {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Selector{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, componentName),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start claims the best eligible seed for brand and creates its record.
// ErrNoContent is returned when nothing is eligible. When record creation
// fails the seed lock is released so a later invocation can retry it.
func (s *Selector) Start(ctx context.Context, brand string) (*queue.Item, error) {
	brand = strings.ToLower(strings.TrimSpace(brand))
	settings, ok := s.cfg.Brand(brand)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "start", "unknown brand "+brand, nil)
	}
	if len(settings.Presenters) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "start", "brand "+brand+" has no presenters", nil)
	}

	invocation := s.newID()
	content, err := s.store.ClaimNextContent(ctx, queue.ContentFilter{
		Brand:       brand,
		FeedSources: settings.FeedSources,
		MinQuality:  settings.MinQuality,
	}, invocation)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, ErrNoContent
	}

	item, err := s.create(ctx, brand, settings, content)
	if err != nil {
		if released, releaseErr := s.store.ReleaseContent(context.WithoutCancel(ctx), content.ID, invocation); releaseErr != nil {
			s.logger.Warn("release content lock after failed start",
				logging.Int64("content_id", content.ID),
				logging.Error(releaseErr),
			)
		} else if !released {
			s.logger.Debug("content lock already released", logging.Int64("content_id", content.ID))
		}
		return nil, err
	}

	s.logger.Info("workflow started",
		logging.WorkflowID(item.ID),
		logging.Int64("content_id", content.ID),
		logging.Brand(brand),
		logging.String("presenter", item.Presenter),
		logging.Int("video_index", item.VideoIndex),
		logging.String(logging.FieldCorrelationID, invocation),
	)
	return item, nil
}

func (s *Selector) create(ctx context.Context, brand string, settings config.Brand, content *queue.ContentItem) (*queue.Item, error) {
	position, err := s.store.NextRotation(ctx, brand)
	if err != nil {
		return nil, err
	}
	presenter := settings.Presenters[position%len(settings.Presenters)]

	index, err := s.videoIndex(ctx, brand)
	if err != nil {
		return nil, err
	}

	draft := s.draft(ctx, brand, content)
	item, err := s.store.Create(ctx, queue.NewItem{
		Brand:      brand,
		ContentID:  content.ID,
		Title:      draft.Title,
		Caption:    draft.Caption,
		Script:     draft.Script,
		Presenter:  presenter,
		VideoIndex: index,
	})
	if err != nil {
		return nil, fmt.Errorf("start workflow for content %d: %w", content.ID, err)
	}
	return item, nil
}

// draft returns the record's script, title, and caption. The article is used
// as-is when no writer is configured or the writer fails.
func (s *Selector) draft(ctx context.Context, brand string, content *queue.ContentItem) llm.Script {
	fallback := llm.Script{Script: strings.TrimSpace(content.Body), Title: content.Title, Caption: content.Title}
	if fallback.Script == "" {
		fallback.Script = content.Title
	}
	if s.writer == nil {
		return fallback
	}

	writeCtx, cancel := context.WithTimeout(ctx, scriptWriterTimeout)
	defer cancel()
	written, err := s.writer.WriteScript(writeCtx, llm.Seed{Brand: brand, Title: content.Title, Body: content.Body})
	if err != nil {
		logging.WarnWithContext(s.logger, "script drafting failed", "script_draft_failed",
			logging.Int64("content_id", content.ID),
			logging.String(logging.FieldErrorHint, "check llm.api_key and llm.model"),
			logging.String(logging.FieldImpact, "article text used as the script"),
			logging.Error(err),
		)
		return fallback
	}
	if written.Title == "" {
		written.Title = fallback.Title
	}
	if written.Caption == "" {
		written.Caption = fallback.Caption
	}
	return written
}

// videoIndex is the number of records the brand already started today, in the
// brand's own timezone.
func (s *Selector) videoIndex(ctx context.Context, brand string) (int, error) {
	loc, err := s.cfg.BrandLocation(brand)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, componentName, "video index", "brand timezone", err)
	}
	now := s.store.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return s.store.CountCreatedBetween(ctx, brand, start, start.AddDate(0, 0, 1))
}
