package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"postflow/internal/api"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/services/heygen"
	"postflow/internal/services/submagic"
)

const (
	providerSynthesis = "synthesis"
	providerCaptions  = "captions"

	maxWebhookBody = 1 << 20

	// deliveryClaimTTL bounds how long an unfinished delivery blocks redelivery.
	deliveryClaimTTL = 5 * time.Minute
)

// webhookEvent is a decoded callback ready to apply.
type webhookEvent struct {
	key   string
	apply func(context.Context) (*queue.Item, error)
}

func (s *apiServer) handleSynthesisWebhook(w http.ResponseWriter, r *http.Request) {
	s.serveWebhook(w, r, providerSynthesis, func(body []byte) (webhookEvent, error) {
		cb, err := heygen.ParseCallback(body)
		if err != nil {
			return webhookEvent{}, err
		}
		return webhookEvent{
			key: deliveryKey(providerSynthesis, cb.JobID, cb.Status.State),
			apply: func(ctx context.Context) (*queue.Item, error) {
				return s.daemon.manager.SynthesisCallback(ctx, cb)
			},
		}, nil
	})
}

func (s *apiServer) handleCaptionWebhook(w http.ResponseWriter, r *http.Request) {
	s.serveWebhook(w, r, providerCaptions, func(body []byte) (webhookEvent, error) {
		cb, err := submagic.ParseCallback(body)
		if err != nil {
			return webhookEvent{}, err
		}
		return webhookEvent{
			key: deliveryKey(providerCaptions, cb.ProjectID, cb.Status.State),
			apply: func(ctx context.Context) (*queue.Item, error) {
				return s.daemon.manager.CaptionCallback(ctx, cb)
			},
		}, nil
	})
}

// serveWebhook verifies, de-duplicates, and applies one provider callback.
// Unknown jobs and duplicates are acknowledged so providers stop retrying. A
// delivery still being applied by another request answers 409 so the
// provider redelivers later. Transient failures un-record the delivery and
// answer 500. Failed deliveries are kept in the dead-letter table.
func (s *apiServer) serveWebhook(w http.ResponseWriter, r *http.Request, provider string, decode func([]byte) (webhookEvent, error)) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	observe := func(outcome string) { s.daemon.metrics.ObserveWebhook(provider, outcome) }

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		observe("invalid")
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if !verifySignature(s.cfg.Webhooks.Secret, body, r.Header.Get(signatureHeader)) {
		observe("unauthorized")
		s.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	event, err := decode(body)
	if err != nil {
		observe("invalid")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := services.WithRequestID(r.Context(), requestID(r))
	logger := logging.WithContext(ctx, s.log()).With(
		logging.String("provider", provider),
		logging.String("delivery", event.key),
	)
	store := s.daemon.store

	claim, err := store.ClaimDelivery(ctx, event.key, deliveryClaimTTL)
	if err != nil {
		observe("error")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch claim {
	case queue.DeliveryDone:
		observe("duplicate")
		logger.Debug("duplicate webhook delivery")
		s.writeJSON(w, http.StatusOK, api.WebhookResponse{Received: true, Status: "duplicate"})
		return
	case queue.DeliveryInFlight:
		observe("in_flight")
		logger.Debug("webhook delivery already in flight")
		w.Header().Set("Retry-After", "30")
		s.writeJSON(w, http.StatusConflict, api.WebhookResponse{Received: true, Status: "in_flight"})
		return
	}

	item, err := event.apply(ctx)
	// Bookkeeping must survive a client disconnect.
	storeCtx := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		observe("processed")
		s.completeDelivery(storeCtx, logger, event.key)
		if resolveErr := store.ResolveWebhookFailure(storeCtx, event.key); resolveErr != nil {
			logger.Warn("resolve webhook failure", logging.Error(resolveErr))
		}
		resp := api.WebhookResponse{Received: true, Status: "processed"}
		if item != nil {
			resp.ID = item.ID
		}
		s.writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, services.ErrNotFound) || errors.Is(err, queue.ErrNotFound):
		observe("ignored")
		s.completeDelivery(storeCtx, logger, event.key)
		logger.Info("webhook for unknown job ignored", logging.Error(err))
		s.writeJSON(w, http.StatusOK, api.WebhookResponse{Received: true, Status: "ignored"})
	case services.IsPermanent(err):
		observe("failed")
		s.completeDelivery(storeCtx, logger, event.key)
		s.deadLetter(storeCtx, logger, provider, event.key, body, err, true)
		resp := api.WebhookResponse{Received: true, Status: "failed"}
		if item != nil {
			resp.ID = item.ID
		}
		s.writeJSON(w, http.StatusOK, resp)
	default:
		observe("error")
		if forgetErr := store.ForgetDelivery(storeCtx, event.key); forgetErr != nil {
			logger.Warn("forget webhook delivery", logging.Error(forgetErr))
		}
		s.deadLetter(storeCtx, logger, provider, event.key, body, err, false)
		logging.WarnWithContext(logger, "webhook handling failed", "webhook_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "provider redelivery or the sweep retries the record"),
		)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) completeDelivery(ctx context.Context, logger *slog.Logger, key string) {
	if err := s.daemon.store.CompleteDelivery(ctx, key); err != nil {
		logger.Warn("complete webhook delivery", logging.Error(err))
	}
}

// deadLetter keeps the raw callback so it can be inspected and replayed.
func (s *apiServer) deadLetter(ctx context.Context, logger *slog.Logger, provider, key string, body []byte, cause error, permanent bool) {
	failure, err := s.daemon.store.RecordWebhookFailure(ctx, provider, key, body, cause, permanent)
	if err != nil {
		logging.WarnWithContext(logger, "webhook failure not recorded", "webhook_dead_letter_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "callback body is only in the logs"),
		)
		return
	}
	logger.Info("webhook failure recorded",
		logging.Int64("failure_id", failure.ID),
		logging.Int("attempts", failure.Attempts),
		logging.Bool("permanent", permanent),
		logging.String(logging.FieldEventType, "webhook_dead_letter"),
	)
}

func deliveryKey(provider, jobID string, state services.JobState) string {
	return strings.Join([]string{provider, strings.TrimSpace(jobID), string(state)}, ":")
}

func newRequestID() string {
	return uuid.NewString()
}
