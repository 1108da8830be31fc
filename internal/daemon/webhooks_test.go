package daemon

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"postflow/internal/api"
	"postflow/internal/queue"
	"postflow/internal/services"
)

const synthesisDone = `{"jobId":"job-1","status":"completed","videoUrl":"https://heygen.test/v.mp4"}`

func TestSynthesisWebhookAdvancesRecord(t *testing.T) {
	h := newHarness(t)
	item := h.startWorkflow(t, "Spring sale")

	rec := h.webhook(t, "/webhooks/synthesis", synthesisDone)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook: %d %s", rec.Code, rec.Body.String())
	}
	var resp api.WebhookResponse
	decode(t, rec, &resp)
	if resp.Status != "processed" || resp.ID != item.ID {
		t.Fatalf("unexpected response: %+v", resp)
	}

	got := h.get(t, item.ID)
	if got.Status != queue.StatusCaptionProcessing || got.CaptionJobID != "project-1" {
		t.Fatalf("expected caption project submitted, got %s %q", got.Status, got.CaptionJobID)
	}
	if got.SynthesisVideoURL != "https://heygen.test/v.mp4" {
		t.Fatalf("unexpected video url %q", got.SynthesisVideoURL)
	}
}

func TestDuplicateWebhookIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.startWorkflow(t, "Spring sale")

	if rec := h.webhook(t, "/webhooks/synthesis", synthesisDone); rec.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", rec.Code)
	}
	rec := h.webhook(t, "/webhooks/synthesis", synthesisDone)
	var resp api.WebhookResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Status != "duplicate" {
		t.Fatalf("expected duplicate ack, got %d %+v", rec.Code, resp)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/webhooks/synthesis", synthesisDone, map[string]string{
		signatureHeader: "sha256=deadbeef",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = h.do(t, http.MethodPost, "/webhooks/synthesis", synthesisDone, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rec.Code)
	}
}

func TestWebhookWithoutSecretSkipsVerification(t *testing.T) {
	h := newHarness(t)
	h.cfg.Webhooks.Secret = ""
	h.startWorkflow(t, "Spring sale")

	rec := h.do(t, http.MethodPost, "/webhooks/synthesis", synthesisDone, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected unsigned delivery to be accepted, got %d", rec.Code)
	}
}

func TestWebhookForUnknownJobIsIgnored(t *testing.T) {
	h := newHarness(t)
	rec := h.webhook(t, "/webhooks/synthesis", `{"jobId":"job-404","status":"completed","videoUrl":"https://x/v.mp4"}`)
	var resp api.WebhookResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Status != "ignored" {
		t.Fatalf("expected ignored ack, got %d %+v", rec.Code, resp)
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	h := newHarness(t)
	if rec := h.webhook(t, "/webhooks/captions", `{"status":"completed"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing project id, got %d", rec.Code)
	}
	if rec := h.webhook(t, "/webhooks/synthesis", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/webhooks/synthesis", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestTransientWebhookFailureAllowsRedelivery(t *testing.T) {
	h := newHarness(t)
	item := h.startWorkflow(t, "Spring sale")
	h.captions.submitErr = services.Wrap(services.ErrTransient, "submagic", "submit", "503", nil)

	rec := h.webhook(t, "/webhooks/synthesis", synthesisDone)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for transient failure, got %d %s", rec.Code, rec.Body.String())
	}
	got := h.get(t, item.ID)
	if got.Status != queue.StatusCaptionProcessing || got.CaptionJobID != "" {
		t.Fatalf("expected callback applied without caption job, got %s %q", got.Status, got.CaptionJobID)
	}

	h.captions.submitErr = nil
	rec = h.webhook(t, "/webhooks/synthesis", synthesisDone)
	var resp api.WebhookResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Status != "processed" {
		t.Fatalf("expected redelivery to be processed, got %d %+v", rec.Code, resp)
	}
	if got := h.get(t, item.ID); got.CaptionJobID != "project-1" {
		t.Fatalf("expected caption project after redelivery, got %q", got.CaptionJobID)
	}
}

func TestCaptionWebhookMovesToRelocating(t *testing.T) {
	h := newHarness(t)
	item := h.startWorkflow(t, "Spring sale")
	if rec := h.webhook(t, "/webhooks/synthesis", synthesisDone); rec.Code != http.StatusOK {
		t.Fatalf("synthesis webhook: %d", rec.Code)
	}

	rec := h.webhook(t, "/webhooks/captions", `{"projectId":"project-1","status":"completed","downloadUrl":"https://submagic.test/styled.mp4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("caption webhook: %d %s", rec.Code, rec.Body.String())
	}
	got := h.get(t, item.ID)
	if got.Status != queue.StatusRelocating || got.StyledURL != "https://submagic.test/styled.mp4" {
		t.Fatalf("expected relocating with styled url, got %s %q", got.Status, got.StyledURL)
	}

	metricsBody := h.do(t, http.MethodGet, "/metrics", "", nil).Body.String()
	if !strings.Contains(metricsBody, `postflow_webhooks_total{outcome="processed",provider="captions"} 1`) {
		t.Fatal("expected webhook counter in metrics output")
	}
}

func TestSynthesisWebhookPermanentFailureIsDeadLettered(t *testing.T) {
	h := newHarness(t)
	item := h.startWorkflow(t, "Spring sale")
	body := `{"jobId":"job-1","status":"completed"}`

	rec := h.webhook(t, "/webhooks/synthesis", body)
	var resp api.WebhookResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Status != "failed" {
		t.Fatalf("expected failed ack, got %d %+v", rec.Code, resp)
	}
	if got := h.get(t, item.ID); got.Status != queue.StatusFailed {
		t.Fatalf("expected record failed, got %s", got.Status)
	}

	var list api.WebhookFailureListResponse
	decode(t, h.do(t, http.MethodGet, "/api/webhooks/failures", "", nil), &list)
	if len(list.Items) != 1 {
		t.Fatalf("expected one failure, got %+v", list.Items)
	}
	failure := list.Items[0]
	if failure.Provider != providerSynthesis || !failure.Permanent || failure.Attempts != 1 || failure.Body != body {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if !strings.Contains(failure.Error, "without a video url") {
		t.Fatalf("expected stage error kept, got %q", failure.Error)
	}

	rec = h.webhook(t, "/webhooks/synthesis", body)
	decode(t, rec, &resp)
	if resp.Status != "duplicate" {
		t.Fatalf("expected permanent failure acknowledged once, got %+v", resp)
	}
}

func TestCaptionWebhookTransientFailureIsDeadLetteredUntilResolved(t *testing.T) {
	h := newHarness(t)
	item := h.startWorkflow(t, "Spring sale")
	if rec := h.webhook(t, "/webhooks/synthesis", synthesisDone); rec.Code != http.StatusOK {
		t.Fatalf("synthesis webhook: %d", rec.Code)
	}
	body := `{"projectId":"project-1","status":"completed","downloadUrl":"https://submagic.test/styled.mp4"}`
	h.hold.fail(services.Wrap(services.ErrTransient, "hold", "advance", "storage busy", nil))

	for attempt := 1; attempt <= 2; attempt++ {
		if rec := h.webhook(t, "/webhooks/captions", body); rec.Code != http.StatusInternalServerError {
			t.Fatalf("attempt %d: expected 500, got %d %s", attempt, rec.Code, rec.Body.String())
		}
	}
	var list api.WebhookFailureListResponse
	decode(t, h.do(t, http.MethodGet, "/api/webhooks/failures?provider=captions", "", nil), &list)
	if len(list.Items) != 1 || list.Items[0].Permanent || list.Items[0].Attempts != 2 {
		t.Fatalf("expected one transient failure with two attempts, got %+v", list.Items)
	}

	h.hold.fail(nil)
	rec := h.webhook(t, "/webhooks/captions", body)
	var resp api.WebhookResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Status != "processed" || resp.ID != item.ID {
		t.Fatalf("expected redelivery processed, got %d %+v", rec.Code, resp)
	}

	decode(t, h.do(t, http.MethodGet, "/api/webhooks/failures", "", nil), &list)
	if len(list.Items) != 0 {
		t.Fatalf("expected resolved failure hidden, got %+v", list.Items)
	}
	decode(t, h.do(t, http.MethodGet, "/api/webhooks/failures?all=true", "", nil), &list)
	if len(list.Items) != 1 || list.Items[0].ResolvedAt == "" {
		t.Fatalf("expected resolved failure listed with all, got %+v", list.Items)
	}
}

func TestWebhookDeliveryInFlightIsNotAcknowledged(t *testing.T) {
	h := newHarness(t)
	item := h.startWorkflow(t, "Spring sale")
	ctx := context.Background()
	key := deliveryKey(providerSynthesis, "job-1", services.JobCompleted)

	// Another request holds the delivery.
	if claim, err := h.store.ClaimDelivery(ctx, key, time.Minute); err != nil || claim != queue.DeliveryNew {
		t.Fatalf("ClaimDelivery: %d %v", claim, err)
	}
	rec := h.webhook(t, "/webhooks/synthesis", synthesisDone)
	var resp api.WebhookResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusConflict || resp.Status != "in_flight" || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 409 in_flight with Retry-After, got %d %+v", rec.Code, resp)
	}
	if got := h.get(t, item.ID); got.Status != queue.StatusVideoProcessing {
		t.Fatalf("expected record untouched, got %s", got.Status)
	}

	// The holder fails and un-records the delivery; the redelivery applies.
	if err := h.store.ForgetDelivery(ctx, key); err != nil {
		t.Fatalf("ForgetDelivery: %v", err)
	}
	rec = h.webhook(t, "/webhooks/synthesis", synthesisDone)
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Status != "processed" {
		t.Fatalf("expected redelivery processed, got %d %+v", rec.Code, resp)
	}
	if got := h.get(t, item.ID); got.Status != queue.StatusCaptionProcessing {
		t.Fatalf("expected caption_processing, got %s", got.Status)
	}
}

func TestWebhookFailuresRequireTokenWhenConfigured(t *testing.T) {
	h := newHarness(t)
	h.cfg.Paths.APIToken = "reader"
	h.handler = newAPIServer(h.cfg, h.daemon, nil).server.Handler

	if rec := h.do(t, http.MethodGet, "/api/webhooks/failures", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec := h.do(t, http.MethodGet, "/api/webhooks/failures", "", map[string]string{"Authorization": "Bearer reader"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}
