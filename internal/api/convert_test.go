package api

import (
	"testing"
	"time"

	"postflow/internal/queue"
	"postflow/internal/stage"
	"postflow/internal/workflow"
)

func TestFromItemCarriesScheduleAndDispatches(t *testing.T) {
	at := time.Date(2026, 5, 12, 16, 0, 0, 0, time.UTC)
	item := &queue.Item{
		ID:     7,
		Brand:  "carz",
		Title:  "Spring sale",
		Status: queue.StatusPosting,
		Schedule: []queue.ScheduleDecision{
			{
				Day:         "2026-05-12",
				Hour:        11,
				ScheduledAt: at,
				Timezone:    "America/Chicago",
				Platforms:   []string{"tiktok"},
				Dispatches: []queue.Dispatch{
					{Channel: queue.ChannelScheduler, Platforms: []string{"tiktok"}, PostID: "post-1", At: at},
				},
			},
			{Day: "2026-05-12", Hour: 14, Platforms: []string{"instagram"}, Error: "rate limited"},
		},
		CreatedAt: at,
	}

	dto := FromItem(item)
	if dto.Status != "posting" || dto.Brand != "carz" {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if len(dto.Schedule) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(dto.Schedule))
	}
	if !dto.Schedule[0].Published || dto.Schedule[1].Published {
		t.Fatalf("unexpected published flags: %+v", dto.Schedule)
	}
	if dto.Schedule[0].Dispatches[0].PostID != "post-1" {
		t.Fatalf("expected dispatch post id, got %+v", dto.Schedule[0].Dispatches)
	}
	if dto.CreatedAt != "2026-05-12T16:00:00.000Z" {
		t.Fatalf("unexpected created timestamp %q", dto.CreatedAt)
	}
	if dto.UpdatedAt != "" {
		t.Fatalf("expected empty updated timestamp, got %q", dto.UpdatedAt)
	}
}

func TestFromStatusSummaryOrdersStagesAndFillsCounts(t *testing.T) {
	summary := workflow.StatusSummary{
		Health: queue.HealthSummary{
			Total:    3,
			Active:   2,
			Failed:   1,
			ByStatus: map[queue.Status]int{queue.StatusQueued: 2, queue.StatusFailed: 1},
		},
		StageHealth: map[string]stage.Health{
			"synthesis":  stage.Healthy("synthesis"),
			"captions":   stage.Unhealthy("captions", "api key missing"),
			"publishing": stage.Healthy("publishing"),
		},
	}

	status := FromStatusSummary(summary)
	if status.Total != 3 || status.Failed != 1 {
		t.Fatalf("unexpected totals: %+v", status)
	}
	if status.Counts["queued"] != 2 || status.Counts["completed"] != 0 {
		t.Fatalf("unexpected counts: %v", status.Counts)
	}
	if _, ok := status.Counts["relocating"]; !ok {
		t.Fatalf("expected every status in counts, got %v", status.Counts)
	}
	if len(status.StageHealth) != 3 || status.StageHealth[0].Name != "captions" {
		t.Fatalf("expected sorted stage health, got %+v", status.StageHealth)
	}
	if status.StageHealth[0].Ready || status.StageHealth[0].Detail != "api key missing" {
		t.Fatalf("unexpected captions health: %+v", status.StageHealth[0])
	}
}

func TestFromSweepSummary(t *testing.T) {
	resp := FromSweepSummary(workflow.SweepSummary{
		Processed: 4,
		Advanced:  1,
		Stuck:     2,
		Retried:   1,
		Duration:  1500 * time.Millisecond,
	})
	if !resp.Success || resp.Processed != 4 || resp.Stuck != 2 || resp.DurationMS != 1500 {
		t.Fatalf("unexpected sweep response: %+v", resp)
	}
}

func TestFromWebhookFailuresFormatsResolution(t *testing.T) {
	at := time.Date(2026, 5, 12, 16, 0, 0, 0, time.UTC)
	resolved := at.Add(time.Hour)
	out := FromWebhookFailures([]*queue.WebhookFailure{
		{ID: 1, Provider: "captions", DeliveryKey: "captions:p-1:completed", Error: "503", Attempts: 2, FirstFailedAt: at, LastFailedAt: at},
		nil,
		{ID: 2, Provider: "synthesis", DeliveryKey: "synthesis:j-1:failed", Permanent: true, Attempts: 1, FirstFailedAt: at, LastFailedAt: at, ResolvedAt: &resolved},
	})
	if len(out) != 2 {
		t.Fatalf("expected nil entries skipped, got %d", len(out))
	}
	if out[0].ResolvedAt != "" || out[0].LastFailedAt != "2026-05-12T16:00:00.000Z" {
		t.Fatalf("unexpected open failure: %+v", out[0])
	}
	if !out[1].Permanent || out[1].ResolvedAt != "2026-05-12T17:00:00.000Z" {
		t.Fatalf("unexpected resolved failure: %+v", out[1])
	}
}
