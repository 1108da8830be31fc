package api

import (
	"slices"
	"time"

	"postflow/internal/queue"
	"postflow/internal/stage"
	"postflow/internal/workflow"
)

// FromItem converts a workflow record to its API representation.
func FromItem(item *queue.Item) Workflow {
	if item == nil {
		return Workflow{}
	}
	dto := Workflow{
		ID:                item.ID,
		Brand:             item.Brand,
		ContentID:         item.ContentID,
		Title:             item.Title,
		Presenter:         item.Presenter,
		VideoIndex:        item.VideoIndex,
		Status:            string(item.Status),
		SynthesisJobID:    item.SynthesisJobID,
		SynthesisVideoURL: item.SynthesisVideoURL,
		CaptionJobID:      item.CaptionJobID,
		StyledURL:         item.StyledURL,
		FinalAssetURL:     item.FinalAssetURL,
		RetryCount:        item.RetryCount,
		LastError:         item.LastError,
		FailedStage:       string(item.FailedStage),
		CreatedAt:         FormatTime(item.CreatedAt),
		StatusChangedAt:   FormatTime(item.StatusChangedAt),
		UpdatedAt:         FormatTime(item.UpdatedAt),
	}
	for _, decision := range item.Schedule {
		dto.Schedule = append(dto.Schedule, fromDecision(decision))
	}
	return dto
}

// FromItems converts a slice of workflow records into API DTOs.
func FromItems(items []*queue.Item) []Workflow {
	if len(items) == 0 {
		return nil
	}
	out := make([]Workflow, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// FromWebhookFailures converts dead-lettered deliveries into API DTOs.
func FromWebhookFailures(failures []*queue.WebhookFailure) []WebhookFailure {
	out := make([]WebhookFailure, 0, len(failures))
	for _, f := range failures {
		if f == nil {
			continue
		}
		dto := WebhookFailure{
			ID:            f.ID,
			Provider:      f.Provider,
			DeliveryKey:   f.DeliveryKey,
			Error:         f.Error,
			Permanent:     f.Permanent,
			Attempts:      f.Attempts,
			FirstFailedAt: FormatTime(f.FirstFailedAt),
			LastFailedAt:  FormatTime(f.LastFailedAt),
			Body:          f.Body,
		}
		if f.ResolvedAt != nil {
			dto.ResolvedAt = FormatTime(*f.ResolvedAt)
		}
		out = append(out, dto)
	}
	return out
}

func fromDecision(d queue.ScheduleDecision) Decision {
	out := Decision{
		Day:         d.Day,
		Hour:        d.Hour,
		ScheduledAt: FormatTime(d.ScheduledAt),
		Timezone:    d.Timezone,
		Platforms:   d.Platforms,
		Published:   d.Succeeded(),
		Error:       d.Error,
	}
	for _, dispatch := range d.Dispatches {
		out.Dispatches = append(out.Dispatches, Dispatch{
			Channel:   dispatch.Channel,
			Platforms: dispatch.Platforms,
			PostID:    dispatch.PostID,
			Error:     dispatch.Error,
			At:        FormatTime(dispatch.At),
		})
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Total:       summary.Health.Total,
		Active:      summary.Health.Active,
		Failed:      summary.Health.Failed,
		Completed:   summary.Health.Completed,
		Counts:      MergeCounts(summary.Health.ByStatus),
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
}

// FromSweepSummary converts a sweep result to its API payload.
func FromSweepSummary(summary workflow.SweepSummary) SweepResponse {
	return SweepResponse{
		Success:    true,
		Skipped:    summary.LeaseHeld,
		Processed:  summary.Processed,
		Advanced:   summary.Advanced,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Stuck:      summary.Stuck,
		Retried:    summary.Retried,
		Unchanged:  summary.Skipped,
		Errors:     summary.Errors,
		DurationMS: summary.Duration.Milliseconds(),
	}
}

// MergeCounts produces a string-keyed representation of status counts that
// lists every status, including empty ones.
func MergeCounts(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
