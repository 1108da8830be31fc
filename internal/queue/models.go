package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a workflow record.
type Status string

const (
	StatusQueued            Status = "queued"
	StatusVideoProcessing   Status = "video_processing"
	StatusCaptionProcessing Status = "caption_processing"
	StatusRelocating        Status = "relocating"
	StatusScheduling        Status = "scheduling"
	StatusPosting           Status = "posting"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// lifecycle is the forward ordering. Failed is terminal and ranks with completed.
var lifecycle = []Status{
	StatusQueued,
	StatusVideoProcessing,
	StatusCaptionProcessing,
	StatusRelocating,
	StatusScheduling,
	StatusPosting,
	StatusCompleted,
}

var statusRank = func() map[Status]int {
	ranks := make(map[Status]int, len(lifecycle)+1)
	for i, status := range lifecycle {
		ranks[status] = i
	}
	ranks[StatusFailed] = len(lifecycle) - 1
	return ranks
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	out := make([]Status, 0, len(lifecycle)+1)
	out = append(out, lifecycle...)
	return append(out, StatusFailed)
}

// ActiveStatuses returns every non-terminal status in lifecycle order.
func ActiveStatuses() []Status {
	out := make([]Status, 0, len(lifecycle)-1)
	for _, status := range lifecycle {
		if !status.IsTerminal() {
			out = append(out, status)
		}
	}
	return out
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusRank[normalized]
	return normalized, ok
}

// Rank returns the position of s in the lifecycle, or -1 for unknown values.
func (s Status) Rank() int {
	if rank, ok := statusRank[s]; ok {
		return rank
	}
	return -1
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Previous returns the status one step back. Queued has no predecessor and
// maps to itself.
func (s Status) Previous() Status {
	rank := s.Rank()
	if rank <= 0 || s.IsTerminal() {
		return StatusQueued
	}
	return lifecycle[rank-1]
}

// CanTransition reports whether from -> to moves forward along the lifecycle.
// Any active status may move to failed.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() || from.Rank() < 0 || to.Rank() < 0 {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return to.Rank() > from.Rank()
}

// Item represents a workflow record persisted in SQLite.
type Item struct {
	ID                int64
	Brand             string
	ContentID         int64
	Title             string
	Caption           string
	Script            string
	Presenter         string
	VideoIndex        int
	Status            Status
	SynthesisJobID    string
	SynthesisVideoURL string
	CaptionJobID      string
	StyledURL         string
	FinalAssetURL     string
	Schedule          []ScheduleDecision
	RetryCount        int
	LastError         string
	FailedStage       Status
	CreatedAt         time.Time
	StatusChangedAt   time.Time
	UpdatedAt         time.Time
}

// Age returns how long the record has held its current status.
func (i Item) Age(now time.Time) time.Duration {
	return now.Sub(i.StatusChangedAt)
}

// SlotOwner is the claim owner recorded for this record's schedule slots.
func (i Item) SlotOwner() string {
	return SlotOwner(i.ID)
}

// NewItem carries the fields required to create a workflow record.
type NewItem struct {
	Brand      string
	ContentID  int64
	Title      string
	Caption    string
	Script     string
	Presenter  string
	VideoIndex int
}

// Dispatch records one outbound publish call for a decision.
type Dispatch struct {
	Channel   string    `json:"channel"`
	Platforms []string  `json:"platforms"`
	PostID    string    `json:"postId,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Succeeded reports whether the call produced a platform or scheduler id.
func (d Dispatch) Succeeded() bool {
	return d.Error == "" && d.PostID != ""
}

const (
	ChannelScheduler = "scheduler"
	ChannelDirect    = "direct"
)

// ScheduleDecision is a committed (day, hour, platforms) publish assignment.
type ScheduleDecision struct {
	Day            string     `json:"day"`
	Hour           int        `json:"hour"`
	ScheduledAt    time.Time  `json:"scheduledAt"`
	Timezone       string     `json:"timezone"`
	Platforms      []string   `json:"platforms"`
	ExternalPostID string     `json:"externalPostId,omitempty"`
	Error          string     `json:"error,omitempty"`
	Dispatches     []Dispatch `json:"dispatches,omitempty"`
}

// Succeeded reports whether any channel accepted the decision.
func (d ScheduleDecision) Succeeded() bool {
	if d.ExternalPostID != "" {
		return true
	}
	for _, dispatch := range d.Dispatches {
		if dispatch.Succeeded() {
			return true
		}
	}
	return false
}

// Dispatched reports whether channel already accepted this decision.
func (d ScheduleDecision) Dispatched(channel string) bool {
	for _, dispatch := range d.Dispatches {
		if dispatch.Channel == channel && dispatch.Succeeded() {
			return true
		}
	}
	return false
}

// DispatchedTo reports whether channel already accepted this decision for platform.
func (d ScheduleDecision) DispatchedTo(channel, platform string) bool {
	for _, dispatch := range d.Dispatches {
		if dispatch.Channel != channel || !dispatch.Succeeded() {
			continue
		}
		for _, p := range dispatch.Platforms {
			if p == platform {
				return true
			}
		}
	}
	return false
}

// HealthSummary describes aggregated record counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Active    int
	Failed    int
	Completed int
	ByStatus  map[Status]int
}
