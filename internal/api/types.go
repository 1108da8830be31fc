package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Workflow describes a workflow record in a transport-friendly format.
type Workflow struct {
	ID                int64      `json:"id"`
	Brand             string     `json:"brand"`
	ContentID         int64      `json:"contentId,omitempty"`
	Title             string     `json:"title"`
	Presenter         string     `json:"presenter,omitempty"`
	VideoIndex        int        `json:"videoIndex"`
	Status            string     `json:"status"`
	SynthesisJobID    string     `json:"synthesisJobId,omitempty"`
	SynthesisVideoURL string     `json:"synthesisVideoUrl,omitempty"`
	CaptionJobID      string     `json:"captionJobId,omitempty"`
	StyledURL         string     `json:"styledUrl,omitempty"`
	FinalAssetURL     string     `json:"finalAssetUrl,omitempty"`
	Schedule          []Decision `json:"schedule,omitempty"`
	RetryCount        int        `json:"retryCount"`
	LastError         string     `json:"lastError,omitempty"`
	FailedStage       string     `json:"failedStage,omitempty"`
	CreatedAt         string     `json:"createdAt,omitempty"`
	StatusChangedAt   string     `json:"statusChangedAt,omitempty"`
	UpdatedAt         string     `json:"updatedAt,omitempty"`
}

// Decision is one scheduled publish slot.
type Decision struct {
	Day         string     `json:"day"`
	Hour        int        `json:"hour"`
	ScheduledAt string     `json:"scheduledAt"`
	Timezone    string     `json:"timezone"`
	Platforms   []string   `json:"platforms"`
	Published   bool       `json:"published"`
	Error       string     `json:"error,omitempty"`
	Dispatches  []Dispatch `json:"dispatches,omitempty"`
}

// Dispatch is one outbound publish call.
type Dispatch struct {
	Channel   string   `json:"channel"`
	Platforms []string `json:"platforms"`
	PostID    string   `json:"postId,omitempty"`
	Error     string   `json:"error,omitempty"`
	At        string   `json:"at,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	Failed      int            `json:"failed"`
	Completed   int            `json:"completed"`
	Counts      map[string]int `json:"counts"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowListResponse wraps a collection of workflows.
type WorkflowListResponse struct {
	Items []Workflow `json:"items"`
}

// WorkflowResponse wraps a single workflow.
type WorkflowResponse struct {
	Item Workflow `json:"item"`
}

// SweepResponse reports the outcome of one stuck-workflow sweep.
type SweepResponse struct {
	Success    bool   `json:"success"`
	Skipped    bool   `json:"leaseHeld,omitempty"`
	Processed  int    `json:"processed"`
	Advanced   int    `json:"advanced"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Stuck      int    `json:"stuck"`
	Retried    int    `json:"retried"`
	Unchanged  int    `json:"skipped"`
	Errors     int    `json:"errors"`
	DurationMS int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// StartResponse reports the workflow created by a start trigger.
type StartResponse struct {
	Success  bool      `json:"success"`
	Started  bool      `json:"started"`
	Message  string    `json:"message,omitempty"`
	Workflow *Workflow `json:"workflow,omitempty"`
}

// WebhookResponse acknowledges a provider callback.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
	ID       int64  `json:"workflowId,omitempty"`
}

// WebhookFailure is a provider callback kept after it failed to apply.
type WebhookFailure struct {
	ID            int64  `json:"id"`
	Provider      string `json:"provider"`
	DeliveryKey   string `json:"deliveryKey"`
	Error         string `json:"error"`
	Permanent     bool   `json:"permanent"`
	Attempts      int    `json:"attempts"`
	FirstFailedAt string `json:"firstFailedAt"`
	LastFailedAt  string `json:"lastFailedAt"`
	ResolvedAt    string `json:"resolvedAt,omitempty"`
	Body          string `json:"body,omitempty"`
}

// WebhookFailureListResponse wraps a collection of webhook failures.
type WebhookFailureListResponse struct {
	Items []WebhookFailure `json:"items"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	Address      string         `json:"address,omitempty"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}
