package services

// JobState is the provider-neutral state of an asynchronous job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is what a provider reports for a submitted job.
type JobStatus struct {
	State JobState
	URL   string
	Error string
}

// Ready reports whether the job finished with a usable asset URL.
func (s JobStatus) Ready() bool {
	return s.State == JobCompleted && s.URL != ""
}
