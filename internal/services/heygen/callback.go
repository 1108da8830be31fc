package heygen

import (
	"encoding/json"
	"strings"

	"postflow/internal/services"
)

// Callback is a decoded completion notice.
type Callback struct {
	JobID      string
	CallbackID string
	Status     services.JobStatus
}

type eventPayload struct {
	EventType string `json:"event_type"`
	EventData struct {
		VideoID    string `json:"video_id"`
		URL        string `json:"url"`
		CallbackID string `json:"callback_id"`
		Msg        string `json:"msg"`
	} `json:"event_data"`

	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	VideoURL string `json:"videoUrl"`
	Error    string `json:"error"`
}

// ParseCallback accepts the provider's event envelope
// ({"event_type":"avatar_video.success","event_data":{...}}) as well as the
// flat {"jobId","status","videoUrl","error"} form used by relays.
func ParseCallback(body []byte) (Callback, error) {
	var payload eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Callback{}, services.Wrap(services.ErrValidation, stageName, "parse callback", "malformed json", err)
	}

	var cb Callback
	if payload.EventType != "" {
		cb.JobID = payload.EventData.VideoID
		cb.CallbackID = payload.EventData.CallbackID
		switch strings.ToLower(payload.EventType) {
		case "avatar_video.success":
			cb.Status = services.JobStatus{State: services.JobCompleted, URL: payload.EventData.URL}
		case "avatar_video.fail":
			cb.Status = services.JobStatus{State: services.JobFailed, Error: payload.EventData.Msg}
		default:
			cb.Status = services.JobStatus{State: services.JobPending}
		}
	} else {
		cb.JobID = payload.JobID
		cb.Status = services.JobStatus{State: mapState(payload.Status), URL: payload.VideoURL, Error: payload.Error}
	}

	if strings.TrimSpace(cb.JobID) == "" {
		return Callback{}, services.Wrap(services.ErrValidation, stageName, "parse callback", "missing job id", nil)
	}
	return cb, nil
}
