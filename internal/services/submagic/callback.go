package submagic

import (
	"encoding/json"

	"postflow/internal/services"
)

// Callback is a decoded project notification.
type Callback struct {
	ProjectID string
	Status    services.JobStatus
}

type callbackPayload struct {
	project
	JobID     string `json:"jobId"`
	StyledURL string `json:"styledUrl"`
}

// ParseCallback decodes a webhook body. The project id may arrive as
// projectId, project_id, id, or jobId.
func ParseCallback(body []byte) (Callback, error) {
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Callback{}, services.Wrap(services.ErrValidation, stageName, "parse callback", "malformed json", err)
	}
	id := firstNonEmpty(payload.id(), payload.JobID)
	if id == "" {
		return Callback{}, services.Wrap(services.ErrValidation, stageName, "parse callback", "missing project id", nil)
	}
	return Callback{
		ProjectID: id,
		Status: services.JobStatus{
			State: MapState(payload.Status),
			URL:   firstNonEmpty(payload.StyledURL, payload.url()),
			Error: payload.errorText(),
		},
	}, nil
}
