package heygen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"postflow/internal/config"
	"postflow/internal/services"
	"postflow/internal/services/httpx"
)

const stageName = "heygen"

// Request describes one avatar video to synthesize.
type Request struct {
	Script      string
	AvatarID    string
	VoiceID     string
	Title       string
	CallbackID  string
	CallbackURL string
}

// Client talks to the HeyGen REST API.
type Client struct {
	baseURL string
	apiKey  string
	width   int
	height  int
	http    *httpx.Client
}

// New builds a client from configuration.
func New(cfg config.HeyGen) *Client {
	return NewWithHTTP(cfg, httpx.New(httpx.Config{
		Name:    stageName,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}))
}

// NewWithHTTP builds a client around an existing retrying transport.
func NewWithHTTP(cfg config.HeyGen, client *httpx.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		width:   cfg.Width,
		height:  cfg.Height,
		http:    client,
	}
}

type character struct {
	Type        string `json:"type"`
	AvatarID    string `json:"avatar_id"`
	AvatarStyle string `json:"avatar_style"`
}

type voice struct {
	Type      string `json:"type"`
	InputText string `json:"input_text"`
	VoiceID   string `json:"voice_id"`
}

type videoInput struct {
	Character character `json:"character"`
	Voice     voice     `json:"voice"`
}

type dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type generateRequest struct {
	VideoInputs []videoInput `json:"video_inputs"`
	Dimension   dimension    `json:"dimension"`
	Title       string       `json:"title,omitempty"`
	CallbackID  string       `json:"callback_id,omitempty"`
	CallbackURL string       `json:"callback_url,omitempty"`
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

type generateResponse struct {
	Error *apiError `json:"error"`
	Data  struct {
		VideoID string `json:"video_id"`
	} `json:"data"`
}

// Submit starts a video job and returns the provider job id.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, stageName, "submit", "heygen.api_key is not set", nil)
	}
	if strings.TrimSpace(req.Script) == "" || req.AvatarID == "" || req.VoiceID == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "submit", "script, avatar, and voice are required", nil)
	}
	payload := generateRequest{
		VideoInputs: []videoInput{{
			Character: character{Type: "avatar", AvatarID: req.AvatarID, AvatarStyle: "normal"},
			Voice:     voice{Type: "text", InputText: req.Script, VoiceID: req.VoiceID},
		}},
		Dimension:   dimension{Width: c.width, Height: c.height},
		Title:       req.Title,
		CallbackID:  req.CallbackID,
		CallbackURL: req.CallbackURL,
	}
	var resp generateResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/v2/video/generate", c.headers(), payload, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", services.Wrap(services.ErrValidation, stageName, "submit", resp.Error.Message, nil)
	}
	if resp.Data.VideoID == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "submit", "response missing video_id", nil)
	}
	return resp.Data.VideoID, nil
}

type statusResponse struct {
	Data struct {
		Status   string          `json:"status"`
		VideoURL string          `json:"video_url"`
		Error    json.RawMessage `json:"error"`
	} `json:"data"`
}

// Status polls a submitted job.
func (c *Client) Status(ctx context.Context, jobID string) (services.JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return services.JobStatus{}, services.Wrap(services.ErrValidation, stageName, "status", "job id is required", nil)
	}
	endpoint := c.baseURL + "/v1/video_status.get?video_id=" + url.QueryEscape(jobID)
	var resp statusResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, endpoint, c.headers(), nil, &resp); err != nil {
		return services.JobStatus{}, err
	}
	return services.JobStatus{
		State: mapState(resp.Data.Status),
		URL:   resp.Data.VideoURL,
		Error: errorText(resp.Data.Error),
	}, nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-Api-Key": c.apiKey}
}

func mapState(status string) services.JobState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "success":
		return services.JobCompleted
	case "failed", "fail", "error":
		return services.JobFailed
	default:
		return services.JobPending
	}
}

// errorText flattens the provider's error field, which is either a string or
// an object with a message.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj apiError
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
