package submagic

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"postflow/internal/config"
	"postflow/internal/services"
	"postflow/internal/services/httpx"
)

const stageName = "submagic"

// Request describes a captioning project.
type Request struct {
	Title      string
	VideoURL   string
	WebhookURL string
	Brolls     bool
}

// Client talks to the Submagic REST API.
type Client struct {
	baseURL  string
	apiKey   string
	template string
	language string
	http     *httpx.Client
}

// New builds a client from configuration.
func New(cfg config.Submagic) *Client {
	return NewWithHTTP(cfg, httpx.New(httpx.Config{
		Name:    stageName,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}))
}

// NewWithHTTP builds a client around an existing retrying transport.
func NewWithHTTP(cfg config.Submagic, client *httpx.Client) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		template: cfg.Template,
		language: cfg.Language,
		http:     client,
	}
}

type createRequest struct {
	Title                 string `json:"title"`
	Language              string `json:"language"`
	VideoURL              string `json:"videoUrl"`
	TemplateName          string `json:"templateName"`
	MagicBrolls           bool   `json:"magicBrolls"`
	MagicBrollsPercentage int    `json:"magicBrollsPercentage"`
	MagicZooms            bool   `json:"magicZooms"`
	WebhookURL            string `json:"webhookUrl,omitempty"`
}

// project covers the id and URL spellings the API has used over time.
type project struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	ProjectID2  string `json:"project_id"`
	Status      string `json:"status"`
	MediaURL    string `json:"media_url"`
	VideoURL    string `json:"video_url"`
	DownloadURL string `json:"downloadUrl"`
	Download2   string `json:"download_url"`
	Error       string `json:"error"`
	FailReason  string `json:"failureReason"`
}

func (p project) id() string {
	return firstNonEmpty(p.ID, p.ProjectID, p.ProjectID2)
}

func (p project) url() string {
	return firstNonEmpty(p.MediaURL, p.VideoURL, p.DownloadURL, p.Download2)
}

func (p project) errorText() string {
	return firstNonEmpty(p.Error, p.FailReason)
}

// Submit creates a captioning project and returns its id.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, stageName, "submit", "submagic.api_key is not set", nil)
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "submit", "video url is required", nil)
	}
	payload := createRequest{
		Title:        req.Title,
		Language:     c.language,
		VideoURL:     req.VideoURL,
		TemplateName: c.template,
		MagicBrolls:  req.Brolls,
		MagicZooms:   true,
		WebhookURL:   req.WebhookURL,
	}
	if req.Brolls {
		payload.MagicBrollsPercentage = 75
	}
	var resp project
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/v1/projects", c.headers(), payload, &resp); err != nil {
		return "", err
	}
	if resp.id() == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "submit", "response missing project id", nil)
	}
	return resp.id(), nil
}

// Fetch reads a project's state. A finished project without a download URL
// has its export triggered and is reported as pending.
func (c *Client) Fetch(ctx context.Context, projectID string) (services.JobStatus, error) {
	if strings.TrimSpace(projectID) == "" {
		return services.JobStatus{}, services.Wrap(services.ErrValidation, stageName, "fetch", "project id is required", nil)
	}
	base := c.baseURL + "/v1/projects/" + url.PathEscape(projectID)
	var resp project
	if err := c.http.DoJSON(ctx, http.MethodGet, base, c.headers(), nil, &resp); err != nil {
		return services.JobStatus{}, err
	}
	status := services.JobStatus{State: MapState(resp.Status), URL: resp.url(), Error: resp.errorText()}
	if status.State == services.JobCompleted && status.URL == "" {
		if err := c.http.DoJSON(ctx, http.MethodPost, base+"/export", c.headers(), struct{}{}, nil); err != nil {
			return services.JobStatus{}, err
		}
		status.State = services.JobPending
	}
	return status, nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{"x-api-key": c.apiKey}
}

// MapState folds the provider's status vocabulary into services.JobState.
func MapState(status string) services.JobState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "done", "ready", "exported":
		return services.JobCompleted
	case "failed", "error":
		return services.JobFailed
	default:
		return services.JobPending
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
