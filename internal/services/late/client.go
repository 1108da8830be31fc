package late

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

const stageName = "late"

// Target is one platform account a post goes to.
type Target struct {
	Platform  string `json:"platform"`
	AccountID string `json:"accountId"`
}

// Post is a scheduled multi-platform publish.
type Post struct {
	Content      string
	Title        string
	MediaURL     string
	Targets      []Target
	ScheduledFor time.Time
	Timezone     string
	QueueMode    bool
}

// Account is a connected social account on a Late profile.
type Account struct {
	ID       string `json:"_id"`
	Platform string `json:"platform"`
	Username string `json:"username"`
}

// Client talks to the Late REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpx.Client
}

// New builds a client from configuration.
func New(cfg config.Late) *Client {
	return NewWithHTTP(cfg, httpx.New(httpx.Config{
		Name:    stageName,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}))
}

// NewWithHTTP builds a client around an existing retrying transport.
func NewWithHTTP(cfg config.Late, client *httpx.Client) *Client {
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), apiKey: cfg.APIKey, http: client}
}

type mediaItem struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type createRequest struct {
	Content      string      `json:"content"`
	Title        string      `json:"title,omitempty"`
	Platforms    []Target    `json:"platforms"`
	MediaItems   []mediaItem `json:"mediaItems"`
	ScheduledFor string      `json:"scheduledFor,omitempty"`
	Timezone     string      `json:"timezone,omitempty"`
	PublishNow   bool        `json:"publishNow,omitempty"`
	QueueMode    bool        `json:"queuedFromProfile,omitempty"`
}

type idHolder struct {
	ID     string `json:"id"`
	PostID string `json:"postId"`
	MongoI string `json:"_id"`
}

func (h idHolder) value() string {
	for _, v := range []string{h.ID, h.PostID, h.MongoI} {
		if v != "" {
			return v
		}
	}
	return ""
}

type createResponse struct {
	idHolder
	Post *idHolder `json:"post"`
}

// CreatePost schedules post and returns the Late post id. A zero
// ScheduledFor publishes immediately.
func (c *Client) CreatePost(ctx context.Context, post Post) (string, error) {
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, stageName, "create post", "late.api_key is not set", nil)
	}
	if len(post.Targets) == 0 {
		return "", services.Wrap(services.ErrValidation, stageName, "create post", "no platform accounts", nil)
	}
	if strings.TrimSpace(post.MediaURL) == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "create post", "media url is required", nil)
	}
	payload := createRequest{
		Content:    post.Content,
		Title:      post.Title,
		Platforms:  post.Targets,
		MediaItems: []mediaItem{{Type: "video", URL: post.MediaURL}},
		QueueMode:  post.QueueMode,
	}
	if post.ScheduledFor.IsZero() {
		payload.PublishNow = true
	} else {
		loc := time.UTC
		if post.Timezone != "" {
			if l, err := time.LoadLocation(post.Timezone); err == nil {
				loc = l
			}
		}
		// Late reads scheduledFor as wall time in the supplied timezone.
		payload.ScheduledFor = post.ScheduledFor.In(loc).Format("2006-01-02T15:04:05")
		payload.Timezone = loc.String()
	}

	var resp createResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/posts", c.headers(), payload, &resp); err != nil {
		return "", err
	}
	id := resp.value()
	if id == "" && resp.Post != nil {
		id = resp.Post.value()
	}
	if id == "" {
		return "", services.Wrap(services.ErrTransient, stageName, "create post", "response missing post id", nil)
	}
	return id, nil
}

// Accounts lists the connected accounts of a profile.
func (c *Client) Accounts(ctx context.Context, profileID string) ([]Account, error) {
	if strings.TrimSpace(profileID) == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "accounts", "profile id is required", nil)
	}
	var resp struct {
		Accounts []Account `json:"accounts"`
	}
	endpoint := c.baseURL + "/accounts?profileId=" + url.QueryEscape(profileID)
	if err := c.http.DoJSON(ctx, http.MethodGet, endpoint, c.headers(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// ResolveTargets maps platforms to account ids, preferring the configured
// accounts and falling back to the profile's connected accounts. Platforms
// with no account are returned in missing.
func (c *Client) ResolveTargets(ctx context.Context, profileID string, configured map[string]string, platforms []string) (targets []Target, missing []string, err error) {
	var fetched map[string]string
	for _, platform := range platforms {
		if id := configured[platform]; id != "" {
			targets = append(targets, Target{Platform: platform, AccountID: id})
			continue
		}
		if fetched == nil {
			accounts, accErr := c.Accounts(ctx, profileID)
			if accErr != nil {
				return nil, nil, accErr
			}
			fetched = make(map[string]string, len(accounts))
			for _, acct := range accounts {
				fetched[strings.ToLower(acct.Platform)] = acct.ID
			}
		}
		if id := fetched[platform]; id != "" {
			targets = append(targets, Target{Platform: platform, AccountID: id})
		} else {
			missing = append(missing, platform)
		}
	}
	return targets, missing, nil
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}
