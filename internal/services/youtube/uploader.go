package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"postflow/internal/config"
	"postflow/internal/services"
)

const (
	stageName      = "youtube"
	maxTitleRunes  = 100
	maxDescription = 5000
)

// Upload is one direct platform publish.
type Upload struct {
	AssetURL    string
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	PublishAt   time.Time
}

// Uploader publishes to a single YouTube channel authorized by a refresh token.
type Uploader struct {
	cfg      config.YouTube
	download *http.Client
	options  []option.ClientOption
}

// New builds an uploader. download fetches the asset before streaming it to YouTube.
func New(cfg config.YouTube, download *http.Client) *Uploader {
	if download == nil {
		download = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return &Uploader{cfg: cfg, download: download}
}

// WithClientOptions appends google API client options (endpoint, http client).
func (u *Uploader) WithClientOptions(opts ...option.ClientOption) *Uploader {
	u.options = append(u.options, opts...)
	return u
}

// Enabled reports whether direct uploads are configured.
func (u *Uploader) Enabled() bool {
	return u != nil && u.cfg.Enabled
}

// Upload streams the asset at up.AssetURL to YouTube and returns the video id.
func (u *Uploader) Upload(ctx context.Context, up Upload) (string, error) {
	if !u.Enabled() {
		return "", services.Wrap(services.ErrConfiguration, stageName, "upload", "youtube uploads are disabled", nil)
	}
	svc, err := u.service(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, up.AssetURL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, stageName, "download asset", up.AssetURL, err)
	}
	resp, err := u.download.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "download asset", up.AssetURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrTransient, stageName, "download asset", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	video := buildVideo(up, u.cfg.CategoryID)
	call := svc.Videos.Insert([]string{"snippet", "status"}, video).Context(ctx)
	call.Media(resp.Body)
	uploaded, err := call.Do()
	if err != nil {
		return "", classify(err)
	}
	return uploaded.Id, nil
}

func (u *Uploader) service(ctx context.Context) (*yt.Service, error) {
	conf := &oauth2.Config{
		ClientID:     u.cfg.ClientID,
		ClientSecret: u.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{yt.YoutubeUploadScope},
	}
	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: u.cfg.RefreshToken})
	opts := append([]option.ClientOption{option.WithTokenSource(source)}, u.options...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "create service", "", err)
	}
	return svc, nil
}

func buildVideo(up Upload, defaultCategory string) *yt.Video {
	category := up.CategoryID
	if category == "" {
		category = defaultCategory
	}
	status := &yt.VideoStatus{
		PrivacyStatus:           "public",
		SelfDeclaredMadeForKids: false,
	}
	if !up.PublishAt.IsZero() && up.PublishAt.After(time.Now()) {
		status.PrivacyStatus = "private"
		status.PublishAt = up.PublishAt.UTC().Format(time.RFC3339)
	}
	return &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       truncateRunes(up.Title, maxTitleRunes),
			Description: truncateRunes(up.Description, maxDescription),
			Tags:        up.Tags,
			CategoryId:  category,
		},
		Status: status,
	}
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return services.Wrap(services.ErrTransient, stageName, "insert video", apiErr.Message, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, stageName, "insert video", apiErr.Message, err)
		default:
			return services.Wrap(services.ErrValidation, stageName, "insert video", apiErr.Message, err)
		}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stageName, "insert video", "", err)
	}
	return services.Wrap(services.ErrTransient, stageName, "insert video", "", err)
}

func truncateRunes(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
