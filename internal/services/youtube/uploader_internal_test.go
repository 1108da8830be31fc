package youtube

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"postflow/internal/config"
	"postflow/internal/services"
)

func TestBuildVideoSchedulesFuturePublishAsPrivate(t *testing.T) {
	when := time.Now().Add(6 * time.Hour).Truncate(time.Second)
	video := buildVideo(Upload{Title: "Truck", Description: "desc", PublishAt: when}, "22")
	if video.Status.PrivacyStatus != "private" {
		t.Fatalf("expected private scheduled upload, got %q", video.Status.PrivacyStatus)
	}
	if video.Status.PublishAt != when.UTC().Format(time.RFC3339) {
		t.Fatalf("unexpected publishAt %q", video.Status.PublishAt)
	}
	if video.Snippet.CategoryId != "22" {
		t.Fatalf("expected default category, got %q", video.Snippet.CategoryId)
	}
}

func TestBuildVideoPastPublishGoesPublicNow(t *testing.T) {
	video := buildVideo(Upload{Title: strings.Repeat("é", 150), PublishAt: time.Now().Add(-time.Hour), CategoryID: "2"}, "22")
	if video.Status.PrivacyStatus != "public" || video.Status.PublishAt != "" {
		t.Fatalf("expected immediate public upload, got %+v", video.Status)
	}
	if n := len([]rune(video.Snippet.Title)); n != maxTitleRunes {
		t.Fatalf("expected title truncated to %d runes, got %d", maxTitleRunes, n)
	}
	if video.Snippet.CategoryId != "2" {
		t.Fatalf("expected explicit category, got %q", video.Snippet.CategoryId)
	}
}

func TestClassifyMapsAPIErrors(t *testing.T) {
	cases := []struct {
		code   int
		marker error
	}{
		{http.StatusServiceUnavailable, services.ErrTransient},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusForbidden, services.ErrConfiguration},
		{http.StatusBadRequest, services.ErrValidation},
	}
	for _, tc := range cases {
		err := classify(&googleapi.Error{Code: tc.code, Message: "x"})
		if !errors.Is(err, tc.marker) {
			t.Fatalf("code %d: expected %v, got %v", tc.code, tc.marker, err)
		}
	}
}

func TestUploadDisabledIsConfigurationError(t *testing.T) {
	u := New(config.YouTube{}, nil)
	if _, err := u.Upload(context.Background(), Upload{AssetURL: "https://cdn/x.mp4"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
