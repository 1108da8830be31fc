package late_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"postflow/internal/config"
	"postflow/internal/services"
	"postflow/internal/services/httpx"
	"postflow/internal/services/late"
)

func newClient(t *testing.T, mux *http.ServeMux) *late.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg := config.Default().Late
	cfg.BaseURL = srv.URL
	cfg.APIKey = "late-key"
	return late.NewWithHTTP(cfg, httpx.New(httpx.Config{Name: "late", MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))
}

func TestCreatePostSendsLocalTimeAndTimezone(t *testing.T) {
	mux := http.NewServeMux()
	var body map[string]any
	mux.HandleFunc("POST /posts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer late-key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"post":{"_id":"post-77"}}`))
	})
	client := newClient(t, mux)

	loc, _ := time.LoadLocation("America/Chicago")
	when := time.Date(2026, 3, 3, 14, 0, 0, 0, loc)
	id, err := client.CreatePost(context.Background(), late.Post{
		Content:      "caption",
		MediaURL:     "https://cdn/final.mp4",
		Targets:      []late.Target{{Platform: "tiktok", AccountID: "a1"}, {Platform: "instagram", AccountID: "a2"}},
		ScheduledFor: when.UTC(),
		Timezone:     "America/Chicago",
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if id != "post-77" {
		t.Fatalf("unexpected post id %q", id)
	}
	if body["scheduledFor"] != "2026-03-03T14:00:00" || body["timezone"] != "America/Chicago" {
		t.Fatalf("unexpected schedule fields: %v %v", body["scheduledFor"], body["timezone"])
	}
	if platforms, _ := body["platforms"].([]any); len(platforms) != 2 {
		t.Fatalf("expected two platforms, got %v", body["platforms"])
	}
	if _, ok := body["publishNow"]; ok {
		t.Fatal("scheduled post must not publish now")
	}
}

func TestCreatePostServerErrorIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /posts", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream", http.StatusBadGateway)
	})
	client := newClient(t, mux)
	_, err := client.CreatePost(context.Background(), late.Post{
		MediaURL: "https://cdn/final.mp4",
		Targets:  []late.Target{{Platform: "tiktok", AccountID: "a1"}},
	})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestResolveTargetsFallsBackToProfileAccounts(t *testing.T) {
	mux := http.NewServeMux()
	calls := 0
	mux.HandleFunc("GET /accounts", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("profileId") != "prof-1" {
			t.Errorf("unexpected profile %q", r.URL.Query().Get("profileId"))
		}
		_, _ = w.Write([]byte(`{"accounts":[{"_id":"fb-1","platform":"Facebook"},{"_id":"ig-1","platform":"instagram"}]}`))
	})
	client := newClient(t, mux)

	targets, missing, err := client.ResolveTargets(context.Background(), "prof-1",
		map[string]string{"tiktok": "tt-1"},
		[]string{"tiktok", "facebook", "instagram", "linkedin"})
	if err != nil {
		t.Fatalf("ResolveTargets: %v", err)
	}
	if len(targets) != 3 || targets[0].AccountID != "tt-1" || targets[1].AccountID != "fb-1" {
		t.Fatalf("unexpected targets %+v", targets)
	}
	if len(missing) != 1 || missing[0] != "linkedin" {
		t.Fatalf("unexpected missing %v", missing)
	}
	if calls != 1 {
		t.Fatalf("expected accounts fetched once, got %d", calls)
	}
}
