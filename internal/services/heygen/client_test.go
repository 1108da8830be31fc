package heygen_test

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
	"postflow/internal/services/heygen"
	"postflow/internal/services/httpx"
)

func newClient(t *testing.T, handler http.HandlerFunc) *heygen.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Default().HeyGen
	cfg.BaseURL = srv.URL
	cfg.APIKey = "key-1"
	return heygen.NewWithHTTP(cfg, httpx.New(httpx.Config{Name: "heygen", MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))
}

func TestSubmitSendsAvatarRequest(t *testing.T) {
	var got map[string]any
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/video/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "key-1" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"error":null,"data":{"video_id":"vid-42"}}`))
	})

	jobID, err := client.Submit(context.Background(), heygen.Request{
		Script:      "Buy this truck",
		AvatarID:    "avatar-1",
		VoiceID:     "voice-1",
		CallbackID:  "workflow:7",
		CallbackURL: "https://postflow.test/webhooks/synthesis",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != "vid-42" {
		t.Fatalf("unexpected job id %q", jobID)
	}
	dim, _ := got["dimension"].(map[string]any)
	if dim["width"].(float64) != 1080 || dim["height"].(float64) != 1920 {
		t.Fatalf("expected vertical dimension, got %v", dim)
	}
	if got["callback_id"] != "workflow:7" {
		t.Fatalf("expected callback id, got %v", got["callback_id"])
	}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := client.Submit(context.Background(), heygen.Request{Script: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatusMapsProviderStates(t *testing.T) {
	cases := []struct {
		body  string
		state services.JobState
		url   string
		err   string
	}{
		{`{"data":{"status":"processing"}}`, services.JobPending, "", ""},
		{`{"data":{"status":"completed","video_url":"https://cdn/v.mp4"}}`, services.JobCompleted, "https://cdn/v.mp4", ""},
		{`{"data":{"status":"failed","error":{"message":"avatar missing"}}}`, services.JobFailed, "", "avatar missing"},
		{`{"data":{"status":"failed","error":"quota"}}`, services.JobFailed, "", "quota"},
	}
	for _, tc := range cases {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("video_id") != "vid-1" {
				t.Errorf("unexpected video id %q", r.URL.Query().Get("video_id"))
			}
			_, _ = w.Write([]byte(tc.body))
		})
		status, err := client.Status(context.Background(), "vid-1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.State != tc.state || status.URL != tc.url || status.Error != tc.err {
			t.Fatalf("body %s: got %+v", tc.body, status)
		}
	}
}

func TestStatusNotFoundIsReported(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	if _, err := client.Status(context.Background(), "vid-1"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseCallback(t *testing.T) {
	cb, err := heygen.ParseCallback([]byte(`{"event_type":"avatar_video.success","event_data":{"video_id":"vid-9","url":"https://cdn/9.mp4","callback_id":"workflow:3"}}`))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if cb.JobID != "vid-9" || !cb.Status.Ready() || cb.CallbackID != "workflow:3" {
		t.Fatalf("unexpected callback %+v", cb)
	}

	cb, err = heygen.ParseCallback([]byte(`{"jobId":"vid-10","status":"failed","error":"bad script"}`))
	if err != nil {
		t.Fatalf("ParseCallback flat: %v", err)
	}
	if cb.Status.State != services.JobFailed || cb.Status.Error != "bad script" {
		t.Fatalf("unexpected flat callback %+v", cb)
	}

	if _, err := heygen.ParseCallback([]byte(`{"status":"completed"}`)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing id, got %v", err)
	}
	if _, err := heygen.ParseCallback([]byte(`{`)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad json, got %v", err)
	}
}
