package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"postflow/internal/config"
)

const userAgent = "postflow/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventWorkflowCompleted Event = "workflow_completed"
	EventPartialDispatch   Event = "partial_dispatch"
	EventWorkflowFailed    Event = "workflow_failed"
	EventSweepAttention    Event = "sweep_attention"
	EventTest              Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventWorkflowCompleted:
		return n.settings.Completions
	case EventWorkflowFailed, EventSweepAttention:
		return n.settings.Failures
	case EventPartialDispatch:
		return n.settings.PartialPosts
	default:
		return true
	}
}

func format(event Event, data Payload) (payload, bool) {
	title := strings.TrimSpace(stringValue(data, "title"))
	brand := strings.TrimSpace(stringValue(data, "brand"))
	label := title
	if brand != "" {
		label = fmt.Sprintf("[%s] %s", brand, title)
	}

	switch event {
	case EventWorkflowCompleted:
		return payload{
			title:   "Postflow - Published",
			message: fmt.Sprintf("✅ Scheduled: %s (%d slots)", label, intValue(data, "slots")),
			tags:    []string{"postflow", "workflow", "completed"},
		}, true
	case EventPartialDispatch:
		return payload{
			title:   "Postflow - Partial Publish",
			message: fmt.Sprintf("⚠️ Partially published: %s\n%s", label, stringValue(data, "error")),
			tags:    []string{"postflow", "publish", "partial"},
		}, true
	case EventWorkflowFailed:
		stage := stringValue(data, "stage")
		if stage == "" {
			stage = "unknown stage"
		}
		return payload{
			title:    "Postflow - Workflow Failed",
			message:  fmt.Sprintf("❌ %s failed at %s: %s", label, stage, stringValue(data, "error")),
			tags:     []string{"postflow", "error", "alert"},
			priority: "high",
		}, true
	case EventSweepAttention:
		return payload{
			title:   "Postflow - Sweep",
			message: fmt.Sprintf("Sweep processed %d records: %d failed, %d stuck", intValue(data, "processed"), intValue(data, "failed"), intValue(data, "stuck")),
			tags:    []string{"postflow", "sweep"},
		}, true
	case EventTest:
		return payload{
			title:    "Postflow - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"postflow", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func stringValue(data Payload, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func intValue(data Payload, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
