// Package httpx provides the retrying JSON client shared by the provider
// adapters. Transport failures, 429, and 5xx responses are retried with
// jittered backoff; the final error is tagged with a services marker so stage
// code can tell transient trouble from a rejected request.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"postflow/internal/services"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = 10 * time.Second
	defaultTimeout    = 30 * time.Second
	maxErrorBody      = 2048
)

// Config tunes retry and timeout behaviour.
type Config struct {
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

// Client issues JSON requests through a failsafe retry policy.
type Client struct {
	name     string
	http     *http.Client
	executor failsafe.Executor[*http.Response]
}

// StatusError describes a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// New constructs a client. Zero values in cfg fall back to defaults.
func New(cfg Config) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(defaultMaxDelay, cfg.BaseDelay)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "provider"
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		HandleIf(func(_ *http.Response, err error) bool {
			return shouldRetry(err)
		}).
		Build()

	return &Client{
		name:     cfg.Name,
		http:     &http.Client{Timeout: cfg.Timeout},
		executor: failsafe.With(retry),
	}
}

// HTTPClient exposes the underlying client for streaming downloads.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// DoJSON sends body (when non-nil) as JSON and decodes a 2xx response into out
// (when non-nil). Each attempt builds a fresh request so the body can be replayed.
func (c *Client) DoJSON(ctx context.Context, method, url string, headers map[string]string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrValidation, c.name, "encode request", "", err)
		}
		payload = encoded
	}

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
		}
		return resp, nil
	})
	if err != nil {
		return c.classify(method, url, err)
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return services.Wrap(services.ErrValidation, c.name, "decode response", method+" "+url, err)
	}
	return nil
}

// Open issues a GET through the retry policy and returns the 2xx response
// for streaming. The caller closes the body.
func (c *Client) Open(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
		}
		return resp, nil
	})
	if err != nil {
		return nil, c.classify(http.MethodGet, url, err)
	}
	return resp, nil
}

func (c *Client) classify(method, url string, err error) error {
	op := method + " " + url
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, c.name, op, "", statusErr)
		case statusErr.retryable():
			return services.Wrap(services.ErrTransient, c.name, op, "retries exhausted", statusErr)
		default:
			return services.Wrap(services.ErrValidation, c.name, op, "request rejected", statusErr)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, c.name, op, "", err)
	}
	return services.Wrap(services.ErrTransient, c.name, op, "", err)
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	return true
}
