package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"postflow/internal/api"
	"postflow/internal/config"
	"postflow/internal/preflight"
	"postflow/internal/queue"
	"postflow/internal/services/httpx"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Client queries a running daemon over its HTTP API.
type Client struct {
	base  string
	token string
	http  *httpx.Client
}

// NewClient targets the daemon bound at paths.api_bind.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		base:  BaseURL(cfg.Paths.APIBind),
		token: cfg.Paths.APIToken,
		http:  httpx.New(httpx.Config{Name: "daemon", MaxRetries: -1, Timeout: 5 * time.Second}),
	}
}

// BaseURL converts a listen address into a loopback URL the CLI can dial.
func BaseURL(bind string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil {
		return "http://" + strings.TrimSpace(bind)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Status fetches /api/status from the daemon.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var headers map[string]string
	if c.token != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.token}
	}
	var status api.DaemonStatus
	if err := c.http.DoJSON(ctx, http.MethodGet, c.base+"/api/status", headers, nil, &status); err != nil {
		if isUnavailable(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	return &status, nil
}

// Launch starts a detached postflowd process.
func Launch(executablePath, configPath string) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	var args []string
	if cfg := strings.TrimSpace(configPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForStatus polls the daemon API until it answers or timeout elapses.
func (c *Client) WaitForStatus(ctx context.Context, timeout time.Duration) (*api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := c.Status(ctx)
		if err == nil {
			return status, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// PIDPath returns the pid file written by the daemon.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "postflowd.pid")
}

// ReadPID returns the daemon pid recorded on disk, or 0 when absent.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q is malformed", path)
	}
	return pid, nil
}

// ProcessAlive reports whether pid names a live process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// StopResult captures the daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Stop sends SIGTERM to the daemon and escalates to SIGKILL when it is still
// alive after gracePeriod.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	pidPath := PIDPath(cfg)
	pid, err := ReadPID(pidPath)
	if err != nil {
		return StopResult{}, err
	}
	if pid == 0 || !ProcessAlive(pid) {
		_ = os.Remove(pidPath)
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return result, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	_ = os.Remove(pidPath)
	result.ForcedKill = true
	return result, nil
}

// Snapshot is the CLI status view: live daemon data when reachable,
// otherwise counts read straight from the database.
type Snapshot struct {
	Running   bool               `json:"running"`
	PID       int                `json:"pid,omitempty"`
	Daemon    *api.DaemonStatus  `json:"daemon,omitempty"`
	Counts    map[string]int     `json:"counts"`
	Preflight []preflight.Result `json:"preflight"`
}

// BuildStatusSnapshot collects daemon status with offline fallbacks.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{}
	snap.PID, _ = ReadPID(PIDPath(cfg))

	if status, err := NewClient(cfg).Status(ctx); err == nil {
		snap.Running = status.Running
		snap.Daemon = status
		snap.Counts = status.Workflow.Counts
	} else {
		var stats map[queue.Status]int
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if store, openErr := queue.Open(cfg); openErr == nil {
			stats, _ = store.Stats(queryCtx)
			_ = store.Close()
		}
		snap.Counts = api.MergeCounts(stats)
	}
	snap.Preflight = preflight.RunAll(ctx, cfg)
	return snap, nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
