package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"postflow/internal/config"
	"postflow/internal/queue"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
	logDir     string
	heygen     *httptest.Server
	submits    atomic.Int32
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "")

	env := &cliTestEnv{
		configPath: filepath.Join(home, ".config", "postflow", "config.toml"),
		dataDir:    filepath.Join(base, "data"),
		logDir:     filepath.Join(base, "logs"),
	}
	env.heygen = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/video/generate" {
			http.NotFound(w, r)
			return
		}
		n := env.submits.Add(1)
		fmt.Fprintf(w, `{"error":null,"data":{"video_id":"vid-%d"}}`, n)
	}))
	t.Cleanup(env.heygen.Close)

	if err := os.MkdirAll(filepath.Dir(env.configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`
[paths]
data_dir = %q
log_dir = %q
api_bind = "127.0.0.1:1"

[cron]
secret = "cli-cron-secret"

[webhooks]
public_base_url = "https://postflow.test"
secret = "cli-webhook-secret"

[workflow]
max_retries = 2

[heygen]
api_key = "test"
base_url = %q

[heygen.presenters.ava]
avatar_id = "avatar-ava"
voice_id = "voice-ava"

[submagic]
api_key = "test"

[late]
api_key = "test"

[storage]
bucket = "postflow-test"
public_base_url = "https://cdn.postflow.test"
access_key = "key"
secret_key = "secret"

[logging]
level = "error"

[brands.carz]
timezone = "America/Chicago"
platforms = ["tiktok", "instagram"]
presenters = ["ava"]
late_profile_id = "profile-carz"
`, env.dataDir, env.logDir, env.heygen.URL)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) config(t *testing.T) *config.Config {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func (env *cliTestEnv) openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.Open(env.config(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("postflow %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func decodeJSON(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
