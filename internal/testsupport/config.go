package testsupport

import (
	"path/filepath"
	"testing"

	"postflow/internal/config"
)

// TestBrand is the brand every generated config carries.
const TestBrand = "carz"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Cron.Secret = "test-cron-secret"
	cfgVal.Webhooks.Secret = "test-webhook-secret"
	cfgVal.Webhooks.PublicBaseURL = "https://postflow.test"
	cfgVal.HeyGen.APIKey = "test"
	cfgVal.HeyGen.Presenters = map[string]config.Presenter{
		"ava": {AvatarID: "avatar-ava", VoiceID: "voice-ava"},
		"ben": {AvatarID: "avatar-ben", VoiceID: "voice-ben"},
	}
	cfgVal.Submagic.APIKey = "test"
	cfgVal.Late.APIKey = "test"
	cfgVal.Storage.Bucket = "postflow-test"
	cfgVal.Storage.PublicBaseURL = "https://cdn.postflow.test"
	cfgVal.Brands = map[string]config.Brand{
		TestBrand: {
			Timezone:      "America/Chicago",
			Platforms:     []string{"tiktok", "instagram"},
			Presenters:    []string{"ava", "ben"},
			Hashtags:      []string{"cars", "deals"},
			LateProfileID: "profile-carz",
			Accounts:      map[string]string{"tiktok": "acct-tiktok", "instagram": "acct-instagram"},
		},
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBrand adds or replaces a brand on the test config.
func WithBrand(name string, brand config.Brand) ConfigOption {
	return func(b *configBuilder) {
		if brand.Timezone == "" {
			brand.Timezone = "America/Chicago"
		}
		b.cfg.Brands[name] = brand
	}
}

// WithPlatformHours overrides the ranked hours for a platform.
func WithPlatformHours(platform string, hours ...int) ConfigOption {
	return func(b *configBuilder) {
		current := b.cfg.Platforms[platform]
		current.Hours = hours
		b.cfg.Platforms[platform] = current
	}
}

// WithPolicy sets the global scheduling policy.
func WithPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduling.Policy = policy
	}
}

// WithMaxRetries sets the workflow retry cap.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxRetries = n
	}
}

// WithProviderURL points every external provider at baseURL (an httptest server).
func WithProviderURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.HeyGen.BaseURL = baseURL
		b.cfg.Submagic.BaseURL = baseURL
		b.cfg.Late.BaseURL = baseURL
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
