package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Cron controls who may trigger the sweep and start endpoints.
type Cron struct {
	Secret        string `toml:"secret"`
	TrustedHeader string `toml:"trusted_header"`
	TrustedValue  string `toml:"trusted_value"`
}

// Webhooks configures inbound provider callbacks.
type Webhooks struct {
	PublicBaseURL string `toml:"public_base_url"`
	Secret        string `toml:"secret"`
}

// Workflow contains state machine limits and sweep timing.
type Workflow struct {
	MaxRetries        int            `toml:"max_retries"`
	SweepBatchSize    int            `toml:"sweep_batch_size"`
	SweepInterval     int            `toml:"sweep_interval"`
	StartInterval     int            `toml:"start_interval"`
	SweepLease        int            `toml:"sweep_lease"`
	RecordTimeout     int            `toml:"record_timeout"`
	OrphanLockMinutes int            `toml:"orphan_lock_minutes"`
	StuckMinutes      map[string]int `toml:"stuck_minutes"`
}

// Scheduling contains slot allocation settings shared by every brand.
type Scheduling struct {
	Policy          string `toml:"policy"`
	Ladder          []int  `toml:"ladder"`
	MaxRolloverDays int    `toml:"max_rollover_days"`
	ClaimBackend    string `toml:"claim_backend"`
}

// Brand describes one publishing identity and its slot pool.
type Brand struct {
	Timezone      string            `toml:"timezone"`
	Platforms     []string          `toml:"platforms"`
	Presenters    []string          `toml:"presenters"`
	FeedSources   []string          `toml:"feed_sources"`
	MinQuality    float64           `toml:"min_quality"`
	Hashtags      []string          `toml:"hashtags"`
	Policy        string            `toml:"policy"`
	LateProfileID string            `toml:"late_profile_id"`
	Accounts      map[string]string `toml:"accounts"`
	Category      string            `toml:"category"`
}

// Platform holds the ranked optimal posting hours for one social platform.
type Platform struct {
	Hours    []int            `toml:"hours"`
	Weekdays map[string][]int `toml:"weekdays"`
	Direct   bool             `toml:"direct"`
}

// Presenter maps a rotation name to provider avatar and voice identifiers.
type Presenter struct {
	AvatarID string `toml:"avatar_id"`
	VoiceID  string `toml:"voice_id"`
}

// HeyGen contains video synthesis provider settings.
type HeyGen struct {
	APIKey         string               `toml:"api_key"`
	BaseURL        string               `toml:"base_url"`
	Width          int                  `toml:"width"`
	Height         int                  `toml:"height"`
	TimeoutSeconds int                  `toml:"timeout_seconds"`
	Presenters     map[string]Presenter `toml:"presenters"`
}

// Submagic contains caption styling provider settings.
type Submagic struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Template       string `toml:"template"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains script writer settings for an OpenAI-compatible chat API.
// Script drafting is skipped when APIKey is empty.
type LLM struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Late contains scheduling API settings.
type Late struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// YouTube contains direct upload credentials.
type YouTube struct {
	Enabled        bool   `toml:"enabled"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	RefreshToken   string `toml:"refresh_token"`
	CategoryID     string `toml:"category_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage contains durable object storage settings (S3, R2, MinIO).
type Storage struct {
	Bucket        string `toml:"bucket"`
	Prefix        string `toml:"prefix"`
	Region        string `toml:"region"`
	Endpoint      string `toml:"endpoint"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Redis configures the optional distributed slot claim backend.
type Redis struct {
	URL          string `toml:"url"`
	KeyPrefix    string `toml:"key_prefix"`
	SlotTTLHours int    `toml:"slot_ttl_hours"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completions    bool   `toml:"completions"`
	Failures       bool   `toml:"failures"`
	PartialPosts   bool   `toml:"partial_posts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for postflow.
//
// Configuration sections by subsystem:
//   - Paths: data directory, log directory, API bind address
//   - Cron/Webhooks: inbound trigger authentication
//   - Workflow: retry cap, sweep batch, stuck thresholds
//   - Scheduling/Brands/Platforms: slot allocation inputs
//   - LLM/HeyGen/Submagic/Late/YouTube/Storage: external collaborators
//   - Redis: distributed slot claims
//   - Notifications/Logging: operator visibility
type Config struct {
	Paths         Paths               `toml:"paths"`
	Cron          Cron                `toml:"cron"`
	Webhooks      Webhooks            `toml:"webhooks"`
	Workflow      Workflow            `toml:"workflow"`
	Scheduling    Scheduling          `toml:"scheduling"`
	Brands        map[string]Brand    `toml:"brands"`
	Platforms     map[string]Platform `toml:"platforms"`
	LLM           LLM                 `toml:"llm"`
	HeyGen        HeyGen              `toml:"heygen"`
	Submagic      Submagic            `toml:"submagic"`
	Late          Late                `toml:"late"`
	YouTube       YouTube             `toml:"youtube"`
	Storage       Storage             `toml:"storage"`
	Redis         Redis               `toml:"redis"`
	Notifications Notifications       `toml:"notifications"`
	Logging       Logging             `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/postflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("postflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.StagingDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite workflow store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "postflow.db")
}

// DaemonLogPath is the file the daemon appends its log to.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, "postflow.log")
}

// StagingDir holds assets while they are relocated to durable storage.
func (c *Config) StagingDir() string {
	return filepath.Join(c.Paths.DataDir, "staging")
}

// BrandNames returns configured brand names in stable order.
func (c *Config) BrandNames() []string {
	names := make([]string, 0, len(c.Brands))
	for name := range c.Brands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Brand returns the named brand configuration.
func (c *Config) Brand(name string) (Brand, bool) {
	brand, ok := c.Brands[strings.ToLower(strings.TrimSpace(name))]
	return brand, ok
}

// BrandLocation resolves the brand's configured timezone.
func (c *Config) BrandLocation(name string) (*time.Location, error) {
	brand, ok := c.Brand(name)
	if !ok {
		return nil, fmt.Errorf("unknown brand %q", name)
	}
	loc, err := time.LoadLocation(brand.Timezone)
	if err != nil {
		return nil, fmt.Errorf("brand %s timezone: %w", name, err)
	}
	return loc, nil
}

// BrandPolicy returns the scheduling policy for a brand, falling back to the global policy.
func (c *Config) BrandPolicy(name string) string {
	if brand, ok := c.Brand(name); ok && brand.Policy != "" {
		return brand.Policy
	}
	return c.Scheduling.Policy
}

// StuckThreshold returns how long a record may sit in status before the sweep treats it as stuck.
func (c *Config) StuckThreshold(status string) time.Duration {
	minutes, ok := c.Workflow.StuckMinutes[status]
	if !ok || minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

// DirectPlatforms returns the platforms published through a direct upload API.
func (c *Config) DirectPlatforms() []string {
	var names []string
	for name, platform := range c.Platforms {
		if platform.Direct {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
