package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSecrets()
	c.normalizeWorkflow()
	c.normalizeScheduling()
	c.normalizeBrands()
	c.normalizePlatforms()
	c.normalizeProviders()
	c.normalizeStorage()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = lookupEnv("POSTFLOW_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeSecrets() {
	c.Cron.Secret = strings.TrimSpace(c.Cron.Secret)
	if c.Cron.Secret == "" {
		c.Cron.Secret = lookupEnv("CRON_SECRET")
	}
	c.Cron.TrustedHeader = strings.TrimSpace(c.Cron.TrustedHeader)
	c.Cron.TrustedValue = strings.TrimSpace(c.Cron.TrustedValue)

	c.Webhooks.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Webhooks.PublicBaseURL), "/")
	if c.Webhooks.PublicBaseURL == "" {
		c.Webhooks.PublicBaseURL = strings.TrimRight(lookupEnv("POSTFLOW_PUBLIC_URL"), "/")
	}
	c.Webhooks.Secret = strings.TrimSpace(c.Webhooks.Secret)
	if c.Webhooks.Secret == "" {
		c.Webhooks.Secret = lookupEnv("WEBHOOK_SECRET")
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.StuckMinutes == nil {
		c.Workflow.StuckMinutes = map[string]int{}
	}
	normalized := make(map[string]int, len(defaultStuckMinutes))
	for status, minutes := range c.Workflow.StuckMinutes {
		normalized[strings.ToLower(strings.TrimSpace(status))] = minutes
	}
	for status, minutes := range defaultStuckMinutes {
		if _, ok := normalized[status]; !ok {
			normalized[status] = minutes
		}
	}
	c.Workflow.StuckMinutes = normalized
}

func (c *Config) normalizeScheduling() {
	c.Scheduling.Policy = normalizePolicy(c.Scheduling.Policy)
	if c.Scheduling.Policy == "" {
		c.Scheduling.Policy = defaultPolicy
	}
	if len(c.Scheduling.Ladder) == 0 {
		c.Scheduling.Ladder = append([]int(nil), defaultLadder...)
	}
	c.Scheduling.ClaimBackend = strings.ToLower(strings.TrimSpace(c.Scheduling.ClaimBackend))
	if c.Scheduling.ClaimBackend == "" {
		c.Scheduling.ClaimBackend = defaultClaimBackend
	}
}

func (c *Config) normalizeBrands() {
	if len(c.Brands) == 0 {
		c.Brands = map[string]Brand{}
		return
	}
	normalized := make(map[string]Brand, len(c.Brands))
	for name, brand := range c.Brands {
		brand.Timezone = strings.TrimSpace(brand.Timezone)
		if brand.Timezone == "" {
			brand.Timezone = defaultTimezone
		}
		brand.Platforms = lowerAll(brand.Platforms)
		brand.Policy = normalizePolicy(brand.Policy)
		brand.LateProfileID = strings.TrimSpace(brand.LateProfileID)
		if brand.LateProfileID == "" {
			brand.LateProfileID = lookupEnv("LATE_" + strings.ToUpper(name) + "_PROFILE_ID")
		}
		if len(brand.Accounts) > 0 {
			accounts := make(map[string]string, len(brand.Accounts))
			for platform, id := range brand.Accounts {
				accounts[strings.ToLower(strings.TrimSpace(platform))] = strings.TrimSpace(id)
			}
			brand.Accounts = accounts
		}
		normalized[strings.ToLower(strings.TrimSpace(name))] = brand
	}
	c.Brands = normalized
}

func (c *Config) normalizePlatforms() {
	if len(c.Platforms) == 0 {
		c.Platforms = defaultPlatforms()
		return
	}
	normalized := make(map[string]Platform, len(c.Platforms))
	for name, platform := range c.Platforms {
		if len(platform.Weekdays) > 0 {
			days := make(map[string][]int, len(platform.Weekdays))
			for day, hours := range platform.Weekdays {
				days[strings.ToLower(strings.TrimSpace(day))] = hours
			}
			platform.Weekdays = days
		}
		normalized[strings.ToLower(strings.TrimSpace(name))] = platform
	}
	c.Platforms = normalized
}

func (c *Config) normalizeProviders() {
	c.LLM.APIKey = envFallback(c.LLM.APIKey, "OPENAI_API_KEY")
	c.LLM.BaseURL = trimURL(c.LLM.BaseURL, defaultLLMBaseURL)
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.HeyGen.APIKey = envFallback(c.HeyGen.APIKey, "HEYGEN_API_KEY")
	c.HeyGen.BaseURL = trimURL(c.HeyGen.BaseURL, defaultHeyGenBaseURL)
	c.Submagic.APIKey = envFallback(c.Submagic.APIKey, "SUBMAGIC_API_KEY")
	c.Submagic.BaseURL = trimURL(c.Submagic.BaseURL, defaultSubmagicBaseURL)
	if strings.TrimSpace(c.Submagic.Template) == "" {
		c.Submagic.Template = defaultSubmagicTemplate
	}
	c.Late.APIKey = envFallback(c.Late.APIKey, "LATE_API_KEY")
	c.Late.BaseURL = trimURL(c.Late.BaseURL, defaultLateBaseURL)

	c.YouTube.ClientID = envFallback(c.YouTube.ClientID, "YOUTUBE_CLIENT_ID")
	c.YouTube.ClientSecret = envFallback(c.YouTube.ClientSecret, "YOUTUBE_CLIENT_SECRET")
	c.YouTube.RefreshToken = envFallback(c.YouTube.RefreshToken, "YOUTUBE_REFRESH_TOKEN")
	if strings.TrimSpace(c.YouTube.CategoryID) == "" {
		c.YouTube.CategoryID = defaultYouTubeCategory
	}

	c.Redis.URL = envFallback(c.Redis.URL, "REDIS_URL")
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = defaultRedisKeyPrefix
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeStorage() {
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.AccessKey = envFallback(c.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	c.Storage.SecretKey = envFallback(c.Storage.SecretKey, "STORAGE_SECRET_KEY")
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	if strings.TrimSpace(c.Storage.Region) == "" {
		c.Storage.Region = defaultStorageRegion
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizePolicy(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "-", "_")
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return lookupEnv(key)
}

func lookupEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func trimURL(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
