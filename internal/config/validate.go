package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday converts a lowercase weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return day, ok
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateScheduling(); err != nil {
		return err
	}
	if err := c.validatePlatforms(); err != nil {
		return err
	}
	if err := c.validateBrands(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateYouTube(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxRetries < 0 {
		return errors.New("workflow.max_retries must not be negative")
	}
	if err := ensurePositiveMap(map[string]int{
		"workflow.sweep_batch_size":    c.Workflow.SweepBatchSize,
		"workflow.sweep_lease":         c.Workflow.SweepLease,
		"workflow.record_timeout":      c.Workflow.RecordTimeout,
		"workflow.orphan_lock_minutes": c.Workflow.OrphanLockMinutes,
	}); err != nil {
		return err
	}
	if c.Workflow.SweepInterval < 0 || c.Workflow.StartInterval < 0 {
		return errors.New("workflow.sweep_interval and workflow.start_interval must not be negative")
	}
	for status, minutes := range c.Workflow.StuckMinutes {
		if minutes <= 0 {
			return fmt.Errorf("workflow.stuck_minutes.%s must be positive", status)
		}
	}
	return nil
}

func (c *Config) validateScheduling() error {
	switch c.Scheduling.Policy {
	case "same_day", "fixed_future":
	default:
		return fmt.Errorf("scheduling.policy: unsupported value %q (expected same_day or fixed_future)", c.Scheduling.Policy)
	}
	if err := validateHours("scheduling.ladder", c.Scheduling.Ladder); err != nil {
		return err
	}
	if c.Scheduling.MaxRolloverDays <= 0 {
		return errors.New("scheduling.max_rollover_days must be positive")
	}
	switch c.Scheduling.ClaimBackend {
	case "sqlite":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url must be set when scheduling.claim_backend is redis")
		}
		if c.Redis.SlotTTLHours <= 0 {
			return errors.New("redis.slot_ttl_hours must be positive")
		}
	default:
		return fmt.Errorf("scheduling.claim_backend: unsupported value %q", c.Scheduling.ClaimBackend)
	}
	return nil
}

func (c *Config) validatePlatforms() error {
	for name, platform := range c.Platforms {
		if err := validateHours("platforms."+name+".hours", platform.Hours); err != nil {
			return err
		}
		for day, hours := range platform.Weekdays {
			if _, ok := ParseWeekday(day); !ok {
				return fmt.Errorf("platforms.%s.weekdays: unknown weekday %q", name, day)
			}
			if err := validateHours("platforms."+name+".weekdays."+day, hours); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Config) validateBrands() error {
	for name, brand := range c.Brands {
		if name == "" {
			return errors.New("brands: brand name must not be empty")
		}
		if _, err := time.LoadLocation(brand.Timezone); err != nil {
			return fmt.Errorf("brands.%s.timezone: %w", name, err)
		}
		if len(brand.Platforms) == 0 {
			return fmt.Errorf("brands.%s.platforms must include at least one platform", name)
		}
		for _, platform := range brand.Platforms {
			if _, ok := c.Platforms[platform]; !ok {
				return fmt.Errorf("brands.%s.platforms: platform %q has no [platforms.%s] hours", name, platform, platform)
			}
		}
		switch brand.Policy {
		case "", "same_day", "fixed_future":
		default:
			return fmt.Errorf("brands.%s.policy: unsupported value %q", name, brand.Policy)
		}
		if brand.MinQuality < 0 {
			return fmt.Errorf("brands.%s.min_quality must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature: %.2f out of range 0-2", c.LLM.Temperature)
	}
	if c.LLM.APIKey != "" && c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateYouTube() error {
	if !c.YouTube.Enabled {
		return nil
	}
	if c.YouTube.ClientID == "" || c.YouTube.ClientSecret == "" || c.YouTube.RefreshToken == "" {
		return errors.New("youtube.client_id, youtube.client_secret, and youtube.refresh_token must be set when youtube.enabled is true")
	}
	if c.YouTube.TimeoutSeconds <= 0 {
		return errors.New("youtube.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateHours(field string, hours []int) error {
	if len(hours) == 0 {
		return fmt.Errorf("%s must include at least one hour", field)
	}
	seen := make(map[int]struct{}, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%s: hour %d out of range 0-23", field, h)
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("%s: duplicate hour %d", field, h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
