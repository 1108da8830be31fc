package config

const (
	defaultDataDir           = "~/.local/share/postflow"
	defaultLogDir            = "~/.local/share/postflow/logs"
	defaultAPIBind           = "127.0.0.1:7490"
	defaultTrustedHeader     = "User-Agent"
	defaultTrustedValue      = "vercel-cron/1.0"
	defaultMaxRetries        = 3
	defaultSweepBatchSize    = 10
	defaultSweepInterval     = 300
	defaultSweepLease        = 240
	defaultRecordTimeout     = 45
	defaultOrphanLockMinutes = 30
	defaultPolicy            = "same_day"
	defaultClaimBackend      = "sqlite"
	defaultMaxRolloverDays   = 7
	defaultTimezone          = "America/Chicago"
	defaultLLMBaseURL        = "https://api.openai.com/v1"
	defaultLLMModel          = "gpt-4o-mini"
	defaultLLMTemperature    = 0.8
	defaultLLMTimeout        = 60
	defaultHeyGenBaseURL     = "https://api.heygen.com"
	defaultHeyGenWidth       = 1080
	defaultHeyGenHeight      = 1920
	defaultSubmagicBaseURL   = "https://api.submagic.co"
	defaultSubmagicTemplate  = "Hormozi 2"
	defaultSubmagicLanguage  = "en"
	defaultLateBaseURL       = "https://getlate.dev/api/v1"
	defaultProviderTimeout   = 30
	defaultUploadTimeout     = 600
	defaultYouTubeCategory   = "22"
	defaultStorageRegion     = "auto"
	defaultRedisKeyPrefix    = "postflow:"
	defaultSlotTTLHours      = 72
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

var defaultLadder = []int{9, 11, 14, 18, 20}

var defaultStuckMinutes = map[string]int{
	"queued":             5,
	"video_processing":   30,
	"caption_processing": 5,
	"relocating":         3,
	"scheduling":         3,
	"posting":            10,
}

func defaultPlatforms() map[string]Platform {
	return map[string]Platform{
		"youtube":   {Hours: []int{12, 15, 19, 20}, Direct: true},
		"tiktok":    {Hours: []int{9, 12, 19, 21}},
		"instagram": {Hours: []int{11, 14, 19}},
		"facebook":  {Hours: []int{9, 13, 15}},
		"linkedin":  {Hours: []int{8, 12, 17}},
		"twitter":   {Hours: []int{9, 12, 17}},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	stuck := make(map[string]int, len(defaultStuckMinutes))
	for status, minutes := range defaultStuckMinutes {
		stuck[status] = minutes
	}
	ladder := make([]int, len(defaultLadder))
	copy(ladder, defaultLadder)

	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Cron: Cron{
			TrustedHeader: defaultTrustedHeader,
			TrustedValue:  defaultTrustedValue,
		},
		Workflow: Workflow{
			MaxRetries:        defaultMaxRetries,
			SweepBatchSize:    defaultSweepBatchSize,
			SweepInterval:     defaultSweepInterval,
			SweepLease:        defaultSweepLease,
			RecordTimeout:     defaultRecordTimeout,
			OrphanLockMinutes: defaultOrphanLockMinutes,
			StuckMinutes:      stuck,
		},
		Scheduling: Scheduling{
			Policy:          defaultPolicy,
			Ladder:          ladder,
			MaxRolloverDays: defaultMaxRolloverDays,
			ClaimBackend:    defaultClaimBackend,
		},
		Brands:    map[string]Brand{},
		Platforms: defaultPlatforms(),
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Temperature:    defaultLLMTemperature,
			TimeoutSeconds: defaultLLMTimeout,
		},
		HeyGen: HeyGen{
			BaseURL:        defaultHeyGenBaseURL,
			Width:          defaultHeyGenWidth,
			Height:         defaultHeyGenHeight,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Submagic: Submagic{
			BaseURL:        defaultSubmagicBaseURL,
			Template:       defaultSubmagicTemplate,
			Language:       defaultSubmagicLanguage,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Late: Late{
			BaseURL:        defaultLateBaseURL,
			TimeoutSeconds: defaultProviderTimeout,
		},
		YouTube: YouTube{
			CategoryID:     defaultYouTubeCategory,
			TimeoutSeconds: defaultUploadTimeout,
		},
		Storage: Storage{
			Region: defaultStorageRegion,
		},
		Redis: Redis{
			KeyPrefix:    defaultRedisKeyPrefix,
			SlotTTLHours: defaultSlotTTLHours,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Completions:    true,
			Failures:       true,
			PartialPosts:   true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
