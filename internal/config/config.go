// SPDX-License-Identifier: MIT

package config

import "time"

// TapTapEndpoint holds the LeanCloud-backed credentials and TapTap OAuth
// device-code endpoints for one TapTap region (cn or global).
type TapTapEndpoint struct {
	LeanCloudBaseURL string
	LeanCloudAppID   string
	LeanCloudAppKey  string

	DeviceCodeEndpoint string
	TokenEndpoint      string
	UserInfoEndpoint   string
}

// TapTapConfig is the taptap.{cn,global} configuration block (APP_TAPTAP_*).
type TapTapConfig struct {
	CN             TapTapEndpoint
	Global         TapTapEndpoint
	DefaultVersion string // "cn" or "global"
}

// SaveConfig is the save.* configuration block (C3/C4).
type SaveConfig struct {
	PBKDF2RoundsMin int
	PBKDF2RoundsMax int
	MaxDownloadBytes int64
	TapTap          TapTapConfig
}

// ArchiveConfig is stats.archive.*.
type ArchiveConfig struct {
	Dir      string
	Compress string // "none" | "snappy" | "zstd"
	Parquet  bool
}

// StatsConfig is stats.*.
type StatsConfig struct {
	SQLitePath        string
	BatchSize         int
	FlushIntervalMs   int
	RetentionHotDays  int
	Archive           ArchiveConfig
	UserHashSalt      string
	Timezone          string
	DailyAggregateTime string // "HH:MM", local to Timezone
}

// SessionConfig is session.*.
type SessionConfig struct {
	Enabled              bool
	JWTSecret            string
	JWTIssuer            string
	JWTAudience          string
	TTLSecs              int64
	ExchangeSharedSecret string
	CookieName           string
	CookieSecure         bool
	AuthEmbedSecret      string
	AuthCacheCapacity    int
}

// ImageConfig is image.*.
type ImageConfig struct {
	CacheEnabled      bool
	OptimizeSpeed     bool
	RenderConcurrency int
}

// LeaderboardConfig is leaderboard.*.
type LeaderboardConfig struct {
	AdminTokens        []string
	AllowPublic        bool
	DefaultShowRKS     bool
	DefaultShowBest3   bool
	DefaultShowAP3     bool
}

// BrandingConfig is branding.*.
type BrandingConfig struct {
	FooterText string
}

// WatermarkConfig is watermark.*.
type WatermarkConfig struct {
	ExplicitBadge  bool
	ImplicitPixel  bool
	UnlockStatic   string
	UnlockDynamic  bool
	DynamicSalt    string
	DynamicTTLSecs int
	DynamicSecret  string
	DynamicLength  int
}

// WatchdogConfig is shutdown.watchdog.*.
type WatchdogConfig struct {
	Enabled      bool
	TimeoutSecs  int
	IntervalSecs int
}

// ShutdownConfig is shutdown.*.
type ShutdownConfig struct {
	TimeoutSecs     int
	ForceQuit       bool
	ForceDelaySecs  int
	Watchdog        WatchdogConfig
}

// Config is the complete process configuration, resolved once at startup
// from APP_-prefixed environment variables (dots replaced by underscores).
type Config struct {
	Save        SaveConfig
	Stats       StatsConfig
	Session     SessionConfig
	Image       ImageConfig
	Leaderboard LeaderboardConfig
	Branding    BrandingConfig
	Watermark   WatermarkConfig
	Shutdown    ShutdownConfig

	ListenAddr  string
	AdminToken  string // PHI_ADMIN_TOKEN, kept outside the APP_ prefix per spec §6
}

// Load resolves Config from the process environment. Values fall back to
// defaults documented in spec.md §6 when unset.
func Load() Config {
	cfg := Config{
		ListenAddr: ParseString("APP_LISTEN_ADDR", ":8080"),
		AdminToken: ParseString("PHI_ADMIN_TOKEN", ""),
		Save: SaveConfig{
			PBKDF2RoundsMin:  ParseInt("APP_SAVE_PBKDF2_ROUNDS_MIN", 1000),
			PBKDF2RoundsMax:  ParseInt("APP_SAVE_PBKDF2_ROUNDS_MAX", 100000),
			MaxDownloadBytes: int64(ParseInt("APP_SAVE_MAX_DOWNLOAD_BYTES", 64<<20)),
			TapTap: TapTapConfig{
				CN: TapTapEndpoint{
					LeanCloudBaseURL:   ParseString("APP_TAPTAP_CN_LEANCLOUD_BASE_URL", ""),
					LeanCloudAppID:     ParseString("APP_TAPTAP_CN_LEANCLOUD_APP_ID", ""),
					LeanCloudAppKey:    ParseString("APP_TAPTAP_CN_LEANCLOUD_APP_KEY", ""),
					DeviceCodeEndpoint: ParseString("APP_TAPTAP_CN_DEVICE_CODE_ENDPOINT", "https://open.tapapis.cn/oauth/device/code"),
					TokenEndpoint:      ParseString("APP_TAPTAP_CN_TOKEN_ENDPOINT", "https://open.tapapis.cn/oauth/device/token"),
					UserInfoEndpoint:   ParseString("APP_TAPTAP_CN_USER_INFO_ENDPOINT", "https://open.tapapis.cn/account/basic-info/v1"),
				},
				Global: TapTapEndpoint{
					LeanCloudBaseURL:   ParseString("APP_TAPTAP_GLOBAL_LEANCLOUD_BASE_URL", ""),
					LeanCloudAppID:     ParseString("APP_TAPTAP_GLOBAL_LEANCLOUD_APP_ID", ""),
					LeanCloudAppKey:    ParseString("APP_TAPTAP_GLOBAL_LEANCLOUD_APP_KEY", ""),
					DeviceCodeEndpoint: ParseString("APP_TAPTAP_GLOBAL_DEVICE_CODE_ENDPOINT", "https://open.tapapis.com/oauth/device/code"),
					TokenEndpoint:      ParseString("APP_TAPTAP_GLOBAL_TOKEN_ENDPOINT", "https://open.tapapis.com/oauth/device/token"),
					UserInfoEndpoint:   ParseString("APP_TAPTAP_GLOBAL_USER_INFO_ENDPOINT", "https://open.tapapis.com/account/basic-info/v1"),
				},
				DefaultVersion: ParseString("APP_TAPTAP_DEFAULT_VERSION", "cn"),
			},
		},
		Stats: StatsConfig{
			SQLitePath:         ParseString("APP_STATS_SQLITE_PATH", "./data/stats.db"),
			BatchSize:          ParseInt("APP_STATS_BATCH_SIZE", 90),
			FlushIntervalMs:    ParseInt("APP_STATS_FLUSH_INTERVAL_MS", 1000),
			RetentionHotDays:   ParseInt("APP_STATS_RETENTION_HOT_DAYS", 14),
			UserHashSalt:       ParseString("APP_STATS_USER_HASH_SALT", ""),
			Timezone:           ParseString("APP_STATS_TIMEZONE", "Asia/Shanghai"),
			DailyAggregateTime: ParseString("APP_STATS_DAILY_AGGREGATE_TIME", "03:00"),
			Archive: ArchiveConfig{
				Dir:      ParseString("APP_STATS_ARCHIVE_DIR", "./data/archive"),
				Compress: ParseString("APP_STATS_ARCHIVE_COMPRESS", "zstd"),
				Parquet:  ParseBool("APP_STATS_ARCHIVE_PARQUET", true),
			},
		},
		Session: SessionConfig{
			Enabled:              ParseBool("APP_SESSION_ENABLED", true),
			JWTSecret:            ParseString("APP_SESSION_JWT_SECRET", ""),
			JWTIssuer:            ParseString("APP_SESSION_JWT_ISSUER", "phi-backend"),
			JWTAudience:          ParseString("APP_SESSION_JWT_AUDIENCE", "phi-clients"),
			TTLSecs:              int64(ParseInt("APP_SESSION_TTL_SECS", 3600)),
			ExchangeSharedSecret: ParseString("APP_SESSION_EXCHANGE_SHARED_SECRET", ""),
			CookieName:           ParseString("APP_SESSION_COOKIE_NAME", "phi_session"),
			CookieSecure:         ParseBool("APP_SESSION_COOKIE_SECURE", true),
			AuthEmbedSecret:      ParseString("APP_SESSION_AUTH_EMBED_SECRET", ""),
			AuthCacheCapacity:    ParseInt("APP_SESSION_AUTH_CACHE_CAPACITY", 50000),
		},
		Image: ImageConfig{
			CacheEnabled:      ParseBool("APP_IMAGE_CACHE_ENABLED", true),
			OptimizeSpeed:     ParseBool("APP_IMAGE_OPTIMIZE_SPEED", false),
			RenderConcurrency: ParseInt("APP_IMAGE_RENDER_CONCURRENCY", 4),
		},
		Leaderboard: LeaderboardConfig{
			AdminTokens:      ParseStringList("APP_LEADERBOARD_ADMIN_TOKENS", nil),
			AllowPublic:      ParseBool("APP_LEADERBOARD_ALLOW_PUBLIC", true),
			DefaultShowRKS:   ParseBool("APP_LEADERBOARD_DEFAULT_SHOW_RKS", true),
			DefaultShowBest3: ParseBool("APP_LEADERBOARD_DEFAULT_SHOW_BEST3", true),
			DefaultShowAP3:   ParseBool("APP_LEADERBOARD_DEFAULT_SHOW_AP3", true),
		},
		Branding: BrandingConfig{
			FooterText: ParseString("APP_BRANDING_FOOTER_TEXT", ""),
		},
		Watermark: WatermarkConfig{
			ExplicitBadge:  ParseBool("APP_WATERMARK_EXPLICIT_BADGE", true),
			ImplicitPixel:  ParseBool("APP_WATERMARK_IMPLICIT_PIXEL", true),
			UnlockStatic:   ParseString("APP_WATERMARK_UNLOCK_STATIC", ""),
			UnlockDynamic:  ParseBool("APP_WATERMARK_UNLOCK_DYNAMIC", false),
			DynamicSalt:    ParseString("APP_WATERMARK_DYNAMIC_SALT", ""),
			DynamicTTLSecs: ParseInt("APP_WATERMARK_DYNAMIC_TTL_SECS", 300),
			DynamicSecret:  ParseString("APP_WATERMARK_DYNAMIC_SECRET", ""),
			DynamicLength:  ParseInt("APP_WATERMARK_DYNAMIC_LENGTH", 8),
		},
		Shutdown: ShutdownConfig{
			TimeoutSecs:    ParseInt("APP_SHUTDOWN_TIMEOUT_SECS", 30),
			ForceQuit:      ParseBool("APP_SHUTDOWN_FORCE_QUIT", true),
			ForceDelaySecs: ParseInt("APP_SHUTDOWN_FORCE_DELAY_SECS", 5),
			Watchdog: WatchdogConfig{
				Enabled:      ParseBool("APP_SHUTDOWN_WATCHDOG_ENABLED", false),
				TimeoutSecs:  ParseInt("APP_SHUTDOWN_WATCHDOG_TIMEOUT_SECS", 30),
				IntervalSecs: ParseInt("APP_SHUTDOWN_WATCHDOG_INTERVAL_SECS", 10),
			},
		},
	}
	if cfg.Stats.BatchSize*11 > 999 {
		// bound-parameter count per statement must stay <= 999 (spec §4.5)
		cfg.Stats.BatchSize = 999 / 11
	}
	return cfg
}

// ShutdownTimeout is a convenience accessor used by the daemon lifecycle.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Shutdown.TimeoutSecs) * time.Second
}
