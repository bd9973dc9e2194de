package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the stockflow engine.
type Config struct {
	Environment  string             `toml:"environment"`
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Cache        CacheConfig        `toml:"cache"`
	Engine       EngineConfig       `toml:"engine"`
	News         NewsConfig         `toml:"news"`
	ReportSource ReportSourceConfig `toml:"report_source"`
	Clients      ClientsConfig      `toml:"clients"`
	Logging      LoggingConfig      `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects the blob backend and its prefixes.
type StorageConfig struct {
	Backend         string `toml:"backend"` // "local" or "gcs"
	Bucket          string `toml:"bucket"`
	LocalRoot       string `toml:"local_root"`
	RawNewsPrefix   string `toml:"raw_news_prefix"`
	TopicNewsPrefix string `toml:"topic_news_prefix"`
	PersonPrefix    string `toml:"person_news_prefix"`
	AIContextPrefix string `toml:"ai_context_prefix"`
}

// CacheConfig holds L1 TTLs and refresh-gate windows.
type CacheConfig struct {
	FinancialHitTTLSeconds      int `toml:"financial_l1_hit_ttl_seconds"`
	FinancialMissTTLSeconds     int `toml:"financial_l1_miss_ttl_seconds"`
	NoEarningsMaxStalenessDays  int `toml:"financial_no_earnings_max_staleness_days"`
	MinRefreshIntervalSeconds   int `toml:"min_refresh_interval_seconds"`
	FailBackoffSeconds          int `toml:"fail_backoff_seconds"`
	ReportSourceCacheTTLSeconds int `toml:"report_source_cache_ttl_seconds"`
}

// HitTTL returns the L1 TTL for populated entries.
func (c *CacheConfig) HitTTL() time.Duration {
	return secondsOr(c.FinancialHitTTLSeconds, 600)
}

// MissTTL returns the L1 TTL for negative entries.
func (c *CacheConfig) MissTTL() time.Duration {
	return secondsOr(c.FinancialMissTTLSeconds, 120)
}

// MinRefreshInterval returns the per-ticker refresh gate window.
func (c *CacheConfig) MinRefreshInterval() time.Duration {
	return secondsOr(c.MinRefreshIntervalSeconds, 600)
}

// FailBackoff returns the backoff installed after a failed refresh.
func (c *CacheConfig) FailBackoff() time.Duration {
	return secondsOr(c.FailBackoffSeconds, 60)
}

// ReportSourceTTL returns the report-source cache TTL.
func (c *CacheConfig) ReportSourceTTL() time.Duration {
	return secondsOr(c.ReportSourceCacheTTLSeconds, 86400)
}

// NoEarningsStaleness returns the staleness window used when no earnings
// date is known upstream.
func (c *CacheConfig) NoEarningsStaleness() int {
	if c.NoEarningsMaxStalenessDays > 0 {
		return c.NoEarningsMaxStalenessDays
	}
	return 3
}

func secondsOr(v int, fallback int) time.Duration {
	if v > 0 {
		return time.Duration(v) * time.Second
	}
	return time.Duration(fallback) * time.Second
}

// EngineConfig holds cross-engine settings.
type EngineConfig struct {
	Timezone           string `toml:"timezone"`             // e.g. "America/Los_Angeles"
	AIContextSteps     string `toml:"ai_context_steps"`     // comma-separated subset of "1,2"
	EngineCallTimeout  string `toml:"engine_call_timeout"`  // per-dispatch deadline in the orchestrator
	BackfillYears      int    `toml:"backfill_years"`       // initial history depth
	IncrementalLookbak int    `toml:"incremental_lookback"` // days re-fetched to absorb upstream corrections
	DailyCron          string `toml:"daily_cron"`           // cron spec for the daily batch, engine timezone
}

// DailySchedule returns the cron spec for the daily batch run.
func (c *EngineConfig) DailySchedule() string {
	if c.DailyCron != "" {
		return c.DailyCron
	}
	return "0 6 * * *"
}

// Location resolves the configured timezone, defaulting to America/Los_Angeles.
func (c *EngineConfig) Location() *time.Location {
	name := c.Timezone
	if name == "" {
		name = "America/Los_Angeles"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Steps parses the configured AI-context step list, defaulting to {1,2}.
func (c *EngineConfig) Steps() []int {
	raw := c.AIContextSteps
	if raw == "" {
		return []int{1, 2}
	}
	var steps []int
	for _, part := range splitAndTrim(raw, ",") {
		n, err := strconv.Atoi(part)
		if err != nil || (n != 1 && n != 2) {
			continue
		}
		steps = append(steps, n)
	}
	if len(steps) == 0 {
		return []int{1, 2}
	}
	return steps
}

// CallTimeout returns the per-dispatch deadline, defaulting to 300s.
func (c *EngineConfig) CallTimeout() time.Duration {
	d, err := time.ParseDuration(c.EngineCallTimeout)
	if err != nil || d <= 0 {
		return 300 * time.Second
	}
	return d
}

// LookbackDays returns the incremental back-look window (default 7 days).
func (c *EngineConfig) LookbackDays() int {
	if c.IncrementalLookbak > 0 {
		return c.IncrementalLookbak
	}
	return 7
}

// Years returns the initial backfill depth (default 5 years).
func (c *EngineConfig) Years() int {
	if c.BackfillYears > 0 {
		return c.BackfillYears
	}
	return 5
}

// NewsConfig holds news-ingest defaults applied when a topic config is silent.
type NewsConfig struct {
	MaxAgeHours          int    `toml:"max_age_hours"`
	MaxArticlesPerTicker int    `toml:"max_articles_per_ticker"`
	FeedsEnabled         bool   `toml:"feeds_enabled"`
	RegistryPath         string `toml:"registry_path"`       // local registry JSON file
	RegistryRemoteKey    string `toml:"registry_remote_key"` // registry blob overlay key
}

// MaxAge returns the default article age cutoff (default 48h).
func (c *NewsConfig) MaxAge() int {
	if c.MaxAgeHours > 0 {
		return c.MaxAgeHours
	}
	return 48
}

// MaxArticles returns the default per-entity article cap (default 30).
func (c *NewsConfig) MaxArticles() int {
	if c.MaxArticlesPerTicker > 0 {
		return c.MaxArticlesPerTicker
	}
	return 30
}

// ReportSourceConfig holds resolver settings.
type ReportSourceConfig struct {
	EnableAI      bool   `toml:"enable_ai"`
	MaxCandidates int    `toml:"max_candidates"`
	SearchAPIKey  string `toml:"search_api_key"`
	SearchCX      string `toml:"search_cx"`
}

// CandidateCap returns the candidate cap (default 24).
func (c *ReportSourceConfig) CandidateCap() int {
	if c.MaxCandidates > 0 {
		return c.MaxCandidates
	}
	return 24
}

// ClientsConfig holds upstream client configurations.
type ClientsConfig struct {
	MarketData MarketDataConfig `toml:"marketdata"`
	Gemini     GeminiConfig     `toml:"gemini"`
	Cards      CardsConfig      `toml:"cards"`
}

// CardsConfig holds the downstream card-generation service configuration.
type CardsConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the request timeout (default 300s, matching
// the orchestrator dispatch deadline).
func (c *CardsConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 300 * time.Second
	}
	return d
}

// MarketDataConfig holds the market-data adapter configuration.
type MarketDataConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration.
func (c *MarketDataConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GeminiConfig holds the AI-verification client configuration.
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:         "local",
			LocalRoot:       "data",
			RawNewsPrefix:   "raw-news",
			TopicNewsPrefix: "topic-news",
			PersonPrefix:    "person-news",
			AIContextPrefix: "ai_context",
		},
		News: NewsConfig{
			FeedsEnabled:      true,
			RegistryRemoteKey: "config/news_topics.json",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads TOML configuration from path and applies env overrides.
// A missing file yields the defaults (env overrides still apply).
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	setString(&config.Storage.Backend, "STORAGE_BACKEND")
	setString(&config.Storage.Bucket, "GCS_BUCKET_NAME")
	setString(&config.Storage.LocalRoot, "LOCAL_STORAGE_ROOT")
	setString(&config.Storage.RawNewsPrefix, "RAW_NEWS_PREFIX")
	setString(&config.Storage.TopicNewsPrefix, "TOPIC_NEWS_PREFIX")
	setString(&config.Storage.PersonPrefix, "PERSON_NEWS_PREFIX")
	setString(&config.Storage.AIContextPrefix, "AI_CONTEXT_PREFIX")

	setInt(&config.Cache.FinancialHitTTLSeconds, "FINANCIAL_L1_HIT_TTL_SECONDS")
	setInt(&config.Cache.FinancialMissTTLSeconds, "FINANCIAL_L1_MISS_TTL_SECONDS")
	setInt(&config.Cache.NoEarningsMaxStalenessDays, "FINANCIAL_NO_EARNINGS_MAX_STALENESS_DAYS")
	setInt(&config.Cache.MinRefreshIntervalSeconds, "MIN_REFRESH_INTERVAL_SECONDS")
	setInt(&config.Cache.FailBackoffSeconds, "FAIL_BACKOFF_SECONDS")
	setInt(&config.Cache.ReportSourceCacheTTLSeconds, "REPORT_SOURCE_CACHE_TTL_SECONDS")

	setString(&config.Engine.Timezone, "ENGINE_TZ")
	setString(&config.Engine.AIContextSteps, "AI_CONTEXT_OUTPUT_STEPS")

	setInt(&config.News.MaxAgeHours, "NEWS_MAX_AGE_HOURS")
	setInt(&config.News.MaxArticlesPerTicker, "MAX_ARTICLES_PER_TICKER")
	setString(&config.News.RegistryPath, "NEWS_REGISTRY_PATH")
	setString(&config.News.RegistryRemoteKey, "NEWS_REGISTRY_REMOTE_KEY")

	setBool(&config.ReportSource.EnableAI, "REPORT_SOURCE_ENABLE_AI")
	setInt(&config.ReportSource.MaxCandidates, "REPORT_SOURCE_MAX_CANDIDATES")

	setString(&config.Clients.MarketData.APIKey, "MARKETDATA_API_KEY")
	setString(&config.Clients.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&config.Clients.Cards.BaseURL, "CARD_SERVICE_URL")
	setString(&config.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
