// Package config loads and validates sourcer configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Search  SearchConfig  `mapstructure:"search"`
	Dataset DatasetConfig `mapstructure:"dataset"`
	Session SessionConfig `mapstructure:"session"`
	Browser BrowserConfig `mapstructure:"browser"`
	Direct  DirectConfig  `mapstructure:"direct"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Agent   AgentConfig   `mapstructure:"agent"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

// ServerConfig controls the read-only HTTP surface.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// LLMConfig configures the structured-extraction and embedding services.
type LLMConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SearchConfig configures the web search service client.
type SearchConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DatasetConfig configures the batch dataset-scrape API channel.
type DatasetConfig struct {
	APIKey          string `mapstructure:"api_key"`
	DatasetID       string `mapstructure:"dataset_id"`
	Endpoint        string `mapstructure:"endpoint"`
	PollIntervalSec int    `mapstructure:"poll_interval_seconds"`
	MaxPolls        int    `mapstructure:"max_polls"`
	BatchSize       int    `mapstructure:"batch_size"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// SessionConfig configures the session-based scraping fallback channel.
type SessionConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BrowserConfig configures the browser-automation pivot channel.
type BrowserConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	UserDataDir       string `mapstructure:"user_data_dir"`
	Headless          bool   `mapstructure:"headless"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	BreakerThreshold  int    `mapstructure:"breaker_threshold"`
	MaxRetries        int    `mapstructure:"max_retries"`
	ChallengeMaxPolls int    `mapstructure:"challenge_max_polls"`
	ChallengePollMs   int    `mapstructure:"challenge_poll_ms"`
	SearchEngineURL   string `mapstructure:"search_engine_url"`
}

// DirectConfig configures the direct HTTP channel and its proxy pool.
type DirectConfig struct {
	Proxies        []string `mapstructure:"proxies"`
	ProxyFile      string   `mapstructure:"proxy_file"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// FetcherConfig governs the profile fetcher's shared limits.
type FetcherConfig struct {
	MaxConcurrent   int `mapstructure:"max_concurrent"`
	RequestDelaySec int `mapstructure:"request_delay_seconds"`
	TTLDays         int `mapstructure:"ttl_days"`
}

// AgentConfig governs the sourcing loop.
type AgentConfig struct {
	TargetProfiles   int `mapstructure:"target_profiles"`
	ResultsPerQuery  int `mapstructure:"results_per_query"`
	SmallRunRounds   int `mapstructure:"small_run_rounds"`
	LargeRunRounds   int `mapstructure:"large_run_rounds"`
	SmallRunMaxValue int `mapstructure:"small_run_max"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ArchiveConfig selects the raw-content blob archive backend.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig selects the run-completion notification backend.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SOURCER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("search.endpoint", "https://serpapi.com/search")
	v.SetDefault("search.timeout_seconds", 10)
	v.SetDefault("dataset.endpoint", "https://api.brightdata.com/datasets/v3")
	v.SetDefault("dataset.poll_interval_seconds", 5)
	v.SetDefault("dataset.max_polls", 20)
	v.SetDefault("dataset.batch_size", 10)
	v.SetDefault("dataset.timeout_seconds", 300)
	v.SetDefault("session.timeout_seconds", 120)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.breaker_threshold", 5)
	v.SetDefault("browser.max_retries", 2)
	v.SetDefault("browser.challenge_max_polls", 30)
	v.SetDefault("browser.challenge_poll_ms", 1500)
	v.SetDefault("browser.search_engine_url", "https://www.google.com")
	v.SetDefault("direct.timeout_seconds", 15)
	v.SetDefault("fetcher.max_concurrent", 2)
	v.SetDefault("fetcher.request_delay_seconds", 5)
	v.SetDefault("fetcher.ttl_days", 30)
	v.SetDefault("agent.target_profiles", 100)
	v.SetDefault("agent.results_per_query", 20)
	v.SetDefault("agent.small_run_rounds", 2)
	v.SetDefault("agent.large_run_rounds", 3)
	v.SetDefault("agent.small_run_max", 10)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "profiles")
	v.SetDefault("notify.provider", "noop")
}

// Validate enforces required values and reasonable limits. A missing required
// credential fails before any work begins; an absent channel credential only
// disables that channel.
func (c Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.Fetcher.MaxConcurrent <= 0 {
		return fmt.Errorf("fetcher.max_concurrent must be > 0")
	}
	if c.Fetcher.TTLDays <= 0 {
		return fmt.Errorf("fetcher.ttl_days must be > 0")
	}
	if c.Agent.TargetProfiles <= 0 {
		return fmt.Errorf("agent.target_profiles must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket is required for the gcs provider")
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.TopicName == "") {
		return fmt.Errorf("notify.project_id and notify.topic_name are required for the pubsub provider")
	}
	return nil
}

// ProxyList merges inline proxies with the optional proxy file, one proxy per
// line, '#' comments skipped. Entries without a scheme get http://.
func (c DirectConfig) ProxyList() ([]string, error) {
	proxies := make([]string, 0, len(c.Proxies))
	for _, p := range c.Proxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, normalizeProxy(p))
		}
	}
	if c.ProxyFile == "" {
		return proxies, nil
	}
	data, err := os.ReadFile(c.ProxyFile)
	if err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, normalizeProxy(line))
	}
	return proxies, nil
}

func normalizeProxy(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "socks5://") {
		return p
	}
	return "http://" + p
}

// RequestDelay converts the configured minimum inter-request interval.
func (c FetcherConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySec) * time.Second
}

// TTL converts the configured profile freshness window.
func (c FetcherConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// MaxRounds returns the round budget for a run targeting n profiles.
func (c AgentConfig) MaxRounds(n int) int {
	if n <= c.SmallRunMaxValue {
		return c.SmallRunRounds
	}
	return c.LargeRunRounds
}
