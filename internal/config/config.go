// Package config loads and validates engine configuration from a YAML
// file with environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Strategy names accepted in a source block.
const (
	StrategyArchiveHTML  = "archive_html"
	StrategyPaginatedAPI = "paginated_api"
	StrategyCategoryHTML = "category_html"
)

// Fetch transports accepted in a source block.
const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

// Checkpoint backends accepted in the engine block.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Configuration validation errors.
var (
	ErrNoSources           = errors.New("at least one source is required")
	ErrNoEnabledSources    = errors.New("at least one source must be enabled")
	ErrSourceMissingID     = errors.New("source id is required")
	ErrDuplicateSourceID   = errors.New("source ids must be unique")
	ErrSourceMissingMedia  = errors.New("media_name is required")
	ErrSourceMissingURL    = errors.New("archive_url is required")
	ErrUnknownStrategy     = errors.New("strategy must be one of: archive_html, paginated_api, category_html")
	ErrUnknownFetchMode    = errors.New("fetch_mode must be 'http' or 'browser'")
	ErrInvalidDateBounds   = errors.New("start_date must not be after end_date")
	ErrMissingStartDate    = errors.New("start_date is required for daily strategies")
	ErrInvalidStartPage    = errors.New("start_page must be at least 1")
	ErrInvalidDelayWindow  = errors.New("min_delay must not exceed max_delay")
	ErrInvalidMaxRetries   = errors.New("max_retries must be non-negative")
	ErrInvalidPoolSize     = errors.New("pool_size must be at least 1")
	ErrMissingArticleURL   = errors.New("article_url template is required for paginated_api sources")
	ErrMissingPostgresURL  = errors.New("engine.postgres_url is required")
	ErrMissingStateDir     = errors.New("engine.state_dir is required")
	ErrUnknownBackend      = errors.New("engine.checkpoint_backend must be 'file' or 'redis'")
	ErrMissingRedisAddr    = errors.New("engine.redis_addr is required for the redis checkpoint backend")
	ErrInvalidParallelism  = errors.New("engine.source_parallelism must be at least 1")
	ErrInvalidBackoffBase  = errors.New("engine.backoff_base must be positive")
	ErrInvalidBackoffCap   = errors.New("engine.backoff_cap must be at least engine.backoff_base")
	ErrInvalidBodyLimit    = errors.New("engine.max_body_bytes must be positive")
	ErrInvalidProxyURL     = errors.New("engine.proxy_urls entries must be http(s) or socks5 URLs with a host")
	ErrInvalidEmptyLimit   = errors.New("api.empty_page_limit must be at least 1")
	ErrInvalidDateFormat   = errors.New("dates must use YYYY-MM-DD")
	ErrInvalidLinkPattern  = errors.New("link pattern is not a valid regular expression")
	ErrSelectorBodyMissing = errors.New("selectors.body is required for html sources")
)

// Config is the root configuration for the engine.
type Config struct {
	Engine  EngineConfig   `mapstructure:"engine"`
	Sources []SourceConfig `mapstructure:"sources"`
}

// EngineConfig holds the knobs shared by every source.
type EngineConfig struct {
	StateDir          string        `mapstructure:"state_dir"`
	PostgresURL       string        `mapstructure:"postgres_url"`
	RedisAddr         string        `mapstructure:"redis_addr"`
	CheckpointBackend string        `mapstructure:"checkpoint_backend"`
	ListenAddr        string        `mapstructure:"listen_addr"`
	SourceParallelism int           `mapstructure:"source_parallelism"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	UserAgents        []string      `mapstructure:"user_agents"`
	ProxyURLs         []string      `mapstructure:"proxy_urls"`
	CacheEnabled      bool          `mapstructure:"cache_enabled"`
	LogLevel          string        `mapstructure:"log_level"`
	Development       bool          `mapstructure:"development"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace_period"`
}

// SourceConfig describes one archive source.
type SourceConfig struct {
	ID           string            `mapstructure:"id"`
	MediaName    string            `mapstructure:"media_name"`
	Language     string            `mapstructure:"language"`
	Strategy     string            `mapstructure:"strategy"`
	Enabled      bool              `mapstructure:"enabled"`
	ArchiveURL   string            `mapstructure:"archive_url"`
	ArticleURL   string            `mapstructure:"article_url"`
	StartDate    string            `mapstructure:"start_date"`
	EndDate      string            `mapstructure:"end_date"`
	StartPage    int               `mapstructure:"start_page"`
	MaxPages     int               `mapstructure:"max_pages"`
	MinDelay     time.Duration     `mapstructure:"min_delay"`
	MaxDelay     time.Duration     `mapstructure:"max_delay"`
	MaxRetries   int               `mapstructure:"max_retries"`
	PoolSize     int               `mapstructure:"pool_size"`
	FetchMode    string            `mapstructure:"fetch_mode"`
	Headers      map[string]string `mapstructure:"headers"`
	LinkAllow    []string          `mapstructure:"link_allow"`
	LinkDeny     []string          `mapstructure:"link_deny"`
	Selectors    SelectorConfig    `mapstructure:"selectors"`
	RemovePhrase []string          `mapstructure:"remove_phrases"`
	API          APIConfig         `mapstructure:"api"`
}

// SelectorConfig carries the CSS selectors used for article extraction.
type SelectorConfig struct {
	Title       string   `mapstructure:"title"`
	Body        string   `mapstructure:"body"`
	Author      string   `mapstructure:"author"`
	PublishDate string   `mapstructure:"publish_date"`
	Tags        string   `mapstructure:"tags"`
	Exclude     []string `mapstructure:"exclude"`
}

// APIConfig carries extras used only by paginated_api sources.
type APIConfig struct {
	AuthToken      string `mapstructure:"auth_token"`
	PageSize       int    `mapstructure:"page_size"`
	EmptyPageLimit int    `mapstructure:"empty_page_limit"`
}

// Daily reports whether the source walks calendar days rather than pages.
func (s *SourceConfig) Daily() bool {
	return s.Strategy == StrategyArchiveHTML
}

// Load reads configuration from the given YAML file, applying defaults and
// NEWSINGEST_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NEWSINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySourceDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.state_dir", "./state")
	v.SetDefault("engine.checkpoint_backend", "file")
	v.SetDefault("engine.listen_addr", ":8080")
	v.SetDefault("engine.source_parallelism", 2)
	v.SetDefault("engine.request_timeout", "30s")
	v.SetDefault("engine.backoff_base", "2s")
	v.SetDefault("engine.backoff_cap", "60s")
	v.SetDefault("engine.max_body_bytes", 10<<20)
	v.SetDefault("engine.cache_enabled", true)
	v.SetDefault("engine.log_level", "info")
	v.SetDefault("engine.development", false)
	v.SetDefault("engine.shutdown_grace_period", "15s")
}

// applySourceDefaults fills per-source zero values with the engine-wide
// defaults so each source block stays short.
func applySourceDefaults(cfg *Config) {
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.Language == "" {
			src.Language = "en"
		}
		if src.FetchMode == "" {
			src.FetchMode = FetchModeHTTP
		}
		if src.StartPage == 0 {
			src.StartPage = 1
		}
		if src.MinDelay == 0 {
			src.MinDelay = time.Second
		}
		if src.MaxDelay == 0 {
			src.MaxDelay = 3 * time.Second
		}
		if src.MaxRetries == 0 {
			src.MaxRetries = 3
		}
		if src.PoolSize == 0 {
			src.PoolSize = 5
		}
		if src.API.PageSize == 0 {
			src.API.PageSize = 20
		}
		if src.API.EmptyPageLimit == 0 {
			src.API.EmptyPageLimit = 3
		}
	}
}

// Validate checks the configuration before any network or store access.
func (c *Config) Validate() error {
	if err := c.Engine.validate(); err != nil {
		return err
	}

	if len(c.Sources) == 0 {
		return ErrNoSources
	}

	seen := make(map[string]bool, len(c.Sources))
	enabled := 0
	for i := range c.Sources {
		src := &c.Sources[i]
		if err := src.validate(); err != nil {
			return fmt.Errorf("source[%d] %q: %w", i, src.ID, err)
		}
		if seen[src.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateSourceID, src.ID)
		}
		seen[src.ID] = true
		if src.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoEnabledSources
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.StateDir == "" {
		return ErrMissingStateDir
	}
	if e.PostgresURL == "" {
		return ErrMissingPostgresURL
	}
	switch e.CheckpointBackend {
	case BackendFile:
	case BackendRedis:
		if e.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return ErrUnknownBackend
	}
	if e.SourceParallelism < 1 {
		return ErrInvalidParallelism
	}
	if e.BackoffBase <= 0 {
		return ErrInvalidBackoffBase
	}
	if e.BackoffCap < e.BackoffBase {
		return ErrInvalidBackoffCap
	}
	if e.MaxBodyBytes <= 0 {
		return ErrInvalidBodyLimit
	}
	for _, p := range e.ProxyURLs {
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidProxyURL, p)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return fmt.Errorf("%w: %q", ErrInvalidProxyURL, p)
		}
	}
	return nil
}

func (s *SourceConfig) validate() error {
	if s.ID == "" {
		return ErrSourceMissingID
	}
	if s.MediaName == "" {
		return ErrSourceMissingMedia
	}
	if s.ArchiveURL == "" {
		return ErrSourceMissingURL
	}
	if s.FetchMode != FetchModeHTTP && s.FetchMode != FetchModeBrowser {
		return ErrUnknownFetchMode
	}
	if s.MinDelay > s.MaxDelay {
		return ErrInvalidDelayWindow
	}
	if s.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if s.PoolSize < 1 {
		return ErrInvalidPoolSize
	}

	switch s.Strategy {
	case StrategyArchiveHTML:
		if err := s.validateDateBounds(); err != nil {
			return err
		}
		if s.Selectors.Body == "" {
			return ErrSelectorBodyMissing
		}
	case StrategyPaginatedAPI:
		if s.StartPage < 1 {
			return ErrInvalidStartPage
		}
		if s.ArticleURL == "" {
			return ErrMissingArticleURL
		}
		if s.API.EmptyPageLimit < 1 {
			return ErrInvalidEmptyLimit
		}
	case StrategyCategoryHTML:
		if s.StartPage < 1 {
			return ErrInvalidStartPage
		}
		if s.Selectors.Body == "" {
			return ErrSelectorBodyMissing
		}
	default:
		return ErrUnknownStrategy
	}

	for _, p := range append(append([]string{}, s.LinkAllow...), s.LinkDeny...) {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidLinkPattern, p)
		}
	}
	return nil
}

func (s *SourceConfig) validateDateBounds() error {
	if s.StartDate == "" {
		return ErrMissingStartDate
	}
	start, err := time.Parse("2006-01-02", s.StartDate)
	if err != nil {
		return fmt.Errorf("%w: start_date %q", ErrInvalidDateFormat, s.StartDate)
	}
	if s.EndDate == "" {
		return nil
	}
	end, err := time.Parse("2006-01-02", s.EndDate)
	if err != nil {
		return fmt.Errorf("%w: end_date %q", ErrInvalidDateFormat, s.EndDate)
	}
	if start.After(end) {
		return ErrInvalidDateBounds
	}
	return nil
}

// EnabledSources returns the sources that will actually run.
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, src := range c.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}

// SourceByID looks a source up by its id, enabled or not.
func (c *Config) SourceByID(id string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return SourceConfig{}, false
}
