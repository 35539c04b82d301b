package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Scraper    ScraperConfig    `yaml:"scraper" mapstructure:"scraper"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScraperConfig configures listing crawl, workers and pacing.
type ScraperConfig struct {
	Workers                int           `yaml:"workers" mapstructure:"workers"`
	RequestDelaySecs       float64       `yaml:"request_delay_secs" mapstructure:"request_delay_secs"`
	PaginationDelayMinSecs float64       `yaml:"pagination_delay_min_secs" mapstructure:"pagination_delay_min_secs"`
	PaginationDelayMaxSecs float64       `yaml:"pagination_delay_max_secs" mapstructure:"pagination_delay_max_secs"`
	ReadingSecs            float64       `yaml:"reading_secs" mapstructure:"reading_secs"`
	MaxRetries             int           `yaml:"max_retries" mapstructure:"max_retries"`
	StartPage              int           `yaml:"start_page" mapstructure:"start_page"`
	MaxPages               int           `yaml:"max_pages" mapstructure:"max_pages"`
	FetchDocuments         bool          `yaml:"fetch_documents" mapstructure:"fetch_documents"`
	NavTimeoutSecs         int           `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	ModalTimeoutSecs       int           `yaml:"modal_timeout_secs" mapstructure:"modal_timeout_secs"`
	Filters                FiltersConfig `yaml:"filters" mapstructure:"filters"`
}

// FiltersConfig holds the optional listing query filters. Dates are either
// DD-Mon-YYYY literals or one of TODAY, YESTERDAY, AUTO.
type FiltersConfig struct {
	PublishDateFrom  string `yaml:"publish_date_from" mapstructure:"publish_date_from"`
	PublishDateTo    string `yaml:"publish_date_to" mapstructure:"publish_date_to"`
	Classification   string `yaml:"classification" mapstructure:"classification"`
	BusinessCategory string `yaml:"business_category" mapstructure:"business_category"`
}

// BrowserConfig selects and tunes the page driver.
type BrowserConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "chromedp" or "http"
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath    string `yaml:"exec_path" mapstructure:"exec_path"`
	UserDataDir string `yaml:"user_data_dir" mapstructure:"user_data_dir"`
	Persistent  bool   `yaml:"persistent" mapstructure:"persistent"`
	TimeoutMs   int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// ScheduleConfig configures the daily scrape run by the server.
type ScheduleConfig struct {
	Enabled  bool     `yaml:"enabled" mapstructure:"enabled"`
	Hour     int      `yaml:"hour" mapstructure:"hour"`
	Minute   int      `yaml:"minute" mapstructure:"minute"`
	Timezone string   `yaml:"timezone" mapstructure:"timezone"`
	Kinds    []string `yaml:"kinds" mapstructure:"kinds"`
}

// ResilienceConfig tunes navigation retry and the portal circuit breaker.
type ResilienceConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures session health alerts sent by the server.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// NavTimeout returns the per-navigation timeout.
func (c ScraperConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSecs) * time.Second
}

// ModalTimeout returns the timeout for waiting on the document modal.
func (c ScraperConfig) ModalTimeout() time.Duration {
	return time.Duration(c.ModalTimeoutSecs) * time.Second
}

// Location loads the schedule timezone, falling back to UTC.
func (c ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		zap.L().Warn("config: unknown timezone, using UTC", zap.String("timezone", c.Timezone))
		return time.UTC
	}
	return loc
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PHILGEPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scraper.workers", 2)
	v.SetDefault("scraper.request_delay_secs", 2.0)
	v.SetDefault("scraper.pagination_delay_min_secs", 1.5)
	v.SetDefault("scraper.pagination_delay_max_secs", 3.5)
	v.SetDefault("scraper.reading_secs", 2.0)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.start_page", 1)
	v.SetDefault("scraper.max_pages", 0)
	v.SetDefault("scraper.fetch_documents", true)
	v.SetDefault("scraper.nav_timeout_secs", 30)
	v.SetDefault("scraper.modal_timeout_secs", 10)
	v.SetDefault("scraper.filters.publish_date_from", "")
	v.SetDefault("scraper.filters.publish_date_to", "")
	v.SetDefault("scraper.filters.classification", "")
	v.SetDefault("scraper.filters.business_category", "")
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.persistent", false)
	v.SetDefault("browser.user_data_dir", "./browser_data")
	v.SetDefault("browser.timeout_ms", 30000)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.hour", 3)
	v.SetDefault("schedule.minute", 0)
	v.SetDefault("schedule.timezone", "Asia/Manila")
	v.SetDefault("schedule.kinds", []string{"bids", "awards"})
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 60)
	v.SetDefault("resilience.initial_backoff_ms", 2000)
	v.SetDefault("resilience.max_backoff_ms", 30000)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 900)
	v.SetDefault("monitoring.lookback_window_hours", 72)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stale_after_hours", 36)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given command mode are
// present. Mode is one of "scrape", "serve", or "" for the common checks only.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Scraper.Workers < 1 {
		errs = append(errs, fmt.Sprintf("scraper.workers must be >= 1, got %d", c.Scraper.Workers))
	}
	if c.Scraper.PaginationDelayMinSecs > c.Scraper.PaginationDelayMaxSecs {
		errs = append(errs, "scraper.pagination_delay_min_secs exceeds scraper.pagination_delay_max_secs")
	}

	switch mode {
	case "scrape", "serve":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
		switch c.Browser.Driver {
		case "chromedp", "http":
		default:
			errs = append(errs, fmt.Sprintf("browser.driver %q is not supported", c.Browser.Driver))
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
		if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 || c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
			errs = append(errs, fmt.Sprintf("schedule time %02d:%02d is invalid", c.Schedule.Hour, c.Schedule.Minute))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
