package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Scraper.Workers)
	assert.InDelta(t, 2.0, cfg.Scraper.RequestDelaySecs, 0.001)
	assert.InDelta(t, 1.5, cfg.Scraper.PaginationDelayMinSecs, 0.001)
	assert.InDelta(t, 3.5, cfg.Scraper.PaginationDelayMaxSecs, 0.001)
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, 1, cfg.Scraper.StartPage)
	assert.Equal(t, 0, cfg.Scraper.MaxPages)
	assert.True(t, cfg.Scraper.FetchDocuments)
	assert.Equal(t, 30*time.Second, cfg.Scraper.NavTimeout())
	assert.Equal(t, 10*time.Second, cfg.Scraper.ModalTimeout())
	assert.Equal(t, "chromedp", cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30000, cfg.Browser.TimeoutMs)
	assert.Equal(t, 3, cfg.Schedule.Hour)
	assert.Equal(t, 0, cfg.Schedule.Minute)
	assert.Equal(t, "Asia/Manila", cfg.Schedule.Timezone)
	assert.Equal(t, []string{"bids", "awards"}, cfg.Schedule.Kinds)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 72, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 36, cfg.Monitoring.StaleAfterHours)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
scraper:
  workers: 4
  filters:
    classification: Goods
    publish_date_from: AUTO
browser:
  driver: http
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Scraper.Workers)
	assert.Equal(t, "Goods", cfg.Scraper.Filters.Classification)
	assert.Equal(t, "AUTO", cfg.Scraper.Filters.PublishDateFrom)
	assert.Equal(t, "http", cfg.Browser.Driver)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
scraper:
  workers: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PHILGEPS_STORE_DRIVER", "postgres")
	t.Setenv("PHILGEPS_SCRAPER_WORKERS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Scraper.Workers)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("scraper: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Scraper.Workers = 2
	cfg.Scraper.PaginationDelayMinSecs = 1.5
	cfg.Scraper.PaginationDelayMaxSecs = 3.5
	cfg.Browser.Driver = "chromedp"
	cfg.Server.Port = 8080
	cfg.Schedule.Hour = 3
	return cfg
}

func TestValidateScrape_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("scrape"))
}

func TestValidateScrape_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/philgeps"
	assert.NoError(t, cfg.Validate("scrape"))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Scraper.Workers = 0
	cfg.Browser.Driver = "selenium"

	err := cfg.Validate("scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scraper.workers must be >= 1")
	assert.Contains(t, err.Error(), `browser.driver "selenium"`)
}

func TestValidate_DelayBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Scraper.PaginationDelayMinSecs = 5

	err := cfg.Validate("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagination_delay_min_secs")
}

func TestValidateServe_InvalidPortAndSchedule(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	cfg.Schedule.Hour = 24

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "schedule time 24:00")

	// Browser and schedule checks do not apply to read-only commands.
	assert.NoError(t, cfg.Validate(""))
}

func TestScheduleLocation(t *testing.T) {
	loc := ScheduleConfig{Timezone: "Asia/Manila"}.Location()
	assert.Equal(t, "Asia/Manila", loc.String())

	assert.Equal(t, time.UTC, ScheduleConfig{Timezone: "Mars/Olympus"}.Location())
}
