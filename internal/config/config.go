package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"track-rainfall/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Series   SeriesConfig   `mapstructure:"series"`
	Database DatabaseConfig `mapstructure:"database"`
	Alerting AlertingConfig `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// UpstreamConfig locates the flood-monitoring API and the park station.
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StationID      string        `mapstructure:"station_id"`
	Parameter      string        `mapstructure:"parameter"`
	Latitude       float64       `mapstructure:"latitude"`
	Longitude      float64       `mapstructure:"longitude"`
	SearchRadiusKM float64       `mapstructure:"search_radius_km"`
	PageLimit      int           `mapstructure:"page_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SeriesConfig controls where the daily series lives and default windows.
type SeriesConfig struct {
	OutputFile        string `mapstructure:"output_file"`
	DefaultMode       string `mapstructure:"default_mode"`
	LatestDays        int    `mapstructure:"latest_days"`
	LookbackDays      int    `mapstructure:"lookback_days"`
	BackfillChunkDays int    `mapstructure:"backfill_chunk_days"`
	ChartMaxDays      int    `mapstructure:"chart_max_days"`
}

// DatabaseConfig encapsulates the optional PostgreSQL mirror.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ApplicationName string        `mapstructure:"application_name"`
}

// AlertingConfig routes update summaries.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	NotifyOnFailure bool           `mapstructure:"notify_on_failure"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram bot delivery.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("RAINFALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "track-rainfall")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("upstream.base_url", "https://environment.data.gov.uk/flood-monitoring")
	v.SetDefault("upstream.station_id", "239374TP")
	v.SetDefault("upstream.parameter", "rainfall")
	v.SetDefault("upstream.latitude", 51.5362)
	v.SetDefault("upstream.longitude", -0.0393)
	v.SetDefault("upstream.search_radius_km", 5.0)
	v.SetDefault("upstream.page_limit", 10000)
	v.SetDefault("upstream.request_timeout", "30s")
	v.SetDefault("upstream.user_agent", "track-rainfall/1.0")

	v.SetDefault("series.output_file", "data/rainfall/rainfall_239374TP_daily.csv")
	v.SetDefault("series.default_mode", "latest")
	v.SetDefault("series.latest_days", 7)
	v.SetDefault("series.lookback_days", 90)
	v.SetDefault("series.backfill_chunk_days", 60)
	v.SetDefault("series.chart_max_days", 365)

	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.application_name", "track-rainfall")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.notify_on_failure", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Upstream.StationID == "" {
		return fmt.Errorf("upstream.station_id is required")
	}
	if c.Upstream.PageLimit <= 0 {
		return fmt.Errorf("upstream.page_limit must be greater than zero")
	}
	if c.Series.OutputFile == "" {
		return fmt.Errorf("series.output_file is required")
	}
	switch strings.ToLower(c.Series.DefaultMode) {
	case "latest", "historical":
	default:
		return fmt.Errorf("series.default_mode must be latest or historical, got %q", c.Series.DefaultMode)
	}
	if c.Series.LatestDays <= 0 {
		return fmt.Errorf("series.latest_days must be greater than zero")
	}
	if c.Series.LookbackDays <= 0 {
		return fmt.Errorf("series.lookback_days must be greater than zero")
	}
	if c.Series.BackfillChunkDays <= 0 {
		return fmt.Errorf("series.backfill_chunk_days must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveDays returns either the CLI override or the configured latest window.
func (c *Config) ResolveDays(override int) int {
	if override > 0 {
		return override
	}
	return c.Series.LatestDays
}

// ResolveOutput returns either the CLI override or the configured series file.
func (c *Config) ResolveOutput(override string) string {
	if override != "" {
		return override
	}
	return c.Series.OutputFile
}

// ResolveStation returns either the CLI override or the configured station.
func (c *Config) ResolveStation(override string) string {
	if override != "" {
		return override
	}
	return c.Upstream.StationID
}
