package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stock-price-alerts/internal/logging"
)

// MinInterval is the smallest supported poll interval.
const MinInterval = time.Minute

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Provider ProviderConfig `mapstructure:"provider"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MonitorConfig governs the polling loop.
type MonitorConfig struct {
	IntervalMinutes int           `mapstructure:"interval_minutes"`
	SymbolDelay     time.Duration `mapstructure:"symbol_delay"`
	ChangeWindow    time.Duration `mapstructure:"change_window"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// Interval converts IntervalMinutes to a duration. The scheduler clamps it.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMinutes) * time.Minute
}

// StorageConfig locates the JSON state files.
type StorageConfig struct {
	AlertsFile        string `mapstructure:"alerts_file"`
	HistoryFile       string `mapstructure:"history_file"`
	MaxHistoryRecords int    `mapstructure:"max_history_records"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the trigger audit.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ProviderConfig covers the Polygon price feed.
type ProviderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// EmailConfig describes the SMTP channel.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// Recipient falls back to the sender when no target is set.
func (e EmailConfig) Recipient() string {
	if e.To != "" {
		return e.To
	}
	if e.From != "" {
		return e.From
	}
	return e.Username
}

// RedisConfig describes the Redis publish channel.
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
	HistoryKey    string `mapstructure:"history_key"`
	HistorySize   int64  `mapstructure:"history_size"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// legacyEnv maps config keys to the environment names used by older deployments.
var legacyEnv = map[string]string{
	"provider.api_key":            "POLYGON_API_KEY",
	"monitor.interval_minutes":    "MONITOR_INTERVAL",
	"storage.max_history_records": "MAX_HISTORY_RECORDS",
	"alerting.email.host":         "EMAIL_HOST",
	"alerting.email.port":         "EMAIL_PORT",
	"alerting.email.username":     "EMAIL_USER",
	"alerting.email.password":     "EMAIL_PASS",
	"alerting.email.to":           "NOTIFICATION_EMAIL",
	"provider.timeout":            "API_TIMEOUT",
	"provider.retry_attempts":     "API_RETRY_ATTEMPTS",
	"monitor.symbol_delay":        "API_RATE_LIMIT_DELAY",
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STOCKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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

	cfg.applyEmailDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		modern := "STOCKWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, modern, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/stockwatch.log")
	v.SetDefault("logging.file.max_size_mb", 10)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 30)

	v.SetDefault("monitor.interval_minutes", 5)
	v.SetDefault("monitor.symbol_delay", "1s")
	v.SetDefault("monitor.change_window", "24h")
	v.SetDefault("monitor.run_on_start", false)
	v.SetDefault("monitor.advisory_lock_key", int64(0))

	v.SetDefault("storage.alerts_file", "data/alerts.json")
	v.SetDefault("storage.history_file", "data/price_history.json")
	v.SetDefault("storage.max_history_records", 1000)

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("provider.base_url", "https://api.polygon.io/v2")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.retry_attempts", 3)
	v.SetDefault("provider.retry_delay", "500ms")
	v.SetDefault("provider.user_agent", "stockwatch/1.0")

	v.SetDefault("alerting.cooldown", "0s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.redis.enabled", false)
	v.SetDefault("alerting.redis.addr", "localhost:6379")
	v.SetDefault("alerting.redis.channel_prefix", "alerts.")
	v.SetDefault("alerting.redis.history_key", "alerts:triggered")
	v.SetDefault("alerting.redis.history_size", int64(500))

	v.SetDefault("export.max_data_points", 1000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			millisecondsHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// millisecondsHookFunc accepts bare integers for durations, as the legacy
// API_TIMEOUT and API_RATE_LIMIT_DELAY variables are given in milliseconds.
func millisecondsHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch raw := data.(type) {
		case string:
			if ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
				return time.Duration(ms) * time.Millisecond, nil
			}
		case int:
			return time.Duration(raw) * time.Millisecond, nil
		case int64:
			return time.Duration(raw) * time.Millisecond, nil
		}
		return data, nil
	}
}

// applyEmailDefaults enables email when legacy variables supply a full SMTP setup.
func (c *Config) applyEmailDefaults() {
	e := &c.Alerting.Email
	if !e.Enabled && e.Host != "" && e.Username != "" && e.Password != "" {
		e.Enabled = true
	}
	if e.From == "" {
		e.From = e.Username
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Storage.AlertsFile == "" || c.Storage.HistoryFile == "" {
		return fmt.Errorf("storage.alerts_file and storage.history_file are required")
	}
	if c.Monitor.SymbolDelay < 0 {
		return fmt.Errorf("monitor.symbol_delay cannot be negative")
	}
	if c.Provider.RetryAttempts < 0 {
		return fmt.Errorf("provider.retry_attempts cannot be negative")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" {
			return fmt.Errorf("alerting.email.host is required")
		}
		if c.Alerting.Email.Recipient() == "" {
			return fmt.Errorf("alerting.email.to is required")
		}
	}
	if c.Alerting.Redis.Enabled && c.Alerting.Redis.Addr == "" {
		return fmt.Errorf("alerting.redis.addr is required")
	}
	return nil
}

// HasNotifier reports whether any delivery channel is configured.
func (c *Config) HasNotifier() bool {
	a := c.Alerting
	return a.Telegram.Enabled || a.Email.Enabled || a.Redis.Enabled
}

// Warnings lists non-fatal configuration issues worth logging at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Provider.APIKey == "" {
		warnings = append(warnings, "no Polygon API key configured, using synthetic prices")
	}
	if !c.HasNotifier() {
		warnings = append(warnings, "no notification channel configured, alerts will only appear in logs")
	}
	if c.Monitor.Interval() < MinInterval {
		warnings = append(warnings, fmt.Sprintf("monitor interval %d below minimum, using 1 minute", c.Monitor.IntervalMinutes))
	}
	return warnings
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
