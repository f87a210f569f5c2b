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

	"sprout-pricing/internal/logging"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	USDA      USDAConfig      `mapstructure:"usda"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the price history backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// Configured reports whether enough settings exist to open a store.
func (d DatabaseConfig) Configured() bool {
	if strings.EqualFold(d.Driver, DriverSQLite) {
		return d.SQLitePath != ""
	}
	return d.DSN != ""
}

// SchedulerConfig governs the ingestion cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// USDAConfig covers the USDA Market News client.
type USDAConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed"`
	UserAgent       string        `mapstructure:"user_agent"`
	MockFallback    bool          `mapstructure:"mock_fallback"`
	MockDays        int           `mapstructure:"mock_days"`
}

// IngestionConfig lists what the scheduled ingestion tracks.
type IngestionConfig struct {
	Crops   []string `mapstructure:"crops"`
	County  string   `mapstructure:"county"`
	ZipCode string   `mapstructure:"zip_code"`
	Unit    string   `mapstructure:"unit"`
}

// HTTPConfig tunes the API server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AlertingConfig defines insight delivery.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("SPROUT")
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

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
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
	v.SetDefault("app.name", "sprout-pricing")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.sqlite_path", "sprout.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73707274))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("usda.base_url", "https://marsapi.ams.usda.gov/services/v1.2")
	v.SetDefault("usda.api_key", "")
	v.SetDefault("usda.request_timeout", "15s")
	v.SetDefault("usda.requests_per_sec", 2.0)
	v.SetDefault("usda.max_retry_elapsed", "30s")
	v.SetDefault("usda.user_agent", "sprout-pricing/1.0")
	v.SetDefault("usda.mock_fallback", true)
	v.SetDefault("usda.mock_days", 30)

	v.SetDefault("ingestion.crops", []string{"Tomatoes", "Zucchini", "Bell Peppers", "Cucumbers"})
	v.SetDefault("ingestion.county", "Multnomah")
	v.SetDefault("ingestion.zip_code", "")
	v.SetDefault("ingestion.unit", "lb")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
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
	switch strings.ToLower(c.Database.Driver) {
	case "", DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q", DriverPostgres, DriverSQLite)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.USDA.RequestsPerSec <= 0 {
		return fmt.Errorf("usda.requests_per_sec must be greater than zero")
	}
	if c.USDA.MockDays <= 0 {
		return fmt.Errorf("usda.mock_days must be greater than zero")
	}
	if strings.TrimSpace(c.Ingestion.County) == "" {
		return fmt.Errorf("ingestion.county must be configured")
	}
	if strings.TrimSpace(c.Ingestion.Unit) == "" {
		return fmt.Errorf("ingestion.unit must be configured")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must be configured")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ResolveCrops returns the CLI override when non-empty, else the configured crops.
func (c *Config) ResolveCrops(override []string) []string {
	crops := make([]string, 0, len(override))
	for _, crop := range override {
		if trimmed := strings.TrimSpace(crop); trimmed != "" {
			crops = append(crops, trimmed)
		}
	}
	if len(crops) > 0 {
		return crops
	}
	return c.Ingestion.Crops
}
