// Package config loads mentor-sync settings from config.yaml, .env and
// MENTOR_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the top-level configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Jotform    JotformConfig    `yaml:"jotform" mapstructure:"jotform"`
	Givebutter GivebutterConfig `yaml:"givebutter" mapstructure:"givebutter"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the backing database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig controls paging over the raw tables.
type SourceConfig struct {
	PageSize          int `yaml:"page_size" mapstructure:"page_size"`
	MaxPages          int `yaml:"max_pages" mapstructure:"max_pages"`
	RetryAttempts     int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs    int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// ReconcileConfig tunes matching and status computation.
type ReconcileConfig struct {
	// FundraisingThreshold is the amount at or above which a member counts
	// as fully funded.
	FundraisingThreshold float64 `yaml:"fundraising_threshold" mapstructure:"fundraising_threshold"`
	WithdrawnTag         string  `yaml:"withdrawn_tag" mapstructure:"withdrawn_tag"`
	// Workers is the matcher fan-out; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// StagingTags are attached to every staged contact.
	StagingTags []string `yaml:"staging_tags" mapstructure:"staging_tags"`
}

// JotformConfig holds form API credentials and form ids.
type JotformConfig struct {
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	SignupFormID string  `yaml:"signup_form_id" mapstructure:"signup_form_id"`
	SetupFormID  string  `yaml:"setup_form_id" mapstructure:"setup_form_id"`
	FieldMapPath string  `yaml:"field_map_path" mapstructure:"field_map_path"`
	PageSize     int     `yaml:"page_size" mapstructure:"page_size"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GivebutterConfig holds fundraising platform credentials.
type GivebutterConfig struct {
	APIKey     string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	CampaignID string  `yaml:"campaign_id" mapstructure:"campaign_id"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxPages   int     `yaml:"max_pages" mapstructure:"max_pages"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	// CriticalConflictThreshold alerts when a run logs more critical
	// conflicts than this.
	CriticalConflictThreshold int `yaml:"critical_conflict_threshold" mapstructure:"critical_conflict_threshold"`
	// StaleAfterHours alerts when no run completed within the window. 0 disables.
	StaleAfterHours int `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
// Environment variables win over the file, which wins over defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MENTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "mentor-sync.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("source.page_size", 1000)
	v.SetDefault("source.max_pages", 500)
	v.SetDefault("source.retry_attempts", 3)
	v.SetDefault("source.retry_backoff_ms", 500)
	v.SetDefault("source.retry_max_backoff_ms", 10_000)
	v.SetDefault("reconcile.fundraising_threshold", 75.0)
	v.SetDefault("reconcile.withdrawn_tag", "Dropped")
	v.SetDefault("reconcile.workers", 0)
	v.SetDefault("reconcile.staging_tags", []string{"Mentors 2025"})
	v.SetDefault("jotform.api_key", "")
	v.SetDefault("jotform.base_url", "https://api.jotform.com")
	v.SetDefault("jotform.signup_form_id", "250685983663169")
	v.SetDefault("jotform.setup_form_id", "250754977634066")
	v.SetDefault("jotform.field_map_path", "")
	v.SetDefault("jotform.page_size", 1000)
	v.SetDefault("jotform.rate_limit", 5.0)
	v.SetDefault("givebutter.api_key", "")
	v.SetDefault("givebutter.base_url", "https://api.givebutter.com/v1")
	v.SetDefault("givebutter.campaign_id", "")
	v.SetDefault("givebutter.rate_limit", 2.0)
	v.SetDefault("givebutter.max_pages", 1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.critical_conflict_threshold", 0)
	v.SetDefault("monitoring.stale_after_hours", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return eris.New("config: store.sqlite_path is required for the sqlite driver")
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Source.PageSize <= 0 {
		return eris.Errorf("config: source.page_size must be positive, got %d", c.Source.PageSize)
	}
	if c.Source.MaxPages <= 0 {
		return eris.Errorf("config: source.max_pages must be positive, got %d", c.Source.MaxPages)
	}
	if c.Reconcile.FundraisingThreshold <= 0 {
		return eris.Errorf("config: reconcile.fundraising_threshold must be positive, got %v", c.Reconcile.FundraisingThreshold)
	}
	if c.Reconcile.Workers < 0 {
		return eris.Errorf("config: reconcile.workers must not be negative, got %d", c.Reconcile.Workers)
	}
	return nil
}

// ValidateIngest checks the API credentials the ingest command needs.
func (c *Config) ValidateIngest() error {
	var missing []string
	if c.Jotform.APIKey == "" {
		missing = append(missing, "jotform.api_key")
	}
	if c.Givebutter.APIKey == "" {
		missing = append(missing, "givebutter.api_key")
	}
	if c.Givebutter.CampaignID == "" {
		missing = append(missing, "givebutter.campaign_id")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger replaces the global zap logger according to cfg.
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
