// Package config loads Orion-Go's configuration from a YAML file plus
// environment variable overrides, grounded on the teacher's
// internal/config/config.go (viper.Unmarshal into a mapstructure-tagged
// Config, setDefaults, Validate) but with Storage/Worker/Log/Metrics
// sections instead of the teacher's Storage/Redis/LLM ones.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/epistimio/orion-go/internal/storage"
)

// Config is Orion-Go's top-level configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StorageConfig selects and configures a storage.Backend.
type StorageConfig struct {
	// Profile is one of "memory", "lite" (sqlite), "standard" (postgres).
	Profile     string `mapstructure:"profile" validate:"required,oneof=memory lite standard"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`
}

// WorkerConfig controls the worker loop's pacing and heartbeat behavior.
type WorkerConfig struct {
	HeartbeatTTL    time.Duration `mapstructure:"heartbeat_ttl"`
	ReservationRate int           `mapstructure:"reservation_rate"`
	WorkerTrials    int           `mapstructure:"worker_trials"`
	TmpDir          string        `mapstructure:"tmp_dir"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the /metrics and /healthz server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

var validate = validator.New()

// Load reads configuration from an optional YAML file plus ORION_*-prefixed
// environment variable overrides (ORION_STORAGE_PROFILE,
// ORION_STORAGE_POSTGRES_DSN, and so on). ORION_DB_* variables are not read.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ORION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.profile", "memory")
	v.SetDefault("storage.sqlite_path", "orion.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.redis_addr", "")

	v.SetDefault("worker.heartbeat_ttl", "5m")
	v.SetDefault("worker.reservation_rate", 20)
	v.SetDefault("worker.worker_trials", 0)
	v.SetDefault("worker.tmp_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks struct-tag constraints plus the profile-specific
// requirements a validator tag can't express (e.g. "postgres_dsn required
// when profile=standard").
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch StorageProfile(c.Storage.Profile) {
	case ProfileLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the lite profile")
		}
	case ProfileStandard:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the standard profile")
		}
	}
	return nil
}

// StorageProfile mirrors storage.Profile as a config-layer string, so
// config can be validated without importing storage's CAS machinery
// directly into its Unmarshal path.
type StorageProfile string

const (
	ProfileMemory   StorageProfile = "memory"
	ProfileLite     StorageProfile = "lite"
	ProfileStandard StorageProfile = "standard"
)

// StorageOptions adapts Config's storage section into storage.Options for
// storage.New.
func (c *Config) StorageOptions() storage.Options {
	var profile storage.Profile
	switch StorageProfile(c.Storage.Profile) {
	case ProfileLite:
		profile = storage.ProfileLite
	case ProfileStandard:
		profile = storage.ProfileStandard
	default:
		profile = storage.ProfileMemory
	}
	return storage.Options{
		Profile:     profile,
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		RedisAddr:   c.Storage.RedisAddr,
	}
}
