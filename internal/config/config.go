// Package config loads notekeeper configuration with viper.
//
// Precedence, highest first: command-line flags, NOTES_* environment
// variables, the .env file, the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. NOTES_STORAGE_DATA_DIR.
const EnvPrefix = "NOTES"

// Config holds the application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LiveQuery LiveQueryConfig `mapstructure:"livequery"`
	Facade    FacadeConfig    `mapstructure:"facade"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, pretty, or empty for auto
}

// StorageConfig holds Record Store configuration.
type StorageConfig struct {
	DataDir     string        `mapstructure:"data_dir"`
	DBFile      string        `mapstructure:"db_file"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// DBPath returns the full path of the SQLite database.
func (s StorageConfig) DBPath() string {
	if filepath.IsAbs(s.DBFile) {
		return s.DBFile
	}
	return filepath.Join(s.DataDir, s.DBFile)
}

// LiveQueryConfig holds Live Query Layer configuration.
type LiveQueryConfig struct {
	// RefreshRate caps re-executions per query per second; 0 disables the cap.
	RefreshRate  float64 `mapstructure:"refresh_rate"`
	RefreshBurst int     `mapstructure:"refresh_burst"`
	EventBuffer  int     `mapstructure:"event_buffer"`
}

// FacadeConfig holds Application Facade configuration.
type FacadeConfig struct {
	ResultBuffer int `mapstructure:"result_buffer"`
}

// LoadOptions selects where configuration comes from.
type LoadOptions struct {
	// Flags are bound by name: "env", "log-level", "log-format", "data-dir", "db-file".
	Flags *pflag.FlagSet
	// ConfigFile is an explicit config file. When empty, notekeeper.{yaml,toml,json}
	// is searched in the working directory and the user config directory.
	ConfigFile string
	// EnvFile is loaded into the environment without overriding set variables.
	EnvFile string
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"env":        "app.environment",
	"log-level":  "logger.level",
	"log-format": "logger.format",
	"data-dir":   "storage.data_dir",
	"db-file":    "storage.db_file",
}

// Load reads configuration, expands paths and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.EnvFile != "" {
		if err := loadEnvFile(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("notekeeper")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "notekeeper"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.expandDataDir(); err != nil {
		return nil, fmt.Errorf("invalid data dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "")
	v.SetDefault("storage.data_dir", "")
	v.SetDefault("storage.db_file", "notes.db")
	v.SetDefault("storage.busy_timeout", 5*time.Second)
	v.SetDefault("livequery.refresh_rate", 0.0)
	v.SetDefault("livequery.refresh_burst", 1)
	v.SetDefault("livequery.event_buffer", 256)
	v.SetDefault("facade.result_buffer", 64)
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "test", "production":
	default:
		return fmt.Errorf("invalid environment: %q (must be development, test, or production)", c.App.Environment)
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %q (must be json or pretty)", c.Logger.Format)
	}

	if c.Storage.DataDir == "" {
		return errors.New("data dir cannot be empty after expansion")
	}
	if c.Storage.DBFile == "" {
		return errors.New("db file cannot be empty")
	}
	if c.Storage.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive, got %s", c.Storage.BusyTimeout)
	}

	if c.LiveQuery.RefreshRate < 0 {
		return fmt.Errorf("refresh rate must not be negative, got %g", c.LiveQuery.RefreshRate)
	}
	if c.LiveQuery.EventBuffer <= 0 {
		return fmt.Errorf("event buffer must be positive, got %d", c.LiveQuery.EventBuffer)
	}
	if c.Facade.ResultBuffer <= 0 {
		return fmt.Errorf("result buffer must be positive, got %d", c.Facade.ResultBuffer)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned as is.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, rest)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return filepath.Clean(absPath), nil
}

// expandDataDir defaults the data dir to <user data dir>/notekeeper.
func (c *Config) expandDataDir() error {
	var defaultPath string
	if c.Storage.DataDir == "" {
		base, err := userDataDir()
		if err != nil {
			return err
		}
		defaultPath = filepath.Join(base, "notekeeper")
	}

	expanded, err := expandPath(c.Storage.DataDir, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataDir = expanded
	return nil
}

// userDataDir follows XDG_DATA_HOME, falling back to ~/.local/share.
func userDataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share"), nil
}

// loadEnvFile copies NOTES_* keys from a dotenv file into the environment.
// Variables that are already set win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return err
	}

	for _, key := range dotenv.AllKeys() {
		name := strings.ToUpper(key)
		if !strings.HasPrefix(name, EnvPrefix+"_") {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, dotenv.GetString(key)); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", name, err)
		}
	}
	return nil
}
