package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all atlas configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Database DatabaseConfig `toml:"database" mapstructure:"database"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
	Review   ReviewConfig   `toml:"review" mapstructure:"review"`
}

type ServerConfig struct {
	Bind      string  `toml:"bind" mapstructure:"bind"`
	Port      int     `toml:"port" mapstructure:"port"`
	RateLimit float64 `toml:"rate_limit" mapstructure:"rate_limit"` // mutating requests/sec per client, 0 disables
	RateBurst int     `toml:"rate_burst" mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Path string `toml:"path" mapstructure:"path"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `toml:"format" mapstructure:"format"` // text, json
}

type ReviewConfig struct {
	SweepHours int `toml:"sweep_hours" mapstructure:"sweep_hours"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:      "127.0.0.1",
			Port:      37778,
			RateLimit: 10,
			RateBurst: 20,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Review: ReviewConfig{
			SweepHours: 24,
		},
	}
}

// DefaultPath returns ~/.atlas/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".atlas", "config.toml"), nil
}

// Load reads configuration from path, or from DefaultPath when path is
// empty, and applies ATLAS_* environment overrides. A missing default file
// is not an error; a missing explicit file is.
func Load(path string) (Config, error) {
	def := Default()
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("server.bind", def.Server.Bind)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.rate_limit", def.Server.RateLimit)
	v.SetDefault("server.rate_burst", def.Server.RateBurst)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("review.sweep_hours", def.Review.SweepHours)

	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.path", "ATLAS_DB", "ATLAS_DATABASE_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// SweepInterval returns the due-review sweep period.
func (c *Config) SweepInterval() time.Duration {
	if c.Review.SweepHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Review.SweepHours) * time.Hour
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", c.Format)
	}
}
