// Package config loads server configuration from a YAML file, ECOBACK_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Seed     SeedConfig     `mapstructure:"seed"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Env          string        `mapstructure:"env"` // development | production
}

// DatabaseConfig selects the store. Driver "memory" ignores Path.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | memory
	Path   string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Output     string `mapstructure:"output"` // stdout, stderr, file
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type SeedConfig struct {
	File string `mapstructure:"file"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

const devJWTSecret = "ecoback-dev-secret-change-me"

func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }

func (c Config) IsProduction() bool { return c.Server.Env == "production" }

// Load reads configuration. An empty path searches ./config.yaml and
// ./config/config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ECOBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.env", "development")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "ecoback.db")
	v.SetDefault("auth.jwt_secret", devJWTSecret)
	v.SetDefault("auth.token_ttl", 720*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/ecoback.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("seed.file", "")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("database.driver %q: want sqlite or memory", c.Database.Driver)
	}
	if c.IsProduction() && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == devJWTSecret) {
		return errors.New("auth.jwt_secret must be set in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	return nil
}
