package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	CORS     CORSConfig     `yaml:"cors"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	Params          string `yaml:"params"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// GetDSN builds a go-sql-driver DSN. DATABASE_DSN overrides the
// yaml fields entirely, which is what deploy environments use.
func (d DatabaseConfig) GetDSN() string {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		return dsn
	}
	params := d.Params
	if params == "" {
		params = "charset=utf8mb4&parseTime=True&loc=UTC"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		d.User, d.Password, d.Host, d.Port, d.Name, params)
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type JWTConfig struct {
	Secret    string `yaml:"secret"`
	ExpiresIn int    `yaml:"expires_in"` // seconds
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

// Load reads the yaml config at path. ${VAR} references in the file
// are expanded from the environment before parsing, so secrets can
// stay out of the file itself.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Env == "" {
		c.Server.Env = os.Getenv("APP_ENV")
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.JWT.ExpiresIn == 0 {
		c.JWT.ExpiresIn = 3600
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
}

// IsDevelopment reports whether the server runs in a dev-like environment
func (c *Config) IsDevelopment() bool {
	switch c.Server.Env {
	case "development", "dev", "local":
		return true
	}
	return false
}

// LogResolved logs the effective configuration with secrets masked
func LogResolved(cfg *Config) {
	log.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Str("db_host", cfg.Database.Host).
		Str("db_name", cfg.Database.Name).
		Bool("redis_enabled", cfg.Redis.Enabled).
		Bool("jwt_secret_set", cfg.JWT.Secret != "").
		Msg("configuration loaded")
}
