// Package config loads the base yaml configuration and the fulfillment
// tuning from environment variables with defaults and validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the base configuration read from yaml.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Paystack struct {
		Secret string `yaml:"secret"`
	} `yaml:"paystack"`
	Firebase struct {
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"firebase"`
	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`
}

// Load reads the yaml config from path, with CONFIG_PATH taking
// precedence. Secrets may be overridden from the environment.
func Load(path string) (Config, error) {
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		path = env
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("PAYSTACK_SECRET"); v != "" {
		cfg.Paystack.Secret = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":4000"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.Database.DSN == "" {
		return Config{}, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Paystack.Secret == "" {
		return Config{}, fmt.Errorf("paystack secret is required")
	}
	return cfg, nil
}
