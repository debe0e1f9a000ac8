package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the connection information for the credential store.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// RedisConfig holds the connection information for the quota counter store.
// An empty Addr selects the in-process counter store instead of Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LimitsConfig holds the default per-window request ceilings applied to
// credentials that were created without explicit limits.
type LimitsConfig struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
}

// UpstreamConfig selects and configures the upstream chat provider.
type UpstreamConfig struct {
	// Provider is "gemini" for the real API or "fixture" for the
	// deterministic canned provider.
	Provider       string `yaml:"provider"`
	APIKey         string `yaml:"api_key"`
	DefaultModel   string `yaml:"default_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Config holds the configuration for the gateway.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Limits   LimitsConfig   `yaml:"limits"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Port     int            `yaml:"port"`
	Debug    bool           `yaml:"debug"`
}

// LoadConfig reads and parses the configuration file. It returns the config
// and a potential warning message. A missing file is not an error; the
// config is then built from defaults and environment variables.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warning string

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables if they exist.
	if dsn := os.Getenv("CHATGATE_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("CHATGATE_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if addr := os.Getenv("CHATGATE_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if key := os.Getenv("CHATGATE_UPSTREAM_API_KEY"); key != "" {
		config.Upstream.APIKey = key
	}
	if port := os.Getenv("CHATGATE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if debug := os.Getenv("CHATGATE_DEBUG"); debug != "" {
		config.Debug = (debug == "true")
	}

	// Defaults.
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Limits.PerMinute == 0 {
		config.Limits.PerMinute = 60
	}
	if config.Limits.PerHour == 0 {
		config.Limits.PerHour = 1000
	}
	if config.Limits.PerDay == 0 {
		config.Limits.PerDay = 10000
	}
	if config.Upstream.Provider == "" {
		config.Upstream.Provider = "gemini"
	}
	if config.Upstream.DefaultModel == "" {
		config.Upstream.DefaultModel = "gemini-2.0-flash"
		warning = "upstream.default_model not set, using gemini-2.0-flash"
	}
	if config.Upstream.TimeoutSeconds == 0 {
		config.Upstream.TimeoutSeconds = 120
	}

	// Final validation after overrides.
	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, "", fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if config.Upstream.Provider == "gemini" && config.Upstream.APIKey == "" {
		return nil, "", fmt.Errorf("upstream.api_key must be configured when the gemini provider is selected")
	}

	return &config, warning, nil
}
