package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RulesConfig locates the rule files the server loads at startup.
type RulesConfig struct {
	Dir string `yaml:"dir"`
}

// BrowserConfig controls the bundled rod WebView provider used for
// challenges and webview logins.
type BrowserConfig struct {
	Enabled  bool `yaml:"enabled"`
	Headless bool `yaml:"headless"`
}

type RobotsConfig struct {
	Respect bool `yaml:"respect"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// CredentialCacheConfig selects where challenge credentials live:
// in-process memory (default) or Redis, shared across replicas.
type CredentialCacheConfig struct {
	Backend string `yaml:"backend"` // "memory" or "redis"
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Rules           RulesConfig           `yaml:"rules"`
	Browser         BrowserConfig         `yaml:"browser"`
	Robots          RobotsConfig          `yaml:"robots"`
	Redis           RedisConfig           `yaml:"redis"`
	CredentialCache CredentialCacheConfig `yaml:"credentialCache"`
	Logging         LoggingConfig         `yaml:"logging"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}

// Validate performs basic sanity checks on the loaded configuration so
// that obvious misconfiguration fails at startup rather than during
// the first request.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Rules.Dir) == "" {
		return errors.New("rules.dir must point at a directory of rule files")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.CredentialCache.Backend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Redis.URL) == "" {
			return errors.New("credentialCache.backend is redis but redis.url is not set")
		}
	default:
		return fmt.Errorf("unsupported credentialCache.backend: %s", cfg.CredentialCache.Backend)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging.level: %s", cfg.Logging.Level)
	}
	return nil
}
