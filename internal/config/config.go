package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from YAML with environment
// overrides layered on top.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Store struct {
		// Backend selects where snapshots live: "memory" or "nats".
		Backend string        `yaml:"backend"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"store"`

	Auth struct {
		Key    string `yaml:"key"`
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Store.Backend = "memory"
	cfg.Auth.Key = "flipmatch"
	return cfg
}

// Load reads the YAML file at path (when it exists) and applies env
// overrides. A missing file is not an error; env-only configuration is
// fine.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	if ttl := getEnvAsInt("STORE_TTL_SECONDS", 0); ttl > 0 {
		cfg.Store.TTL = time.Duration(ttl) * time.Second
	}
	cfg.Auth.Key = getEnv("AUTH_KEY", cfg.Auth.Key)
	cfg.Auth.Secret = getEnv("AUTH_SECRET", cfg.Auth.Secret)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
