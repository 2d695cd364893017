package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
	Loop      LoopConfig       `json:"loop"`
	Auth      AuthConfig       `json:"auth"`
	Database  DatabaseConfig   `json:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Model    string            `json:"model,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// LoopConfig tunes the produce/review iteration.
type LoopConfig struct {
	ProducerModel      string   `json:"producer_model"`
	ReviewerModel      string   `json:"reviewer_model"`
	DefaultProvider    string   `json:"default_provider"`
	Fallbacks          []string `json:"fallbacks,omitempty"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`
}

// AuthConfig controls bearer-token scoping. An empty secret disables
// verification and scopes requests by header instead.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

type DatabaseConfig struct {
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Loop.RateLimitPerMinute == 0 {
		cfg.Loop.RateLimitPerMinute = 60
	}
	return &cfg, nil
}
