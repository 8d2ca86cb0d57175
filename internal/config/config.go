package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Vault    VaultConfig    `json:"vault"`
	Tools    ToolsConfig    `json:"tools"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	BaseURL  string `json:"base_url"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres    PostgresConfig `json:"postgres"`
	Checkpoints PostgresConfig `json:"checkpoints"`
	Redis       RedisConfig    `json:"redis"`
	Qdrant      QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL     string `json:"url"`
	Channel string `json:"channel"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// VaultConfig points at the secret store holding integration credentials.
type VaultConfig struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Mount   string `json:"mount"`
}

// ToolsConfig carries per-tool backends resolved at provisioning time.
type ToolsConfig struct {
	Tavily TavilyConfig `json:"tavily"`
	CDPURL string       `json:"cdp_url"`
	Graph  GraphConfig  `json:"msgraph"`
}

type TavilyConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

// GraphConfig holds Microsoft Graph client-credential settings for the
// directory lookup tools.
type GraphConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
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
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Redis.Channel == "" {
		cfg.Database.Redis.Channel = "task_updates"
	}
	return &cfg, nil
}
