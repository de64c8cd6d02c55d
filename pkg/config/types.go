package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent streamchat configuration stored as
// config.toml in the .streamchat/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	LLM         LLMConfig         `toml:"llm"`
	Webhook     WebhookConfig     `toml:"webhook"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Auth        AuthConfig        `toml:"auth"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// StorageConfig selects the chat history backend.
type StorageConfig struct {
	// Driver is one of "inmemory", "sqlite" or "postgres".
	Driver string `toml:"driver,omitempty"`

	// SQLitePath defaults to streamchat.sqlite inside the .streamchat/ dir.
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// LLMConfig holds the upstream chat model settings.
type LLMConfig struct {
	// Provider is "dashscope" or "openai". Empty means detect from APIURL.
	Provider          string  `toml:"provider,omitempty"`
	APIURL            string  `toml:"api_url,omitempty"`
	APIKey            string  `toml:"api_key,omitempty"`
	Model             string  `toml:"model,omitempty"`
	AppID             string  `toml:"app_id,omitempty"`
	Temperature       float64 `toml:"temperature,omitempty"`
	MaxTokens         int     `toml:"max_tokens,omitempty"`
	Incremental       bool    `toml:"incremental,omitempty"`
	RequestsPerSecond float64 `toml:"requests_per_second,omitempty"`
	TimeoutSeconds    int     `toml:"timeout_seconds,omitempty"`
}

// WebhookConfig holds the video-parsing workflow settings.
type WebhookConfig struct {
	URL            string `toml:"url,omitempty"`
	APIKey         string `toml:"api_key,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server (e.g. streamchat login, streamchat chat --remote).
type ClientConfig struct {
	// APITarget is a full URL (scheme + host + port).
	APITarget string `toml:"api_target,omitempty"`

	// Token is the bearer token saved by streamchat login.
	Token string `toml:"token,omitempty"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	TokenTTLMinutes int `toml:"token_ttl_minutes,omitempty"`

	// RedisAddr moves tokens into redis when set.
	RedisAddr string `toml:"redis_addr,omitempty"`
}

// EventStreamConfig holds persisted-message publishing settings.
type EventStreamConfig struct {
	// Provider is "none" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated list of kafka brokers.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case StorageInMemory, StorageSQLite, StoragePostgres:
				c.Storage.Driver = v
				return nil
			}
			return fmt.Errorf("invalid value for storage.driver: %q (available: %s, %s, %s)",
				v, StorageInMemory, StorageSQLite, StoragePostgres)
		},
	},
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"llm.provider":    stringKey(func(c *Config) *string { return &c.LLM.Provider }),
	"llm.api_url":     stringKey(func(c *Config) *string { return &c.LLM.APIURL }),
	"llm.api_key":     stringKey(func(c *Config) *string { return &c.LLM.APIKey }),
	"llm.model":       stringKey(func(c *Config) *string { return &c.LLM.Model }),
	"llm.app_id":      stringKey(func(c *Config) *string { return &c.LLM.AppID }),
	"llm.temperature": floatKey("llm.temperature", func(c *Config) *float64 { return &c.LLM.Temperature }),
	"llm.max_tokens":  intKey("llm.max_tokens", func(c *Config) *int { return &c.LLM.MaxTokens }),
	"llm.incremental": {
		get: func(c *Config) string { return strconv.FormatBool(c.LLM.Incremental) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for llm.incremental: %w", err)
			}
			c.LLM.Incremental = b
			return nil
		},
	},
	"llm.requests_per_second": floatKey("llm.requests_per_second", func(c *Config) *float64 { return &c.LLM.RequestsPerSecond }),
	"llm.timeout_seconds":     intKey("llm.timeout_seconds", func(c *Config) *int { return &c.LLM.TimeoutSeconds }),

	"webhook.url":             stringKey(func(c *Config) *string { return &c.Webhook.URL }),
	"webhook.api_key":         stringKey(func(c *Config) *string { return &c.Webhook.APIKey }),
	"webhook.timeout_seconds": intKey("webhook.timeout_seconds", func(c *Config) *int { return &c.Webhook.TimeoutSeconds }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"client.token":      stringKey(func(c *Config) *string { return &c.Client.Token }),

	"auth.token_ttl_minutes": intKey("auth.token_ttl_minutes", func(c *Config) *int { return &c.Auth.TokenTTLMinutes }),
	"auth.redis_addr":        stringKey(func(c *Config) *string { return &c.Auth.RedisAddr }),

	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNone, EventStreamKafka:
				c.EventStream.Provider = v
				return nil
			}
			return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s, %s)",
				v, EventStreamNone, EventStreamKafka)
		},
	},
	"eventstream.brokers": stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":   stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
}

// secretKeys are masked by "streamchat config list".
var secretKeys = map[string]bool{
	"llm.api_key":          true,
	"webhook.api_key":      true,
	"client.token":         true,
	"storage.postgres_dsn": true,
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}
