package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/streamchat/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the STREAMCHAT_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (STREAMCHAT_API_LISTEN, STREAMCHAT_LLM_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: STREAMCHAT_LLM_API_KEY, STREAMCHAT_STORAGE_DRIVER, etc.
	v.SetEnvPrefix("STREAMCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.api_url", d.LLM.APIURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.app_id", d.LLM.AppID)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.incremental", d.LLM.Incremental)
	v.SetDefault("llm.requests_per_second", d.LLM.RequestsPerSecond)
	v.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)

	v.SetDefault("webhook.url", d.Webhook.URL)
	v.SetDefault("webhook.api_key", d.Webhook.APIKey)
	v.SetDefault("webhook.timeout_seconds", d.Webhook.TimeoutSeconds)

	v.SetDefault("api.listen", d.API.Listen)

	v.SetDefault("client.api_target", d.Client.APITarget)
	v.SetDefault("client.token", d.Client.Token)

	v.SetDefault("auth.token_ttl_minutes", d.Auth.TokenTTLMinutes)
	v.SetDefault("auth.redis_addr", d.Auth.RedisAddr)

	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
}

// FromViper decodes the merged viper state into a Config.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		LLM: LLMConfig{
			Provider:          v.GetString("llm.provider"),
			APIURL:            v.GetString("llm.api_url"),
			APIKey:            v.GetString("llm.api_key"),
			Model:             v.GetString("llm.model"),
			AppID:             v.GetString("llm.app_id"),
			Temperature:       v.GetFloat64("llm.temperature"),
			MaxTokens:         v.GetInt("llm.max_tokens"),
			Incremental:       v.GetBool("llm.incremental"),
			RequestsPerSecond: v.GetFloat64("llm.requests_per_second"),
			TimeoutSeconds:    v.GetInt("llm.timeout_seconds"),
		},
		Webhook: WebhookConfig{
			URL:            v.GetString("webhook.url"),
			APIKey:         v.GetString("webhook.api_key"),
			TimeoutSeconds: v.GetInt("webhook.timeout_seconds"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
			Token:     v.GetString("client.token"),
		},
		Auth: AuthConfig{
			TokenTTLMinutes: v.GetInt("auth.token_ttl_minutes"),
			RedisAddr:       v.GetString("auth.redis_addr"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetString("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
		},
	}
}
