package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-url
// on "streamchat serve", "streamchat chat" and "streamchat check").
type Flag struct {
	// Name is the long flag name (e.g. "api-url").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "llm.api_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddFlags,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen       = "listen"
	FlagStorage      = "storage"
	FlagSQLite       = "sqlite"
	FlagPostgres     = "postgres"
	FlagRedis        = "redis"
	FlagKafkaBrokers = "kafka-brokers"
	FlagKafkaTopic   = "kafka-topic"

	FlagLLMProvider    = "llm-provider"
	FlagLLMAPIURL      = "api-url"
	FlagLLMAPIKey      = "api-key"
	FlagLLMModel       = "model"
	FlagLLMAppID       = "app-id"
	FlagLLMTemperature = "temperature"
	FlagLLMMaxTokens   = "max-tokens"
	FlagLLMIncremental = "incremental"

	FlagWebhookURL    = "webhook-url"
	FlagWebhookAPIKey = "webhook-api-key"

	FlagAPITarget = "api-target"
)

// ServeFlags, LLMFlags and WebhookFlags group registry keys that commands
// register together.
var (
	ServeFlags = []string{
		FlagListen, FlagStorage, FlagSQLite, FlagPostgres,
		FlagRedis, FlagKafkaBrokers, FlagKafkaTopic,
	}
	LLMFlags = []string{
		FlagLLMProvider, FlagLLMAPIURL, FlagLLMAPIKey, FlagLLMModel,
		FlagLLMAppID, FlagLLMTemperature, FlagLLMMaxTokens, FlagLLMIncremental,
	}
	WebhookFlags = []string{FlagWebhookURL, FlagWebhookAPIKey}
)

// Registry is the FlagSet shared by every streamchat command.
var Registry = FlagSet{
	FlagListen: {
		Name: "listen", Shorthand: "l", ViperKey: "api.listen",
		Description: "Address for the API server to listen on",
	},
	FlagStorage: {
		Name: "storage", ViperKey: "storage.driver",
		Description: "Storage driver (inmemory, sqlite, postgres)",
	},
	FlagSQLite: {
		Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path",
		Description: "Path to SQLite database (default: streamchat.sqlite in the config dir)",
	},
	FlagPostgres: {
		Name: "postgres", ViperKey: "storage.postgres_dsn",
		Description: "PostgreSQL connection string",
	},
	FlagRedis: {
		Name: "redis", ViperKey: "auth.redis_addr",
		Description: "Redis address for auth tokens (default: in-memory)",
	},
	FlagKafkaBrokers: {
		Name: "kafka-brokers", ViperKey: "eventstream.brokers",
		Description: "Comma-separated Kafka brokers; enables message events",
	},
	FlagKafkaTopic: {
		Name: "kafka-topic", ViperKey: "eventstream.topic",
		Description: "Kafka topic for message events",
	},
	FlagLLMProvider: {
		Name: "llm-provider", ViperKey: "llm.provider",
		Description: "LLM wire format (dashscope, openai); empty detects it from the URL",
	},
	FlagLLMAPIURL: {
		Name: "api-url", ViperKey: "llm.api_url",
		Description: "LLM chat endpoint URL",
	},
	FlagLLMAPIKey: {
		Name: "api-key", ViperKey: "llm.api_key",
		Description: "LLM API key",
	},
	FlagLLMModel: {
		Name: "model", Shorthand: "m", ViperKey: "llm.model",
		Description: "LLM model name",
	},
	FlagLLMAppID: {
		Name: "app-id", ViperKey: "llm.app_id",
		Description: "Hosted application id for native-form endpoints",
	},
	FlagLLMTemperature: {
		Name: "temperature", ViperKey: "llm.temperature",
		Description: "Sampling temperature",
	},
	FlagLLMMaxTokens: {
		Name: "max-tokens", ViperKey: "llm.max_tokens",
		Description: "Maximum tokens in a reply",
	},
	FlagLLMIncremental: {
		Name: "incremental", ViperKey: "llm.incremental",
		Description: "Ask native-form endpoints for delta streaming",
	},
	FlagWebhookURL: {
		Name: "webhook-url", ViperKey: "webhook.url",
		Description: "Video-parsing workflow webhook URL",
	},
	FlagWebhookAPIKey: {
		Name: "webhook-api-key", ViperKey: "webhook.api_key",
		Description: "Bearer key sent to the webhook",
	},
	FlagAPITarget: {
		Name: "api-target", ViperKey: "client.api_target",
		Description: "streamchat API URL",
	},
}

// AddFlags registers every key in registryKeys on cmd, choosing the flag
// type from the config key's default.
func AddFlags(cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, key := range registryKeys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		switch key {
		case FlagLLMTemperature:
			cmd.Flags().Float64(def.Name, defaultFloat(def.ViperKey), def.Description)
		case FlagLLMMaxTokens:
			cmd.Flags().Int(def.Name, int(defaultUint(def.ViperKey)), def.Description)
		case FlagLLMIncremental:
			cmd.Flags().Bool(def.Name, false, def.Description)
		default:
			if def.Shorthand != "" {
				cmd.Flags().StringP(def.Name, def.Shorthand, defaultString(def.ViperKey), def.Description)
			} else {
				cmd.Flags().String(def.Name, defaultString(def.ViperKey), def.Description)
			}
		}
	}
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultFloat returns the default float value for a viper key from NewDefaultConfig.
func defaultFloat(viperKey string) float64 {
	v := viper.New()
	setViperDefaults(v)
	return v.GetFloat64(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
