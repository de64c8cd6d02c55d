package config

// Storage drivers.
const (
	StorageInMemory = "inmemory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Event stream providers.
const (
	EventStreamNone  = "none"
	EventStreamKafka = "kafka"
)

const (
	defaultStorageDriver = StorageSQLite

	defaultLLMAPIURL      = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
	defaultLLMModel       = "qwen-turbo"
	defaultLLMTemperature = 0.7
	defaultLLMMaxTokens   = 2000
	defaultLLMTimeout     = 30

	defaultWebhookTimeout = 30

	defaultAPIListen       = ":8000"
	defaultClientAPITarget = "http://localhost:8000"

	defaultTokenTTLMinutes = 24 * 60

	defaultEventStreamProvider = EventStreamNone
	defaultEventStreamTopic    = "streamchat.messages"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		LLM: LLMConfig{
			APIURL:         defaultLLMAPIURL,
			Model:          defaultLLMModel,
			Temperature:    defaultLLMTemperature,
			MaxTokens:      defaultLLMMaxTokens,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Webhook: WebhookConfig{
			TimeoutSeconds: defaultWebhookTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: defaultTokenTTLMinutes,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
