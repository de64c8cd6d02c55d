package client

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 30 * time.Second
)

// Config configures a Client. Zero values for Temperature, MaxTokens and
// Timeout take the defaults above.
type Config struct {
	APIKey string
	APIURL string
	Model  string

	// AppID routes native-form requests to a hosted application.
	AppID string

	// Provider names the wire format ("dashscope" or "openai"). Empty means
	// detect it from APIURL.
	Provider string

	Temperature float64
	MaxTokens   int

	// Incremental asks native-form endpoints for delta streaming. Without
	// it the stream carries growing snapshots.
	Incremental bool

	// Timeout bounds non-streaming calls. Streams are bounded only by the
	// caller's context.
	Timeout time.Duration

	// RequestsPerSecond limits outgoing requests when positive.
	RequestsPerSecond float64
	Burst             int
}

// ConfigError lists the required settings that are missing.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("llm client is not configured: missing %s", strings.Join(e.Missing, ", "))
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api key")
	}
	if strings.TrimSpace(c.APIURL) == "" {
		missing = append(missing, "api url")
	}
	if strings.TrimSpace(c.Model) == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}
