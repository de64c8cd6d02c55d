// Package cmdutil holds the setup shared by streamchat commands: loading the
// merged config, building loggers and constructing upstream clients.
package cmdutil

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/streamchat/pkg/config"
	"github.com/papercomputeco/streamchat/pkg/llm/client"
	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/webhook"
)

// ConfigDir returns the --config-dir flag, or "" when unset.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// Debug returns the --debug flag.
func Debug(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}

// LoadViper builds the viper precedence chain for cmd and binds the given
// registry flags into it.
func LoadViper(cmd *cobra.Command, registryKeys []string) (*viper.Viper, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Registry, registryKeys)
	return v, nil
}

// NewLogger returns the colorized CLI logger writing to w.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(w),
	)
}

// LLMClientConfig maps the llm config section onto a client config.
func LLMClientConfig(c config.LLMConfig) client.Config {
	return client.Config{
		APIKey:            c.APIKey,
		APIURL:            c.APIURL,
		Model:             c.Model,
		AppID:             c.AppID,
		Provider:          c.Provider,
		Temperature:       c.Temperature,
		MaxTokens:         c.MaxTokens,
		Incremental:       c.Incremental,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// NewLLMClient returns a *client.ConfigError when required settings are
// missing.
func NewLLMClient(cfg *config.Config, l *slog.Logger) (*client.Client, error) {
	return client.New(LLMClientConfig(cfg.LLM), client.WithLogger(l))
}

// NewWebhookClient returns webhook.ErrMissingURL when no URL is configured.
func NewWebhookClient(cfg *config.Config, l *slog.Logger) (*webhook.Client, error) {
	return webhook.New(webhook.Config{
		WebhookURL: cfg.Webhook.URL,
		APIKey:     cfg.Webhook.APIKey,
		Timeout:    time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second,
	}, l)
}
