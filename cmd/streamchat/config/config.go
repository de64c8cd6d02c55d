// Package configcmder provides the config command for managing persistent
// streamchat configuration stored in the .streamchat/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamchat/pkg/cliui"
	"github.com/papercomputeco/streamchat/pkg/config"
)

const configLongDesc string = `Manage persistent streamchat configuration.

Configuration is stored as config.toml in the .streamchat/ directory and
provides default values for command flags. Environment variables prefixed
with STREAMCHAT_ override the file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  llm.provider, llm.api_url, llm.api_key, llm.model, llm.app_id,
  llm.temperature, llm.max_tokens, llm.incremental,
  llm.requests_per_second, llm.timeout_seconds,
  webhook.url, webhook.api_key, webhook.timeout_seconds,
  api.listen, client.api_target, client.token,
  auth.token_ttl_minutes, auth.redis_addr,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  streamchat config set <key> <value>    Set a configuration value
  streamchat config get <key>            Get a configuration value
  streamchat config list                 List all configuration values

Examples:
  streamchat config set llm.model qwen-plus
  streamchat config set webhook.url http://localhost:5678/webhook/video
  streamchat config get llm.api_url
  streamchat config list`

const configShortDesc string = "Manage persistent streamchat configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}
