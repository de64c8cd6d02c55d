// Package streamchatcmder
package streamchatcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/streamchat/cmd/streamchat/chat"
	checkcmder "github.com/papercomputeco/streamchat/cmd/streamchat/check"
	configcmder "github.com/papercomputeco/streamchat/cmd/streamchat/config"
	initcmder "github.com/papercomputeco/streamchat/cmd/streamchat/init"
	logincmder "github.com/papercomputeco/streamchat/cmd/streamchat/login"
	servecmder "github.com/papercomputeco/streamchat/cmd/streamchat/serve"
	videocmder "github.com/papercomputeco/streamchat/cmd/streamchat/video"
	versioncmder "github.com/papercomputeco/streamchat/cmd/version"
)

const streamchatLongDesc string = `streamchat streams LLM chat replies and video-parsing results.

Run the API server:
  streamchat serve     Run the HTTP API with auth, chat sessions and video parsing

Use it from the terminal:
  streamchat chat      Interactive streaming chat
  streamchat video     Send a video link to the parsing workflow
  streamchat login     Sign in to an API server for remote chats
  streamchat check     Check connectivity to the configured services

Configure it:
  streamchat init      Create a local .streamchat/ directory
  streamchat config    Get, set and list config.toml values`

const streamchatShortDesc string = "streamchat - streaming LLM chat"

func NewStreamchatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "streamchat",
		Short:        streamchatShortDesc,
		Long:         streamchatLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .streamchat/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(videocmder.NewVideoCmd())
	cmd.AddCommand(checkcmder.NewCheckCmd())
	cmd.AddCommand(logincmder.NewLoginCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
