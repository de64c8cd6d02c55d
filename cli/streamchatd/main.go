package main

import (
	"os"

	servecmder "github.com/papercomputeco/streamchat/cmd/streamchat/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "streamchatd"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .streamchat/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
