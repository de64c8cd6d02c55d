// Package initcmder provides the init command for initializing a local
// .streamchat directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamchat/pkg/cliui"
	"github.com/papercomputeco/streamchat/pkg/config"
)

const (
	dirName = ".streamchat"
)

const initLongDesc string = `Initialize a new .streamchat/ directory in the current working directory.

Creates a local .streamchat/ directory that takes precedence over the default
~/.streamchat/ directory for configuration and the SQLite database.

With --preset, a config.toml is written with the LLM endpoint settings for
one of the known providers. An existing config.toml is left alone unless
--force is given.

Presets: dashscope, dashscope-compatible, openai

Examples:
  streamchat init
  streamchat init --preset dashscope-compatible
  streamchat init --preset openai --force`

const initShortDesc string = "Initialize a local .streamchat/ directory"

func NewInitCmd() *cobra.Command {
	var preset string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset, force)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Write a config.toml for an LLM provider ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config.toml")

	return cmd
}

func runInit(w io.Writer, preset string, force bool) error {
	var cfg *config.Config
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .streamchat directory: %w", err)
		}
		fmt.Fprintf(w, "Initialized .streamchat directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if _, err := os.Stat(cfger.GetTarget()); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfger.GetTarget())
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Wrote %s preset to %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(preset),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("Set your key with: streamchat config set llm.api_key <key>"))
	return nil
}
