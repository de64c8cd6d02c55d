// Package checkcmder provides the check command that probes the configured
// LLM endpoint, workflow webhook and API server.
package checkcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/streamchat/cmd/streamchat/cmdutil"
	"github.com/papercomputeco/streamchat/pkg/cliui"
	"github.com/papercomputeco/streamchat/pkg/config"
	"github.com/papercomputeco/streamchat/pkg/webhook"
)

const pingTimeout = 5 * time.Second

type checkCommander struct {
	debug  bool
	viper  *viper.Viper
	logger *slog.Logger
	out    io.Writer
}

const checkLongDesc string = `Check that streamchat can reach the services it is configured for.

Runs a probe prompt against the LLM endpoint, a GET against the workflow
webhook when one is set, and a ping against the API server. The command
fails if any configured check fails.

Examples:
  streamchat check
  streamchat check --api-url https://api.openai.com/v1/chat/completions --model gpt-4o-mini`

const checkShortDesc string = "Check connectivity to the LLM, webhook and API"

var checkFlags = append(append(append([]string{}, config.LLMFlags...), config.WebhookFlags...), config.FlagAPITarget)

func NewCheckCmd() *cobra.Command {
	cmder := &checkCommander{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: checkShortDesc,
		Long:  checkLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.viper, err = cmdutil.LoadViper(cmd, checkFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug = cmdutil.Debug(cmd)
			cmder.out = cmd.OutOrStdout()
			cmder.logger = cmdutil.NewLogger(cmd.ErrOrStderr(), cmder.debug)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx)
		},
	}

	config.AddFlags(cmd, config.Registry, checkFlags)

	return cmd
}

func (c *checkCommander) run(ctx context.Context) error {
	cfg := config.FromViper(c.viper)
	failed := 0

	fmt.Fprintln(c.out)

	if err := cliui.Step(c.out, "LLM endpoint "+cliui.DimStyle.Render(cfg.LLM.APIURL), func() error {
		llmClient, err := cmdutil.NewLLMClient(cfg, c.logger)
		if err != nil {
			return err
		}
		if !llmClient.TestConnection(ctx) {
			return errors.New("llm did not answer the probe prompt")
		}
		return nil
	}); err != nil {
		failed++
		c.explain(err)
	}

	if cfg.Webhook.URL == "" {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.DimStyle.Render("-"), cliui.DimStyle.Render("Webhook not configured"))
	} else if err := cliui.Step(c.out, "Webhook "+cliui.DimStyle.Render(cfg.Webhook.URL), func() error {
		wh, err := cmdutil.NewWebhookClient(cfg, c.logger)
		if err != nil {
			return err
		}
		if !wh.TestConnection(ctx) {
			return errors.New("webhook did not answer 200; make sure the workflow is active")
		}
		return nil
	}); err != nil {
		failed++
		c.explain(err)
	}

	if err := cliui.Step(c.out, "API server "+cliui.DimStyle.Render(cfg.Client.APITarget), func() error {
		return ping(ctx, cfg.Client.APITarget)
	}); err != nil {
		failed++
		c.explain(err)
	}

	fmt.Fprintln(c.out)
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func (c *checkCommander) explain(err error) {
	if errors.Is(err, webhook.ErrMissingURL) {
		return
	}
	fmt.Fprintf(c.out, "    %s\n", cliui.ErrorStyle.Render(err.Error()))
}

func ping(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(target, "/")+"/ping", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("api unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api answered %s", resp.Status)
	}
	return nil
}
