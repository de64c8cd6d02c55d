// Package videocmder provides the video command that sends a message to the
// video-parsing workflow.
package videocmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/streamchat/cmd/streamchat/cmdutil"
	"github.com/papercomputeco/streamchat/pkg/cliui"
	"github.com/papercomputeco/streamchat/pkg/config"
	"github.com/papercomputeco/streamchat/pkg/webhook"
)

type videoCommander struct {
	stream bool
	debug  bool
	viper  *viper.Viper
	out    io.Writer
	errOut io.Writer
}

const videoLongDesc string = `Send a message, usually a video link, to the video-parsing workflow.

The workflow is an n8n webhook set with --webhook-url or webhook.url. Without
--stream the command waits for the parsed result; with it, chunks are printed
as the workflow sends them.

Examples:
  streamchat video "https://www.bilibili.com/video/BV1xx411c7mD"
  streamchat video --stream "summarize https://youtu.be/dQw4w9WgXcQ"`

const videoShortDesc string = "Parse a video through the workflow webhook"

func NewVideoCmd() *cobra.Command {
	cmder := &videoCommander{}

	cmd := &cobra.Command{
		Use:   "video <message>",
		Short: videoShortDesc,
		Long:  videoLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.viper, err = cmdutil.LoadViper(cmd, config.WebhookFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug = cmdutil.Debug(cmd)
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, strings.Join(args, " "))
		},
	}

	config.AddFlags(cmd, config.Registry, config.WebhookFlags)
	cmd.Flags().BoolVar(&cmder.stream, "stream", false, "Print chunks as the workflow sends them")

	return cmd
}

func (c *videoCommander) run(ctx context.Context, message string) error {
	l := cmdutil.NewLogger(c.errOut, c.debug)
	cfg := config.FromViper(c.viper)

	wh, err := cmdutil.NewWebhookClient(cfg, l)
	if errors.Is(err, webhook.ErrMissingURL) {
		return errors.New("webhook url is not set: pass --webhook-url or run \"streamchat config set webhook.url <url>\"")
	}
	if err != nil {
		return err
	}

	if c.stream {
		return c.runStream(ctx, wh, message)
	}

	var resp *webhook.Response
	err = cliui.Step(c.errOut, "Parsing video", func() error {
		resp, err = wh.ParseVideo(ctx, message)
		return err
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("workflow reported failure: %s", resp.Error)
	}

	printResponse(c.out, resp)
	return nil
}

func (c *videoCommander) runStream(ctx context.Context, wh *webhook.Client, message string) error {
	err := wh.ParseVideoStream(ctx, message, func(chunk webhook.Chunk) {
		switch chunk.Type {
		case webhook.ChunkError:
			// returned below
		case webhook.ChunkText:
			fmt.Fprint(c.out, chunk.Data)
		default:
			fmt.Fprintf(c.out, "\n%s %s\n", cliui.KeyStyle.Render(string(chunk.Type)+":"), chunk.Data)
		}
	})
	fmt.Fprintln(c.out)
	return err
}

func printResponse(w io.Writer, resp *webhook.Response) {
	if resp.Data == nil {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("(no content)"))
		return
	}

	if info := resp.Data.VideoInfo; info != nil {
		fmt.Fprintln(w)
		for _, kv := range [][2]string{
			{"Title:", info.Title},
			{"Author:", info.Author},
			{"Duration:", info.Duration},
			{"URL:", info.URL},
		} {
			if kv[1] != "" {
				fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render(kv[0]), cliui.ValueStyle.Render(kv[1]))
			}
		}
	}

	if resp.Data.ParsedContent != "" {
		rendered, err := cliui.RenderMarkdown(resp.Data.ParsedContent)
		if err != nil {
			rendered = resp.Data.ParsedContent + "\n"
		}
		fmt.Fprint(w, rendered)
	}

	if a := resp.Data.Analysis; a != nil {
		if a.Summary != "" {
			fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Summary:"), a.Summary)
		}
		for _, p := range a.KeyPoints {
			fmt.Fprintf(w, "  • %s\n", p)
		}
		if len(a.Tags) > 0 {
			fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Tags:"), cliui.DimStyle.Render(strings.Join(a.Tags, ", ")))
		}
	}
}
