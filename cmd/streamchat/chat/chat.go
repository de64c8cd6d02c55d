// Package chatcmder provides the chat command for streaming LLM chat in the
// terminal.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/streamchat/cmd/streamchat/cmdutil"
	"github.com/papercomputeco/streamchat/pkg/cliui"
	"github.com/papercomputeco/streamchat/pkg/config"
	"github.com/papercomputeco/streamchat/pkg/stream"
)

var (
	userPrompt      = cliui.UserStyle.Render("you> ")
	assistantPrompt = cliui.AssistantStyle.Render("assistant> ")
)

type chatCommander struct {
	prompt   string
	markdown bool
	remote   bool
	session  string
	debug    bool

	viper  *viper.Viper
	logger *slog.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

const chatLongDesc string = `Start an interactive chat that streams replies as they are generated.

By default the chat talks to the configured LLM endpoint directly and keeps
the conversation in memory. With --remote it goes through a streamchat API
server instead, which stores the conversation in a session. Remote chats
need a token from "streamchat login".

Examples:
  streamchat chat
  streamchat chat -p "Summarize the plot of Hamlet"
  streamchat chat --markdown --model qwen-plus
  streamchat chat --remote --api-target http://localhost:8000`

const chatShortDesc string = "Interactive streaming LLM chat"

var chatFlags = append(append([]string{}, config.LLMFlags...), config.FlagAPITarget)

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.viper, err = cmdutil.LoadViper(cmd, chatFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug = cmdutil.Debug(cmd)
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			return cmder.run(cmd.Context())
		},
	}

	config.AddFlags(cmd, config.Registry, chatFlags)
	cmd.Flags().StringVarP(&cmder.prompt, "prompt", "p", "", "Answer a single prompt and exit")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the finished answer as markdown")
	cmd.Flags().BoolVar(&cmder.remote, "remote", false, "Chat through a streamchat API server")
	cmd.Flags().StringVar(&cmder.session, "session", "", "Continue this API session (with --remote)")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger = cmdutil.NewLogger(c.errOut, c.debug)
	cfg := config.FromViper(c.viper)

	r, label, err := c.newReplier(cfg)
	if err != nil {
		return err
	}

	if c.prompt != "" {
		return c.turn(ctx, r, c.prompt, false)
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Chatting with:"), cliui.ValueStyle.Render(label))
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		if err := c.turn(ctx, r, input, true); err != nil {
			fmt.Fprintf(c.errOut, "  %s %v\n", cliui.FailMark, err)
			continue
		}
		fmt.Fprintln(c.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// turn streams one reply. Ctrl+C cancels the reply without ending the chat.
func (c *chatCommander) turn(ctx context.Context, r replier, input string, prefix bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT)
	defer stop()

	if prefix {
		fmt.Fprint(c.out, assistantPrompt)
	}

	var p *printer
	var sink stream.Sink = stream.SinkFuncs{}
	if !c.markdown {
		p = &printer{w: c.out}
		sink = p.sink()
	}

	var text string
	var err error
	if c.markdown {
		err = cliui.Step(c.errOut, "Waiting for reply", func() error {
			text, err = r.reply(ctx, input, sink)
			return err
		})
	} else {
		text, err = r.reply(ctx, input, sink)
	}
	if err != nil {
		if p != nil && p.written() {
			fmt.Fprintln(c.out)
		}
		if errors.Is(err, context.Canceled) {
			return errors.New("reply cancelled")
		}
		return err
	}

	if c.markdown {
		rendered, rerr := cliui.RenderMarkdown(text)
		if rerr != nil {
			c.logger.Debug("markdown rendering failed", "error", rerr)
		}
		fmt.Fprint(c.out, rendered)
		return nil
	}

	if text == "" {
		fmt.Fprint(c.out, cliui.DimStyle.Render("(empty reply)"))
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *chatCommander) newReplier(cfg *config.Config) (replier, string, error) {
	if !c.remote {
		llmClient, err := cmdutil.NewLLMClient(cfg, c.logger)
		if err != nil {
			return nil, "", fmt.Errorf("creating llm client: %w", err)
		}
		return &localReplier{client: llmClient}, llmClient.Provider() + "/" + llmClient.Model(), nil
	}

	if cfg.Client.Token == "" {
		return nil, "", errors.New(`not signed in: run "streamchat login" first`)
	}
	return &remoteReplier{
		target:     cfg.Client.APITarget,
		token:      cfg.Client.Token,
		sessionID:  c.session,
		httpClient: &http.Client{},
	}, cfg.Client.APITarget, nil
}

// printer writes streamed text to a terminal. Snapshot rewrites that extend
// what is already shown print only the new tail; anything else starts over
// on a fresh line.
type printer struct {
	w     io.Writer
	shown string
}

func (p *printer) sink() stream.Sink {
	return stream.SinkFuncs{
		Fragment: func(text string) {
			fmt.Fprint(p.w, text)
			p.shown += text
		},
		Replace: func(full string) {
			if strings.HasPrefix(full, p.shown) {
				fmt.Fprint(p.w, full[len(p.shown):])
			} else {
				fmt.Fprint(p.w, "\n"+full)
			}
			p.shown = full
		},
	}
}

func (p *printer) written() bool {
	return p.shown != ""
}
