// Package logincmder provides the login command that signs in to a streamchat
// API server and saves the bearer token for later commands.
package logincmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/papercomputeco/streamchat/cmd/streamchat/cmdutil"
	"github.com/papercomputeco/streamchat/pkg/auth"
	"github.com/papercomputeco/streamchat/pkg/cliui"
	"github.com/papercomputeco/streamchat/pkg/config"
	"github.com/papercomputeco/streamchat/pkg/llm"
)

type loginCommander struct {
	email     string
	configDir string

	viper *viper.Viper
	in    io.Reader
	out   io.Writer
}

const loginLongDesc string = `Sign in to a streamchat API server.

The token returned by the server is saved as client.token in config.toml
and used by "streamchat chat --remote". The email can be passed with --email;
anything not passed is prompted for. The password is read with hidden input
when stdin is a terminal, otherwise from the next line of stdin.

Examples:
  streamchat login
  streamchat login --email me@example.com --api-target http://localhost:8000
  printf 'me@example.com\nsecret\n' | streamchat login`

const loginShortDesc string = "Sign in to a streamchat API server"

var loginFlags = []string{config.FlagAPITarget}

func NewLoginCmd() *cobra.Command {
	cmder := &loginCommander{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: loginShortDesc,
		Long:  loginLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.viper, err = cmdutil.LoadViper(cmd, loginFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir = cmdutil.ConfigDir(cmd)
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx)
		},
	}

	config.AddFlags(cmd, config.Registry, loginFlags)
	cmd.Flags().StringVarP(&cmder.email, "email", "e", "", "Account email")

	return cmd
}

func (c *loginCommander) run(ctx context.Context) error {
	cfg := config.FromViper(c.viper)
	reader := bufio.NewReader(c.in)

	email := strings.TrimSpace(c.email)
	if email == "" {
		fmt.Fprint(c.out, "Email: ")
		line, err := readLine(reader)
		if err != nil {
			return fmt.Errorf("reading email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return errors.New("email cannot be empty")
	}

	password, err := c.readPassword(reader)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password cannot be empty")
	}

	sess, err := login(ctx, cfg.Client.APITarget, email, password)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SetConfigValue("client.token", sess.Token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	name := sess.User.Email
	if sess.User.Username != "" {
		name = sess.User.Username
	}
	fmt.Fprintf(c.out, "\n  %s Signed in as %s %s\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(name),
		cliui.DimStyle.Render("(token expires "+sess.ExpiresAt.Local().Format("2006-01-02 15:04")+")"),
	)
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Token saved to:"), cliui.DimStyle.Render(cfger.GetTarget()))
	return nil
}

// readPassword reads with hidden input when stdin is a terminal and falls
// back to the next line otherwise.
func (c *loginCommander) readPassword(reader *bufio.Reader) (string, error) {
	fmt.Fprint(c.out, "Password: ")

	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(raw), nil
	}

	line, err := readLine(reader)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r"), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no input received on stdin")
		}
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func login(ctx context.Context, target, email, password string) (*auth.Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(target, "/")+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e llm.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return nil, fmt.Errorf("login failed: %s", e.Error)
		}
		return nil, fmt.Errorf("login failed: api answered %s", resp.Status)
	}

	var sess auth.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if sess.Token == "" || sess.User == nil {
		return nil, errors.New("login failed: api returned no token")
	}
	return &sess, nil
}
