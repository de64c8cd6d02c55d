// Package servecmder provides the serve command that runs the streamchat API.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/streamchat/api"
	"github.com/papercomputeco/streamchat/cmd/streamchat/cmdutil"
	"github.com/papercomputeco/streamchat/cmd/streamchat/sqlitepath"
	"github.com/papercomputeco/streamchat/pkg/auth"
	"github.com/papercomputeco/streamchat/pkg/chat"
	"github.com/papercomputeco/streamchat/pkg/config"
	"github.com/papercomputeco/streamchat/pkg/eventstream"
	"github.com/papercomputeco/streamchat/pkg/eventstream/kafka"
	"github.com/papercomputeco/streamchat/pkg/eventstream/nop"
	"github.com/papercomputeco/streamchat/pkg/llm/client"
	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/storage"
	"github.com/papercomputeco/streamchat/pkg/storage/inmemory"
	"github.com/papercomputeco/streamchat/pkg/storage/postgres"
	"github.com/papercomputeco/streamchat/pkg/storage/sqlite"
	"github.com/papercomputeco/streamchat/pkg/webhook"
	"github.com/papercomputeco/streamchat/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

type serveCommander struct {
	viper     *viper.Viper
	configDir string
	debug     bool
	logFile   string
	logger    *slog.Logger
}

const serveLongDesc string = `Run the streamchat API server.

The server exposes password auth, chat sessions, streamed model replies over
SSE and video parsing through the configured workflow webhook. Settings come
from flags, STREAMCHAT_* environment variables and config.toml, in that order.

Chat replies need llm.api_url, llm.api_key and llm.model. Without them the
server still starts and answers chat requests with 503.

Examples:
  streamchat serve
  streamchat serve --storage postgres --postgres postgres://localhost/streamchat
  streamchat serve --redis localhost:6379 --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the streamchat API server"

var serveFlags = append(append(append([]string{}, config.ServeFlags...), config.LLMFlags...), config.WebhookFlags...)

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.viper, err = cmdutil.LoadViper(cmd, serveFlags)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug = cmdutil.Debug(cmd)
			cmder.configDir = cmdutil.ConfigDir(cmd)
			return cmder.run()
		},
	}

	config.AddFlags(cmd, config.Registry, serveFlags)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run() error {
	if err := c.setupLogger(); err != nil {
		return err
	}

	cfg := config.FromViper(c.viper)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := c.newStorageDriver(ctx, cfg)
	if err != nil {
		return err
	}
	defer driver.Close()

	tokens, err := c.newTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer tokens.Close()

	publisher, err := c.newPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Close()

	authSvc := auth.New(auth.Config{
		Driver:   driver,
		Tokens:   tokens,
		TokenTTL: time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
		Logger:   c.logger,
	})

	chatCfg := chat.Config{
		Driver: driver,
		Jobs:   pool,
		Logger: c.logger,
	}
	llmClient, err := cmdutil.NewLLMClient(cfg, c.logger)
	var cerr *client.ConfigError
	switch {
	case errors.As(err, &cerr):
		c.logger.Warn("llm is not configured, chat replies are disabled", "missing", strings.Join(cerr.Missing, ", "))
	case err != nil:
		return fmt.Errorf("creating llm client: %w", err)
	default:
		chatCfg.Completer = llmClient
		c.logger.Info("using llm", "provider", llmClient.Provider(), "model", llmClient.Model())
	}

	apiCfg := api.Config{ListenAddr: cfg.API.Listen}
	wh, err := cmdutil.NewWebhookClient(cfg, c.logger)
	switch {
	case errors.Is(err, webhook.ErrMissingURL):
		c.logger.Info("webhook url is not set, video parsing is disabled")
	case err != nil:
		return fmt.Errorf("creating webhook client: %w", err)
	default:
		apiCfg.Video = wh
	}

	server, err := api.NewServer(apiCfg, authSvc, chat.New(chatCfg), c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	c.watchConfig()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (c *serveCommander) setupLogger() error {
	c.logger = cmdutil.NewLogger(os.Stderr, c.debug)
	if c.logFile == "" {
		return nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	c.logger = logger.Multi(c.logger, logger.New(
		logger.WithJSON(true),
		logger.WithDebug(c.debug),
		logger.WithWriter(f),
		logger.WithRedact("email"),
	))
	return nil
}

// watchConfig logs edits to config.toml. Settings are read once at startup,
// so changes take effect on restart.
func (c *serveCommander) watchConfig() {
	file := c.viper.ConfigFileUsed()
	if file == "" {
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.logger.Info("config file changed, restart to apply", "file", e.Name, "op", e.Op.String())
	})
	c.viper.WatchConfig()
	c.logger.Debug("watching config file", "file", file)
}

func (c *serveCommander) newStorageDriver(ctx context.Context, cfg *config.Config) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case config.StorageInMemory:
		c.logger.Warn("using in-memory storage, data is lost on exit")
		return inmemory.NewDriver(), nil

	case config.StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires --postgres or storage.postgres_dsn")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case config.StorageSQLite, "":
		path, err := sqlitepath.ResolveSQLitePath(cfg.Storage.SQLitePath, c.configDir)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", path)
		return driver, nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func (c *serveCommander) newTokenStore(ctx context.Context, cfg *config.Config) (auth.TokenStore, error) {
	if cfg.Auth.RedisAddr == "" {
		return auth.NewMemoryTokenStore(), nil
	}

	store, err := auth.NewRedisTokenStore(ctx, auth.RedisConfig{Addr: cfg.Auth.RedisAddr})
	if err != nil {
		return nil, fmt.Errorf("connecting token store: %w", err)
	}
	c.logger.Info("using redis token store", "addr", cfg.Auth.RedisAddr)
	return store, nil
}

func (c *serveCommander) newPublisher(cfg *config.Config) (eventstream.Publisher, error) {
	brokers := splitBrokers(cfg.EventStream.Brokers)
	if cfg.EventStream.Provider != config.EventStreamKafka && len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{Brokers: brokers, Topic: cfg.EventStream.Topic})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	c.logger.Info("publishing message events to kafka", "brokers", brokers, "topic", cfg.EventStream.Topic)
	return p, nil
}

func splitBrokers(s string) []string {
	var brokers []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
