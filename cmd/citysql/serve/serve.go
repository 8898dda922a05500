// Package servecmder provides the serve command, which runs the citysql HTTP
// server.
package servecmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/citysql/api"
	mcpserver "github.com/papercomputeco/citysql/api/mcp"
	"github.com/papercomputeco/citysql/pkg/agent"
	"github.com/papercomputeco/citysql/pkg/cities"
	"github.com/papercomputeco/citysql/pkg/config"
	"github.com/papercomputeco/citysql/pkg/dotdir"
	"github.com/papercomputeco/citysql/pkg/history"
	"github.com/papercomputeco/citysql/pkg/history/inmemory"
	"github.com/papercomputeco/citysql/pkg/history/sqlstore"
	"github.com/papercomputeco/citysql/pkg/logger"
	"github.com/papercomputeco/citysql/pkg/worker"
	"github.com/papercomputeco/citysql/relay"
)

type serveCommander struct {
	flags   flagValues
	cfg     *config.Config
	debug   bool
	logFile string

	logger *slog.Logger
}

// flagValues only receive the parsed flags; the resolved values are read
// back through viper so env and config file precedence apply.
type flagValues struct {
	listen           string
	mcp              bool
	dsn              string
	maxConns         uint
	statementTimeout time.Duration
	baseURL          string
	model            string
	streaming        bool
	maxToolRounds    uint
	sessionTimeout   time.Duration
	history          string
	sqlitePath       string
	historyWorkers   uint
	historyQueue     uint
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagMCP,
	config.FlagDSN,
	config.FlagMaxConns,
	config.FlagStatementTimeout,
	config.FlagBaseURL,
	config.FlagModel,
	config.FlagStreaming,
	config.FlagMaxToolRounds,
	config.FlagSessionTimeout,
	config.FlagHistory,
	config.FlagSQLite,
	config.FlagHistoryWorkers,
	config.FlagHistoryQueue,
}

const serveLongDesc string = `Run the citysql HTTP server.

Routes:
  POST /api/chat      Answer the last user message as an event stream
  POST /api/search    Answer a query as JSON, with the SQL it used
  GET  /api/data      The cities table, most populous first
  GET  /api/history   Recently answered questions
  GET  /metrics       Prometheus metrics
  /mcp                MCP endpoint exposing the execute_sql tool

The cities database is reached through --dsn, or the standard PG*
environment variables when no DSN is configured. The model API key is read
from agent.api_key or OPENAI_API_KEY.

Examples:
  citysql serve
  citysql serve --listen :8080 --model gpt-4o
  citysql serve --history sqlite --sqlite ./history.db
  citysql serve --log-file ./citysql.log`

const serveShortDesc string = "Run the citysql HTTP server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfg, err := resolveConfig(cmd, configDir)
			if err != nil {
				return err
			}
			cmder.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &f.listen)
	config.AddBoolFlag(cmd, config.Flags, config.FlagMCP, &f.mcp)
	config.AddStringFlag(cmd, config.Flags, config.FlagDSN, &f.dsn)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxConns, &f.maxConns)
	config.AddDurationFlag(cmd, config.Flags, config.FlagStatementTimeout, &f.statementTimeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagBaseURL, &f.baseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &f.model)
	config.AddBoolFlag(cmd, config.Flags, config.FlagStreaming, &f.streaming)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxToolRounds, &f.maxToolRounds)
	config.AddDurationFlag(cmd, config.Flags, config.FlagSessionTimeout, &f.sessionTimeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagHistory, &f.history)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &f.sqlitePath)
	config.AddUintFlag(cmd, config.Flags, config.FlagHistoryWorkers, &f.historyWorkers)
	config.AddUintFlag(cmd, config.Flags, config.FlagHistoryQueue, &f.historyQueue)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

// resolveConfig applies flag > env > config file > default precedence and
// validates the result.
func resolveConfig(cmd *cobra.Command, configDir string) (*config.Config, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

	cfg := config.FromViper(v)
	if cfg.History.Provider == config.HistorySQLite && cfg.History.SQLitePath == "" {
		path, err := dotdir.NewManager().Path(configDir, dotdir.HistoryDBFile)
		if err != nil {
			return nil, fmt.Errorf("resolving history database path: %w", err)
		}
		cfg.History.SQLitePath = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, closeLog, err := newLogger(c.debug, c.logFile, os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = log
	cfg := c.cfg

	db, err := cities.Open(ctx, cfg.Database.DSN, cities.PoolConfig{
		MaxConns:       int(cfg.Database.MaxConns),
		IdleTimeout:    cfg.Database.IdleTimeout,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connecting to cities database: %w", err)
	}
	defer db.Close()

	executor := cities.NewExecutor(db, cities.ExecutorConfig{
		StatementTimeout: cfg.Database.StatementTimeout,
		Logger:           c.logger,
	})

	sqlAgent, err := agent.New(agent.Config{
		BaseURL:       cfg.Agent.BaseURL,
		APIKey:        cfg.Agent.APIKey,
		Model:         cfg.Agent.Model,
		Temperature:   cfg.Agent.Temperature,
		MaxToolRounds: int(cfg.Agent.MaxToolRounds),
		MaxRetries:    2,
		Querier:       executor,
		Logger:        c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	driver, err := c.newHistoryDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	pool, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		NumWorkers: cfg.History.Workers,
		QueueSize:  cfg.History.QueueSize,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating history worker pool: %w", err)
	}
	defer pool.Close()

	apiConfig := api.Config{
		ListenAddr: cfg.Server.Listen,
		Streaming:  cfg.Agent.Streaming,
		Agent:      api.FromAgent(sqlAgent),
		Querier:    executor,
		Relay: relay.New(relay.Config{
			SessionTimeout: cfg.Relay.SessionTimeout,
			Logger:         c.logger,
		}),
		Recorder: pool,
		History:  driver,
	}

	if cfg.Server.MCP {
		mcpServer, err := mcpserver.NewServer(mcpserver.Config{
			Querier: executor,
			Logger:  c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
		apiConfig.MCP = mcpServer.Handler()
	}

	server, err := api.NewServer(apiConfig, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

// newLogger logs text to stdout and, when logFile is set, JSON to logFile.
func newLogger(debug bool, logFile string, stdout io.Writer) (*slog.Logger, func() error, error) {
	console := logger.New(logger.WithDebug(debug), logger.WithWriter(stdout))
	if logFile == "" {
		return console, func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(logger.WithDebug(debug), logger.WithJSON(true), logger.WithWriter(f))
	return logger.Multi(console, file), f.Close, nil
}

func (c *serveCommander) newHistoryDriver(ctx context.Context) (history.Driver, error) {
	h := c.cfg.History
	switch h.Provider {
	case config.HistorySQLite:
		driver, err := sqlstore.NewSQLiteDriver(ctx, h.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite history store: %w", err)
		}
		c.logger.Info("using SQLite history", "path", h.SQLitePath)
		return driver, nil

	case config.HistoryPostgres:
		driver, err := sqlstore.NewPostgresDriver(ctx, c.cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL history store: %w", err)
		}
		c.logger.Info("using PostgreSQL history")
		return driver, nil

	default:
		c.logger.Info("using in-memory history")
		return inmemory.NewDriver(), nil
	}
}
