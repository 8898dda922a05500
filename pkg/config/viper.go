package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/citysql/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable citysql reads, e.g.
// CITYSQL_SERVER_LISTEN or CITYSQL_DATABASE_DSN.
const EnvPrefix = "CITYSQL"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CITYSQL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CITYSQL_SERVER_LISTEN, CITYSQL_AGENT_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the resolved configuration.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Version: v.GetInt("version"),
		Server: ServerConfig{
			Listen: v.GetString("server.listen"),
			MCP:    v.GetBool("server.mcp"),
		},
		Database: DatabaseConfig{
			DSN:              v.GetString("database.dsn"),
			MaxConns:         v.GetUint("database.max_conns"),
			IdleTimeout:      v.GetDuration("database.idle_timeout"),
			ConnectTimeout:   v.GetDuration("database.connect_timeout"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
		},
		Agent: AgentConfig{
			Provider:      v.GetString("agent.provider"),
			BaseURL:       v.GetString("agent.base_url"),
			APIKey:        v.GetString("agent.api_key"),
			Model:         v.GetString("agent.model"),
			Streaming:     v.GetBool("agent.streaming"),
			MaxToolRounds: v.GetUint("agent.max_tool_rounds"),
		},
		Relay: RelayConfig{
			SessionTimeout: v.GetDuration("relay.session_timeout"),
		},
		History: HistoryConfig{
			Provider:   v.GetString("history.provider"),
			SQLitePath: v.GetString("history.sqlite_path"),
			Workers:    v.GetUint("history.workers"),
			QueueSize:  v.GetUint("history.queue_size"),
		},
		Client: ClientConfig{
			Target: v.GetString("client.target"),
		},
	}

	if v.IsSet("agent.temperature") {
		t := v.GetFloat64("agent.temperature")
		cfg.Agent.Temperature = &t
	}

	applyDefaults(cfg)
	return cfg
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.mcp", d.Server.MCP)

	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.idle_timeout", d.Database.IdleTimeout)
	v.SetDefault("database.connect_timeout", d.Database.ConnectTimeout)
	v.SetDefault("database.statement_timeout", d.Database.StatementTimeout)

	v.SetDefault("agent.provider", d.Agent.Provider)
	v.SetDefault("agent.base_url", d.Agent.BaseURL)
	v.SetDefault("agent.api_key", d.Agent.APIKey)
	v.SetDefault("agent.model", d.Agent.Model)
	v.SetDefault("agent.streaming", d.Agent.Streaming)
	v.SetDefault("agent.max_tool_rounds", d.Agent.MaxToolRounds)

	v.SetDefault("relay.session_timeout", d.Relay.SessionTimeout)

	v.SetDefault("history.provider", d.History.Provider)
	v.SetDefault("history.sqlite_path", d.History.SQLitePath)
	v.SetDefault("history.workers", d.History.Workers)
	v.SetDefault("history.queue_size", d.History.QueueSize)

	v.SetDefault("client.target", d.Client.Target)
}
