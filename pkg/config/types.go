package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent citysql configuration stored as
// config.toml in the .citysql/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version  int            `toml:"version"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Agent    AgentConfig    `toml:"agent"`
	Relay    RelayConfig    `toml:"relay"`
	History  HistoryConfig  `toml:"history"`
	Client   ClientConfig   `toml:"client"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`
	MCP    bool   `toml:"mcp"`
}

// DatabaseConfig holds the cities database connection settings.
// An empty DSN defers to the standard PG* environment variables.
type DatabaseConfig struct {
	DSN              string        `toml:"dsn,omitempty"`
	MaxConns         uint          `toml:"max_conns,omitempty"`
	IdleTimeout      time.Duration `toml:"idle_timeout,omitempty"`
	ConnectTimeout   time.Duration `toml:"connect_timeout,omitempty"`
	StatementTimeout time.Duration `toml:"statement_timeout,omitempty"`
}

// AgentConfig holds the hosted model settings.
type AgentConfig struct {
	Provider      string   `toml:"provider,omitempty"`
	BaseURL       string   `toml:"base_url,omitempty"`
	APIKey        string   `toml:"api_key,omitempty"`
	Model         string   `toml:"model,omitempty"`
	Streaming     bool     `toml:"streaming"`
	MaxToolRounds uint     `toml:"max_tool_rounds,omitempty"`
	Temperature   *float64 `toml:"temperature,omitempty"`
}

// RelayConfig holds chat relay settings.
type RelayConfig struct {
	SessionTimeout time.Duration `toml:"session_timeout,omitempty"`
}

// HistoryConfig selects where answered questions are recorded.
// Provider is one of "memory", "sqlite" or "postgres".
type HistoryConfig struct {
	Provider   string `toml:"provider,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
	Workers    uint   `toml:"workers,omitempty"`
	QueueSize  uint   `toml:"queue_size,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// server (citysql chat, citysql ask). Target is a full URL.
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *time.Duration) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return field(c).String()
		},
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = d
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen": stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.mcp":    boolKey("server.mcp", func(c *Config) *bool { return &c.Server.MCP }),

	"database.dsn":               stringKey(func(c *Config) *string { return &c.Database.DSN }),
	"database.max_conns":         uintKey("database.max_conns", func(c *Config) *uint { return &c.Database.MaxConns }),
	"database.idle_timeout":      durationKey("database.idle_timeout", func(c *Config) *time.Duration { return &c.Database.IdleTimeout }),
	"database.connect_timeout":   durationKey("database.connect_timeout", func(c *Config) *time.Duration { return &c.Database.ConnectTimeout }),
	"database.statement_timeout": durationKey("database.statement_timeout", func(c *Config) *time.Duration { return &c.Database.StatementTimeout }),

	"agent.provider":        stringKey(func(c *Config) *string { return &c.Agent.Provider }),
	"agent.base_url":        stringKey(func(c *Config) *string { return &c.Agent.BaseURL }),
	"agent.api_key":         stringKey(func(c *Config) *string { return &c.Agent.APIKey }),
	"agent.model":           stringKey(func(c *Config) *string { return &c.Agent.Model }),
	"agent.streaming":       boolKey("agent.streaming", func(c *Config) *bool { return &c.Agent.Streaming }),
	"agent.max_tool_rounds": uintKey("agent.max_tool_rounds", func(c *Config) *uint { return &c.Agent.MaxToolRounds }),
	"agent.temperature": {
		get: func(c *Config) string {
			if c.Agent.Temperature == nil {
				return ""
			}
			return strconv.FormatFloat(*c.Agent.Temperature, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for agent.temperature: %w", err)
			}
			if f < 0 || f > 2 {
				return fmt.Errorf("invalid value for agent.temperature: %v is outside [0, 2]", f)
			}
			c.Agent.Temperature = &f
			return nil
		},
	},

	"relay.session_timeout": durationKey("relay.session_timeout", func(c *Config) *time.Duration { return &c.Relay.SessionTimeout }),

	"history.provider":    stringKey(func(c *Config) *string { return &c.History.Provider }),
	"history.sqlite_path": stringKey(func(c *Config) *string { return &c.History.SQLitePath }),
	"history.workers":     uintKey("history.workers", func(c *Config) *uint { return &c.History.Workers }),
	"history.queue_size":  uintKey("history.queue_size", func(c *Config) *uint { return &c.History.QueueSize }),

	"client.target": stringKey(func(c *Config) *string { return &c.Client.Target }),
}
