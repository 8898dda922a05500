package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so the same logical flag
// (e.g. --target on both "citysql chat" and "citysql ask") cannot drift.
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "server.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling the Add*Flag helpers and
// BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen           = "listen"
	FlagMCP              = "mcp"
	FlagDSN              = "dsn"
	FlagMaxConns         = "max-conns"
	FlagStatementTimeout = "statement-timeout"
	FlagBaseURL          = "base-url"
	FlagModel            = "model"
	FlagStreaming        = "streaming"
	FlagMaxToolRounds    = "max-tool-rounds"
	FlagSessionTimeout   = "session-timeout"
	FlagHistory          = "history"
	FlagSQLite           = "sqlite"
	FlagHistoryWorkers   = "history-workers"
	FlagHistoryQueue     = "history-queue"
	FlagTarget           = "target"
)

// Flags is the registry shared by every citysql command.
var Flags = FlagSet{
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "server.listen",
		Description: "Address for the HTTP server to listen on",
	},
	FlagMCP: {
		Name:        "mcp",
		ViperKey:    "server.mcp",
		Description: "Serve the MCP endpoint at /mcp",
	},
	FlagDSN: {
		Name:        "dsn",
		ViperKey:    "database.dsn",
		Description: "PostgreSQL connection string for the cities database (defaults to PG* environment variables)",
	},
	FlagMaxConns: {
		Name:        "max-conns",
		ViperKey:    "database.max_conns",
		Description: "Maximum open connections to the cities database",
	},
	FlagStatementTimeout: {
		Name:        "statement-timeout",
		ViperKey:    "database.statement_timeout",
		Description: "Maximum time a single SQL statement may run",
	},
	FlagBaseURL: {
		Name:        "base-url",
		ViperKey:    "agent.base_url",
		Description: "Base URL of an OpenAI-compatible API",
	},
	FlagModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "agent.model",
		Description: "Model used to answer questions",
	},
	FlagStreaming: {
		Name:        "streaming",
		ViperKey:    "agent.streaming",
		Description: "Relay answers incrementally as the model produces them",
	},
	FlagMaxToolRounds: {
		Name:        "max-tool-rounds",
		ViperKey:    "agent.max_tool_rounds",
		Description: "Maximum SQL tool invocations per question",
	},
	FlagSessionTimeout: {
		Name:        "session-timeout",
		ViperKey:    "relay.session_timeout",
		Description: "Maximum duration of one streamed chat answer",
	},
	FlagHistory: {
		Name:        "history",
		ViperKey:    "history.provider",
		Description: "Where to record answered questions (memory, sqlite, postgres)",
	},
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "history.sqlite_path",
		Description: "Path to the SQLite history database",
	},
	FlagHistoryWorkers: {
		Name:        "history-workers",
		ViperKey:    "history.workers",
		Description: "Number of history writer goroutines",
	},
	FlagHistoryQueue: {
		Name:        "history-queue",
		ViperKey:    "history.queue_size",
		Description: "Pending history writes before entries are dropped",
	},
	FlagTarget: {
		Name:        "target",
		Shorthand:   "t",
		ViperKey:    "client.target",
		Description: "citysql server URL",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *time.Duration) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaults().GetDuration(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().DurationVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().DurationVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
