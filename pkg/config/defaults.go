package config

import "time"

const (
	defaultListen = ":3000"

	defaultMaxConns         = 20
	defaultIdleTimeout      = 30 * time.Second
	defaultConnectTimeout   = 2 * time.Second
	defaultStatementTimeout = 10 * time.Second

	defaultAgentProvider = "openai"
	defaultModel         = "gpt-4o-mini"
	defaultMaxToolRounds = 5

	defaultSessionTimeout = 30 * time.Second

	defaultHistoryProvider = HistoryMemory
	defaultHistoryWorkers  = 2
	defaultHistoryQueue    = 256

	defaultClientTarget = "http://localhost:3000"
)

// History providers.
const (
	HistoryMemory   = "memory"
	HistorySQLite   = "sqlite"
	HistoryPostgres = "postgres"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen: defaultListen,
			MCP:    true,
		},
		Database: DatabaseConfig{
			MaxConns:         defaultMaxConns,
			IdleTimeout:      defaultIdleTimeout,
			ConnectTimeout:   defaultConnectTimeout,
			StatementTimeout: defaultStatementTimeout,
		},
		Agent: AgentConfig{
			Provider:      defaultAgentProvider,
			Model:         defaultModel,
			Streaming:     true,
			MaxToolRounds: defaultMaxToolRounds,
		},
		Relay: RelayConfig{
			SessionTimeout: defaultSessionTimeout,
		},
		History: HistoryConfig{
			Provider:  defaultHistoryProvider,
			Workers:   defaultHistoryWorkers,
			QueueSize: defaultHistoryQueue,
		},
		Client: ClientConfig{
			Target: defaultClientTarget,
		},
	}
}
