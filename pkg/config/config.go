package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/citysql/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// No .citysql/ directory: LoadConfig returns defaults and SaveConfig
	// errors.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in the
// order they appear in config.toml.
func ValidConfigKeys() []string {
	ordered := []string{
		"server.listen",
		"server.mcp",
		"database.dsn",
		"database.max_conns",
		"database.idle_timeout",
		"database.connect_timeout",
		"database.statement_timeout",
		"agent.provider",
		"agent.base_url",
		"agent.api_key",
		"agent.model",
		"agent.streaming",
		"agent.max_tool_rounds",
		"agent.temperature",
		"relay.session_timeout",
		"history.provider",
		"history.sqlite_path",
		"history.workers",
		"history.queue_size",
		"client.target",
	}

	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// IsSecretKey reports whether key holds a credential that should not be
// echoed back in listings.
func IsSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key") || key == "database.dsn"
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target .citysql/ directory.
// A missing file yields NewDefaultConfig(). Fields explicitly set in the
// file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfigTOML(data)
}

// applyDefaults fills zero-value fields in cfg with values from
// NewDefaultConfig(). Booleans cannot be told apart from an explicit false
// and are handled by ParseConfigTOML.
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = d.Server.Listen
	}

	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = d.Database.MaxConns
	}
	if cfg.Database.IdleTimeout == 0 {
		cfg.Database.IdleTimeout = d.Database.IdleTimeout
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = d.Database.ConnectTimeout
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = d.Database.StatementTimeout
	}

	if cfg.Agent.Provider == "" {
		cfg.Agent.Provider = d.Agent.Provider
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = d.Agent.Model
	}
	if cfg.Agent.MaxToolRounds == 0 {
		cfg.Agent.MaxToolRounds = d.Agent.MaxToolRounds
	}

	if cfg.Relay.SessionTimeout == 0 {
		cfg.Relay.SessionTimeout = d.Relay.SessionTimeout
	}

	if cfg.History.Provider == "" {
		cfg.History.Provider = d.History.Provider
	}
	if cfg.History.Workers == 0 {
		cfg.History.Workers = d.History.Workers
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = d.History.QueueSize
	}

	if cfg.Client.Target == "" {
		cfg.Client.Target = d.Client.Target
	}
}

// SaveConfig persists the configuration to config.toml in the target .citysql/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config with defaults applied
// to every field the document leaves out.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	// Decoding over the defaults keeps booleans the document omits at
	// their default instead of false.
	cfg := NewDefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// Validate checks the values that cannot be caught by a single key setter.
func (c *Config) Validate() error {
	switch c.History.Provider {
	case HistoryMemory, HistorySQLite, HistoryPostgres:
	default:
		return fmt.Errorf("unknown history provider %q (available: %s, %s, %s)",
			c.History.Provider, HistoryMemory, HistorySQLite, HistoryPostgres)
	}
	if c.History.Provider == HistorySQLite && c.History.SQLitePath == "" {
		return errors.New("history.sqlite_path is required for the sqlite history provider")
	}
	if c.Agent.Provider != defaultAgentProvider {
		return fmt.Errorf("unknown agent provider %q (available: %s)", c.Agent.Provider, defaultAgentProvider)
	}
	return nil
}
