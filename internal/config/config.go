// Package config loads and validates the veilbot configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for veilbot.
type Config struct {
	General General `json:"general"`
	Relay   Relay   `json:"relay"`
	Agent   Agent   `json:"agent"`
	Collab  Collab  `json:"collaborators"`
	AI      AI      `json:"ai"`
	Store   Store   `json:"store"`
	Ingest  Ingest  `json:"ingest"`
}

type General struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

// Relay configures the encrypted messaging transport. The websocket stream
// endpoint is derived from apiBase.
type Relay struct {
	APIBase    string `json:"apiBase"`
	IdentityID string `json:"identityId"` // the agent's own inbox id
}

// Agent configures the reply pipeline.
type Agent struct {
	Handles          []string `json:"handles"` // names the agent answers to in groups
	RepliesPerMinute int      `json:"repliesPerMinute"`
	DedupWindow      int      `json:"dedupWindow"`
	HistoryPerPair   int      `json:"historyPerPair"`
	IdleMinutes      int      `json:"idleMinutes"`
	RulesDir         string   `json:"rulesDir,omitempty"` // extra trigger rule files
}

// Collab configures the external identity and payment services.
type Collab struct {
	FkeyAPIBase string `json:"fkeyApiBase"`
	PayAPIBase  string `json:"payApiBase"`
}

// AI configures the optional completion provider for open-ended questions.
type AI struct {
	Enabled bool   `json:"enabled"`
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
}

type Store struct {
	DBPath string `json:"dbPath"`
}

// Ingest configures the stream consumption loop.
type Ingest struct {
	MaxRetries    int `json:"maxRetries"`
	ResyncSeconds int `json:"resyncSeconds"`
}

// DefaultConfigDir returns the default config directory (~/.veilbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veilbot"
	}
	return filepath.Join(home, ".veilbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Agent.RulesDir = ExpandPath(cfg.Agent.RulesDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Relay.APIBase == "" {
		errs = append(errs, "relay.apiBase is required")
	}
	if cfg.Relay.IdentityID == "" {
		errs = append(errs, "relay.identityId is required")
	}
	if cfg.Agent.RepliesPerMinute < 1 || cfg.Agent.RepliesPerMinute > 600 {
		errs = append(errs, "agent.repliesPerMinute must be between 1 and 600")
	}
	if cfg.Agent.DedupWindow < 1 {
		errs = append(errs, "agent.dedupWindow must be >= 1")
	}
	if cfg.Agent.HistoryPerPair < 1 {
		errs = append(errs, "agent.historyPerPair must be >= 1")
	}
	if cfg.Agent.IdleMinutes < 1 {
		errs = append(errs, "agent.idleMinutes must be >= 1")
	}
	if cfg.Collab.FkeyAPIBase == "" {
		errs = append(errs, "collaborators.fkeyApiBase is required")
	}
	if cfg.Collab.PayAPIBase == "" {
		errs = append(errs, "collaborators.payApiBase is required")
	}
	if cfg.AI.Enabled && cfg.AI.APIKey == "" {
		errs = append(errs, "ai.apiKey is required when ai.enabled is true")
	}
	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}
	if cfg.Ingest.MaxRetries < 1 {
		errs = append(errs, "ingest.maxRetries must be >= 1")
	}
	if cfg.Ingest.ResyncSeconds < 1 {
		errs = append(errs, "ingest.resyncSeconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
