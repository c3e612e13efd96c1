// Package config loads and validates memchat configuration.
// Configuration is YAML on disk; the coordinator takes a read-only snapshot
// of the tool and memory registries at the start of each turn, so an
// operator toggling a tool mid-turn never races an in-flight authorization.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ExecutionMode selects the streaming/tool-calling strategy for a turn.
type ExecutionMode string

const (
	// ModeSinglePass issues one inference call per turn. Streaming is
	// disabled whenever tools are enabled, because a streamed partial
	// response cannot carry a function call.
	ModeSinglePass ExecutionMode = "single_pass"

	// ModeDualPassWriteOnly streams a tool-free acknowledgment for WRITE
	// turns and performs the side effect in a background second pass.
	// READ turns run single-pass with tools enabled and no streaming.
	ModeDualPassWriteOnly ExecutionMode = "dual_pass_write_only"

	// ModeDualPassAll applies the two-pass shape to every turn with tools
	// enabled. UNSAFE for READ turns: the user-visible first pass has no
	// tool access and may fabricate an answer, while the correct answer is
	// only ever computed in the hidden second pass. Preserved as
	// configured behavior rather than silently corrected; operators are
	// warned at startup.
	ModeDualPassAll ExecutionMode = "dual_pass_all"
)

// ParseMode validates an execution-mode string. An unrecognized mode is a
// fatal configuration error, never a silent fallback.
func ParseMode(s string) (ExecutionMode, error) {
	switch ExecutionMode(s) {
	case ModeSinglePass, ModeDualPassWriteOnly, ModeDualPassAll:
		return ExecutionMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown execution mode %q (valid: %s, %s, %s)",
			ErrInvalidConfig, s, ModeSinglePass, ModeDualPassWriteOnly, ModeDualPassAll)
	}
}

// ErrInvalidConfig marks fatal configuration errors.
var ErrInvalidConfig = fmt.Errorf("invalid configuration")

// Config holds all memchat configuration.
type Config struct {
	// StateDir is where logs, the audit trail, and memory databases live.
	StateDir string `yaml:"state_dir"`

	// LLM configures the inference endpoint.
	LLM LLMConfig `yaml:"llm"`

	// Execution selects the turn strategy.
	Execution ExecutionConfig `yaml:"execution"`

	// Tools is the per-tool registry: name -> entry.
	Tools map[string]ToolConfig `yaml:"tools"`

	// Memory configures the persistent memory store.
	Memory MemoryConfig `yaml:"memory"`

	// Logging controls the categorized debug logs.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the chat-completion endpoint client.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"` // OpenAI-compatible endpoint root
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"` // Go duration string, e.g. "2m"
}

// ParsedTimeout returns the request timeout, defaulting to two minutes.
func (c LLMConfig) ParsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// ExecutionConfig selects the streaming/tool strategy.
type ExecutionConfig struct {
	Mode string `yaml:"mode"`
}

// ToolConfig is one per-tool registry entry.
type ToolConfig struct {
	Enabled          bool     `yaml:"enabled"`
	RequiresApproval bool     `yaml:"requires_approval"`
	// Whitelist is the closed set of glob-style patterns defining the only
	// paths/commands this tool may touch. Empty means no access
	// (fail-closed).
	Whitelist     []string `yaml:"whitelist"`
	RootDirectory string   `yaml:"root_directory"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// MemoryConfig configures the persistent memory store instance.
type MemoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	MaxEntries int    `yaml:"max_entries"`
	Directory  string `yaml:"directory"`
}

// LoggingConfig controls categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns a configuration with sensible defaults. The tool registry
// is empty: capabilities must be granted explicitly.
func Default() *Config {
	return &Config{
		StateDir: ".memchat",
		LLM: LLMConfig{
			BaseURL: "http://localhost:8080/v1",
			Model:   "local",
			Timeout: "2m",
		},
		Execution: ExecutionConfig{Mode: string(ModeSinglePass)},
		Tools:     map[string]ToolConfig{},
		Memory: MemoryConfig{
			Enabled:    true,
			MaxEntries: 50000,
			Directory:  ".memchat/memory",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path, applying defaults for absent fields
// and the MEMCHAT_API_KEY environment override.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file not found: %s", ErrInvalidConfig, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, path, err)
	}

	if key := os.Getenv("MEMCHAT_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that must hold before anything runs.
// Violations here are fatal: an operator must be told their configuration
// is wrong rather than having the system guess.
func (c *Config) Validate() error {
	if _, err := ParseMode(c.Execution.Mode); err != nil {
		return err
	}
	if c.StateDir == "" {
		return fmt.Errorf("%w: state_dir must not be empty", ErrInvalidConfig)
	}
	if c.Memory.Enabled {
		if c.Memory.MaxEntries <= 0 {
			return fmt.Errorf("%w: memory.max_entries must be positive, got %d",
				ErrInvalidConfig, c.Memory.MaxEntries)
		}
		if c.Memory.Directory == "" {
			return fmt.Errorf("%w: memory.directory must not be empty", ErrInvalidConfig)
		}
	}
	for name, tc := range c.Tools {
		if tc.TimeoutSeconds < 0 {
			return fmt.Errorf("%w: tools.%s.timeout_seconds must not be negative",
				ErrInvalidConfig, name)
		}
		if tc.RootDirectory != "" && !filepath.IsAbs(tc.RootDirectory) {
			abs, err := filepath.Abs(tc.RootDirectory)
			if err != nil {
				return fmt.Errorf("%w: tools.%s.root_directory: %v", ErrInvalidConfig, name, err)
			}
			tc.RootDirectory = abs
			c.Tools[name] = tc
		}
	}
	return nil
}

// ToolsEnabled reports whether any tool is currently enabled.
func (c *Config) ToolsEnabled() bool {
	for _, tc := range c.Tools {
		if tc.Enabled {
			return true
		}
	}
	return false
}

// Clone returns a deep copy used as the per-turn read-only snapshot.
func (c *Config) Clone() *Config {
	out := *c
	out.Tools = make(map[string]ToolConfig, len(c.Tools))
	for name, tc := range c.Tools {
		wl := make([]string, len(tc.Whitelist))
		copy(wl, tc.Whitelist)
		tc.Whitelist = wl
		out.Tools[name] = tc
	}
	if c.Logging.Categories != nil {
		out.Logging.Categories = make(map[string]bool, len(c.Logging.Categories))
		for k, v := range c.Logging.Categories {
			out.Logging.Categories[k] = v
		}
	}
	return &out
}
