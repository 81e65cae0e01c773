// Package config loads adept settings from defaults, a YAML file, an
// optional profile overlay, ADEPT_ environment variables and --set flags,
// in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
)

// EnvPrefix prefixes environment overrides: ADEPT_LLM_MODEL sets llm.model.
const EnvPrefix = "ADEPT_"

type Config struct {
	Log        LogConfig         `koanf:"log"`
	LLM        LLMConfig         `koanf:"llm"`
	Telemetry  TelemetryConfig   `koanf:"telemetry"`
	Agent      AgentConfig       `koanf:"agent"`
	Session    SessionConfig     `koanf:"session"`
	Filesystem FilesystemConfig  `koanf:"filesystem"`
	Skills     SkillsConfig      `koanf:"skills"`
	Project    ProjectConfig     `koanf:"project"`
	Tools      ToolsConfig       `koanf:"tools"`
	MCPServers []MCPServerConfig `koanf:"mcp_servers"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, openai, anthropic, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	// MaxRetries is the number of extra attempts after a failed call.
	MaxRetries int `koanf:"max_retries"`
}

type TelemetryConfig struct {
	Exporter           string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds"`
}

type AgentConfig struct {
	Role string `koanf:"role"`
	// Template is a path to a system prompt template; empty uses the default.
	Template      string `koanf:"template"`
	WatchTemplate bool   `koanf:"watch_template"`
	MaxIterations int    `koanf:"max_iterations"`
}

type SessionConfig struct {
	Backend     string `koanf:"backend"` // none, memory, sqlite, redis
	Path        string `koanf:"path"`
	RedisAddr   string `koanf:"redis_addr"`
	MaxMessages int    `koanf:"max_messages"`
	MaxTokens   int    `koanf:"max_tokens"`
}

type FilesystemConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Root      string `koanf:"root"`
	Depth     int    `koanf:"depth"`
	Gitignore bool   `koanf:"gitignore"`
}

type SkillsConfig struct {
	Dir string `koanf:"dir"`
}

type ProjectConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ToolsConfig holds glob patterns applied to capability tool names.
type ToolsConfig struct {
	Allow []string `koanf:"allow"`
	Deny  []string `koanf:"deny"`
}

// MCPServerConfig describes one MCP server capability.
type MCPServerConfig struct {
	Name        string            `koanf:"name"`
	Description string            `koanf:"description"`
	Transport   string            `koanf:"transport"` // stdio, http
	Command     string            `koanf:"command"`
	Args        []string          `koanf:"args"`
	Env         map[string]string `koanf:"env"`
	Cwd         string            `koanf:"cwd"`
	URL         string            `koanf:"url"`
	Headers     map[string]string `koanf:"headers"`
	// Tools limits the exposed tools; nil exposes all of them.
	Tools            []string `koanf:"tools"`
	Resources        bool     `koanf:"resources"`
	ResourcePrefixes []string `koanf:"resource_prefixes"`
	Instructions     []string `koanf:"instructions"`
	Enabled          bool     `koanf:"enabled"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":    "ollama",
	"llm.model":       "qwen2.5-coder:7b-instruct-q5_K_M",
	"llm.max_retries": 2,

	"telemetry.exporter": "none",

	"agent.role":           "You are a helpful assistant.",
	"agent.max_iterations": 10,

	"session.backend": "memory",
	"session.path":    "adept.db",

	"filesystem.enabled":   true,
	"filesystem.root":      ".",
	"filesystem.depth":     3,
	"filesystem.gitignore": true,

	"project.enabled": true,
}

// Load reads defaults, the YAML file at path (if any) and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile is Load with config.<profile>.yaml next to path layered
// over the base file when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI loads configuration from command line style arguments:
// --config <path>, --profile|--env <name> and repeated --set key=value.
func LoadWithCLI(args []string) (*Config, error) {
	opts, sets, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, sets)
}

func load(path, profile string, sets map[string]any) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile %s: %w", overlay, err)
			}
		}
	}

	// 2. Load from ENV (ADEPT_SESSION_MAX_MESSAGES -> session.max_messages)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	// 3. --set overrides
	for key, value := range sets {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// profileConfigPath returns config.<profile>.yaml beside base, or "" when
// there is no such file.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliOptions struct {
	path    string
	profile string
}

func parseCLIOverrides(args []string) (cliOptions, map[string]any, error) {
	var opts cliOptions
	sets := map[string]any{}
	for i := 0; i < len(args); i++ {
		name, value, inline := strings.Cut(args[i], "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !inline {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("missing value for %s", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			key, raw, ok := strings.Cut(value, "=")
			if !ok || key == "" {
				return opts, nil, fmt.Errorf("invalid --set %q, want key=value", value)
			}
			sets[key] = parseValue(raw)
		}
	}
	return opts, sets, nil
}

// parseValue decodes JSON objects and arrays; anything else stays a string
// and is converted when unmarshalled.
func parseValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return raw
}

// Validate checks settings that cannot be caught by unmarshalling.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, s := range c.MCPServers {
		if s.Name == "" {
			return invalid(fmt.Sprintf("mcp_servers[%d]: name is required", i))
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return invalid(fmt.Sprintf("mcp_servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[key] = true

		switch s.Transport {
		case "", "stdio":
			if s.Command == "" {
				return invalid(fmt.Sprintf("mcp server %s: command is required for stdio", s.Name))
			}
		case "http":
			if s.URL == "" {
				return invalid(fmt.Sprintf("mcp server %s: url is required for http", s.Name))
			}
		default:
			return invalid(fmt.Sprintf("mcp server %s: unknown transport %q", s.Name, s.Transport))
		}
	}

	switch c.Session.Backend {
	case "", "none", "memory", "sqlite", "redis":
	default:
		return invalid(fmt.Sprintf("unknown session backend %q", c.Session.Backend))
	}
	if c.Session.Backend == "redis" && c.Session.RedisAddr == "" {
		return invalid("session.redis_addr is required for the redis backend")
	}
	if c.LLM.MaxRetries < 0 {
		return invalid("llm.max_retries must not be negative")
	}
	if c.Agent.MaxIterations < 0 {
		return invalid("agent.max_iterations must not be negative")
	}
	return nil
}

func invalid(msg string) error {
	return adepterrors.New(adepterrors.CodeInvalidInput, msg, nil).WithContext("component", "config")
}
