package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for relaybot.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
	Backend  BackendConfig  `json:"backend" yaml:"backend"`
	Dedup    DedupConfig    `json:"dedup" yaml:"dedup"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Audit    AuditConfig    `json:"audit" yaml:"audit"`
}

type ServerConfig struct {
	Host                     string `json:"host" yaml:"host"`
	Port                     int    `json:"port" yaml:"port"`
	ReadHeaderTimeoutSeconds int    `json:"readHeaderTimeoutSeconds" yaml:"readHeaderTimeoutSeconds"`
	ShutdownTimeoutSeconds   int    `json:"shutdownTimeoutSeconds" yaml:"shutdownTimeoutSeconds"`
	MaxBodyBytes             int64  `json:"maxBodyBytes" yaml:"maxBodyBytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type SlackConfig struct {
	BotToken            string `json:"botToken" yaml:"botToken"`
	SigningSecret       string `json:"signingSecret" yaml:"signingSecret"`
	ReplayWindowSeconds int    `json:"replayWindowSeconds" yaml:"replayWindowSeconds"`
	APIURL              string `json:"apiURL,omitempty" yaml:"apiURL,omitempty"` // override for tests/proxies; must end with "/"
	RespondToMessages   bool   `json:"respondToMessages" yaml:"respondToMessages"`
}

// ReplayWindow is the maximum accepted age of a signed request.
func (s SlackConfig) ReplayWindow() time.Duration {
	return time.Duration(s.ReplayWindowSeconds) * time.Second
}

type BackendConfig struct {
	URL                string  `json:"url" yaml:"url"`
	APIKey             string  `json:"apiKey" yaml:"apiKey"`
	TimeoutSeconds     int     `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	RateLimitPerMinute float64 `json:"rateLimitPerMinute,omitempty" yaml:"rateLimitPerMinute,omitempty"` // 0 = unlimited
	RateBurst          int     `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`
	FallbackMessage    string  `json:"fallbackMessage" yaml:"fallbackMessage"`
}

// Timeout is the total budget for one backend call.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

type DedupConfig struct {
	Capacity   int `json:"capacity" yaml:"capacity"`
	TTLSeconds int `json:"ttlSeconds" yaml:"ttlSeconds"`
}

func (d DedupConfig) TTL() time.Duration {
	return time.Duration(d.TTLSeconds) * time.Second
}

type PipelineConfig struct {
	QueueSize        int `json:"queueSize" yaml:"queueSize"`
	MaxConcurrent    int `json:"maxConcurrent" yaml:"maxConcurrent"`
	PublishTimeoutMs int `json:"publishTimeoutMs" yaml:"publishTimeoutMs"`
}

func (p PipelineConfig) PublishTimeout() time.Duration {
	return time.Duration(p.PublishTimeoutMs) * time.Millisecond
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`                   // "text" | "json" | "console"
	File   string `json:"file,omitempty" yaml:"file,omitempty"` // optional log file path
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// AuditConfig configures the optional sqlite audit trail.
type AuditConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
}

// DefaultConfigDir returns the default config directory (~/.relaybot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relaybot"
	}
	return filepath.Join(home, ".relaybot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path (JSON or YAML by extension), expands
// ${VAR} references, overlays RELAYBOT_* environment variables and validates
// the result. A missing file yields defaults plus environment.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = []byte(ExpandEnvVars(string(data)))
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults + env only
	default:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.Logging.File = ExpandPath(cfg.Logging.File)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("RELAYBOT_SLACK_BOT_TOKEN", &c.Slack.BotToken)
	envStr("RELAYBOT_SLACK_SIGNING_SECRET", &c.Slack.SigningSecret)
	envStr("RELAYBOT_BACKEND_API_KEY", &c.Backend.APIKey)
	envStr("RELAYBOT_BACKEND_URL", &c.Backend.URL)
	envStr("RELAYBOT_HOST", &c.Server.Host)
	envStr("RELAYBOT_LOG_LEVEL", &c.Logging.Level)

	if v := os.Getenv("RELAYBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
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
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg to path, as YAML when the extension asks for it.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.MaxBodyBytes < 1 {
		errs = append(errs, "server.maxBodyBytes must be >= 1")
	}
	if cfg.Server.ShutdownTimeoutSeconds < 1 {
		errs = append(errs, "server.shutdownTimeoutSeconds must be >= 1")
	}

	if cfg.Slack.ReplayWindowSeconds < 1 {
		errs = append(errs, "slack.replayWindowSeconds must be >= 1")
	}
	if cfg.Slack.APIURL != "" && !strings.HasSuffix(cfg.Slack.APIURL, "/") {
		errs = append(errs, "slack.apiURL must end with '/'")
	}

	if cfg.Backend.TimeoutSeconds < 1 {
		errs = append(errs, "backend.timeoutSeconds must be >= 1")
	}
	if cfg.Backend.RateLimitPerMinute < 0 {
		errs = append(errs, "backend.rateLimitPerMinute must be >= 0")
	}
	if strings.TrimSpace(cfg.Backend.FallbackMessage) == "" {
		errs = append(errs, "backend.fallbackMessage must not be empty")
	}

	if cfg.Dedup.Capacity < 1 {
		errs = append(errs, "dedup.capacity must be >= 1")
	}
	if cfg.Dedup.TTLSeconds < 1 {
		errs = append(errs, "dedup.ttlSeconds must be >= 1")
	}

	if cfg.Pipeline.QueueSize < 1 {
		errs = append(errs, "pipeline.queueSize must be >= 1")
	}
	if cfg.Pipeline.MaxConcurrent < 1 || cfg.Pipeline.MaxConcurrent > 1024 {
		errs = append(errs, "pipeline.maxConcurrent must be between 1 and 1024")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	switch cfg.Logging.Format {
	case "text", "json", "console":
		// valid
	default:
		errs = append(errs, "logging.format must be one of: text, json, console")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with '/'")
	}
	if cfg.Audit.Enabled {
		if cfg.Audit.DBPath == "" {
			errs = append(errs, "audit.dbPath is required when audit is enabled")
		}
		if cfg.Audit.RetentionDays < 1 {
			errs = append(errs, "audit.retentionDays must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireSecrets reports the credentials that must be present before serving.
// Validate does not check them so that init/config commands work on a fresh file.
func RequireSecrets(cfg *Config) error {
	var missing []string
	if cfg.Slack.BotToken == "" {
		missing = append(missing, "slack.botToken")
	}
	if cfg.Slack.SigningSecret == "" {
		missing = append(missing, "slack.signingSecret")
	}
	if cfg.Backend.URL == "" {
		missing = append(missing, "backend.url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
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
