// Package config handles aide configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/aide/internal/calendar"
	"github.com/nugget/aide/internal/docs"
	"github.com/nugget/aide/internal/email"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./config.yaml, ~/.config/aide/config.yaml, /etc/aide/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "aide", "config.yaml"))
	}

	paths = append(paths, "/etc/aide/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all aide configuration.
type Config struct {
	Listen   ListenConfig    `yaml:"listen"`
	Slack    SlackConfig     `yaml:"slack"`
	Model    ModelConfig     `yaml:"model"`
	Agent    AgentConfig     `yaml:"agent"`
	Store    StoreConfig     `yaml:"store"`
	Dedup    DedupConfig     `yaml:"dedup"`
	Logging  LoggingConfig   `yaml:"logging"`
	Mail     email.Config    `yaml:"mail"`
	Calendar calendar.Config `yaml:"calendar"`
	Contacts ContactsConfig  `yaml:"contacts"`
	Docs     docs.Config     `yaml:"docs"`
	Search   SearchConfig    `yaml:"search"`
	MCP      MCPConfig       `yaml:"mcp"`
	MQTT     MQTTConfig      `yaml:"mqtt"`

	// DataDir holds the SQLite databases and the instance lock.
	DataDir string `yaml:"data_dir"`

	// Timezone is an IANA zone name used for the date line in the
	// system prompt and for calendar ranges. Empty means local time.
	Timezone string `yaml:"timezone"`

	// Owner is the human the assistant works for. It appears in the
	// system prompt.
	Owner OwnerConfig `yaml:"owner"`
}

// OwnerConfig identifies the assistant's principal.
type OwnerConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`

	// AutocertDomain enables HTTPS with certificates from Let's
	// Encrypt for the named host. Port is ignored when set; the
	// server listens on :443 and answers ACME challenges on :80.
	AutocertDomain   string `yaml:"autocert_domain"`
	AutocertCacheDir string `yaml:"autocert_cache_dir"`
}

// SlackConfig defines Slack credentials and ingress mode.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`

	// SigningSecret verifies Events API requests. Empty disables
	// verification, which is only sensible behind a trusted proxy.
	SigningSecret string `yaml:"signing_secret"`

	// AppToken (xapp-...) is required for Socket Mode.
	AppToken   string `yaml:"app_token"`
	SocketMode bool   `yaml:"socket_mode"`

	// APIURL overrides https://slack.com/api/ for tests and proxies.
	APIURL string `yaml:"api_url"`
}

// Configured reports whether a bot token is set.
func (c SlackConfig) Configured() bool {
	return c.BotToken != ""
}

// ModelConfig selects the text-generation backend.
type ModelConfig struct {
	Provider    string   `yaml:"provider"` // gemini, anthropic, openai, ollama
	Name        string   `yaml:"name"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`

	// Retries is how many times a failed completion is retried.
	// Default 0.
	Retries      int           `yaml:"retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// AgentConfig bounds a single turn.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	TurnTimeout   time.Duration `yaml:"turn_timeout"`

	// CallTimeout bounds a single capability call. Zero means the
	// turn deadline is the only limit.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// HistoryLimit is how many stored messages seed a turn.
	HistoryLimit int `yaml:"history_limit"`

	// Progress posts an "Executing ..." notice for each call.
	Progress *bool `yaml:"progress"`
}

// ProgressEnabled reports whether progress notices are posted.
func (c AgentConfig) ProgressEnabled() bool {
	return c.Progress == nil || *c.Progress
}

// StoreConfig defines conversation persistence.
type StoreConfig struct {
	// Path of the SQLite database. Empty keeps history in memory only.
	Path string `yaml:"path"`

	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for retention pruning.
	PruneSchedule string `yaml:"prune_schedule"`
}

// Retention returns the retention window as a duration.
func (c StoreConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// DedupConfig sizes the event deduplicator.
type DedupConfig struct {
	Capacity int `yaml:"capacity"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// ContactsConfig defines the contacts directory.
type ContactsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path of the SQLite database. Defaults to <data_dir>/contacts.db.
	Path string `yaml:"path"`

	// ImportVCF names a .vcf file loaded into the directory at startup.
	ImportVCF string `yaml:"import_vcf"`
}

// SearchConfig defines web search providers. The first configured
// provider in the order searxng, brave is the default.
type SearchConfig struct {
	SearXNG SearXNGConfig `yaml:"searxng"`
	Brave   BraveConfig   `yaml:"brave"`

	// Fetch enables fetch_web_page even without a search provider.
	Fetch bool `yaml:"fetch"`
}

// SearXNGConfig points at a SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds a Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether any web capability is available.
func (c SearchConfig) Configured() bool {
	return c.SearXNG.URL != "" || c.Brave.APIKey != "" || c.Fetch
}

// MCPConfig lists external MCP servers. Each server becomes its own
// capability category.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes one MCP server.
type MCPServerConfig struct {
	// Name becomes the capability category (get_<name>_tools).
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Transport is "stdio" or "http".
	Transport string `yaml:"transport"`

	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     []string          `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// IncludeTools limits which server tools are exposed.
	IncludeTools []string `yaml:"include_tools"`
}

// MQTTConfig defines the broker connection used for trigger ingress
// and turn event publishing.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`

	// TopicPrefix roots published topics: <prefix>/turns/<state>.
	TopicPrefix string `yaml:"topic_prefix"`

	// TriggerTopic is subscribed for inbound turn requests.
	TriggerTopic string `yaml:"trigger_topic"`

	// RateLimitPerMinute drops inbound triggers beyond this rate.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// DiscoveryPrefix is where Home Assistant discovery configs for
	// the usage sensors are published. "none" disables discovery.
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// Configured reports whether a broker is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file, expanding ${VAR}
// references from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		Listen: ListenConfig{Port: 8080},
		Model:  ModelConfig{Provider: "gemini"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Model.Provider == "" {
		c.Model.Provider = "gemini"
	}
	if c.Model.RetryBackoff == 0 {
		c.Model.RetryBackoff = time.Second
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.TurnTimeout == 0 {
		c.Agent.TurnTimeout = 5 * time.Minute
	}
	if c.Agent.HistoryLimit == 0 {
		c.Agent.HistoryLimit = 10
	}
	if c.Store.RetentionDays == 0 {
		c.Store.RetentionDays = 30
	}
	if c.Store.PruneSchedule == "" {
		c.Store.PruneSchedule = "@daily"
	}
	if c.Dedup.Capacity == 0 {
		c.Dedup.Capacity = 1000
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Contacts.Enabled && c.Contacts.Path == "" {
		c.Contacts.Path = filepath.Join(c.DataDir, "contacts.db")
	}
	if c.Listen.AutocertDomain != "" && c.Listen.AutocertCacheDir == "" {
		c.Listen.AutocertCacheDir = filepath.Join(c.DataDir, "autocert")
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "aide"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "aide"
	}
	if c.MQTT.RateLimitPerMinute == 0 {
		c.MQTT.RateLimitPerMinute = 60
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	for i := range c.MCP.Servers {
		if c.MCP.Servers[i].Transport == "" {
			c.MCP.Servers[i].Transport = "stdio"
		}
	}
	c.Mail.ApplyDefaults()
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	switch c.Model.Provider {
	case "gemini", "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("model.provider %q is not supported (valid: gemini, anthropic, openai, ollama)", c.Model.Provider)
	}
	if c.Model.Retries < 0 {
		return errors.New("model.retries must not be negative")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations %d must be at least 1", c.Agent.MaxIterations)
	}
	if c.Agent.TurnTimeout < 0 || c.Agent.CallTimeout < 0 {
		return errors.New("agent timeouts must not be negative")
	}
	if c.Store.RetentionDays < 1 {
		return fmt.Errorf("store.retention_days %d must be at least 1", c.Store.RetentionDays)
	}
	if c.Dedup.Capacity < 2 {
		return fmt.Errorf("dedup.capacity %d must be at least 2", c.Dedup.Capacity)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if c.Slack.SocketMode && !strings.HasPrefix(c.Slack.AppToken, "xapp-") {
		return errors.New("slack.socket_mode requires an xapp- app_token")
	}
	if c.Mail.Configured() {
		if err := c.Mail.Validate(); err != nil {
			return err
		}
	}
	if err := c.Calendar.Validate(); err != nil {
		return err
	}
	if err := c.Docs.Validate(); err != nil {
		return err
	}

	names := make(map[string]bool, len(c.MCP.Servers))
	for i, s := range c.MCP.Servers {
		if s.Name == "" {
			return fmt.Errorf("mcp.servers[%d].name must not be empty", i)
		}
		if names[s.Name] {
			return fmt.Errorf("mcp.servers[%d].name %q is a duplicate", i, s.Name)
		}
		names[s.Name] = true
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				return fmt.Errorf("mcp.servers[%d] (%s): command is required for stdio", i, s.Name)
			}
		case "http":
			if s.URL == "" {
				return fmt.Errorf("mcp.servers[%d] (%s): url is required for http", i, s.Name)
			}
		default:
			return fmt.Errorf("mcp.servers[%d] (%s): transport %q must be stdio or http", i, s.Name, s.Transport)
		}
	}
	return nil
}

// Location returns the configured time zone, or time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
