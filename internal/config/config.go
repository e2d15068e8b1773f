// ABOUTME: Configuration loading and parsing for jotbot
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/jotlab/jotbot/internal/history"
)

// Config represents the complete jotbot configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Billing      BillingConfig      `yaml:"billing"`
	History      HistoryConfig      `yaml:"history"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BillingConfig holds the per-message fee in the smallest currency unit
type BillingConfig struct {
	MessageFee int64 `yaml:"message_fee"`
}

// HistoryConfig holds the per-user history cap
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// ClassifierConfig optionally points at a TOML ruleset overriding the
// embedded default rules
type ClassifierConfig struct {
	RulesPath string `yaml:"rules_path"`
}

// IntegrationsConfig holds non-secret integration settings. Credentials
// are per-user and live in the store, never here.
type IntegrationsConfig struct {
	Slack  SlackConfig  `yaml:"slack"`
	Trello TrelloConfig `yaml:"trello"`
}

// SlackConfig holds Slack integration settings
type SlackConfig struct {
	Channel string `yaml:"channel"`
}

// TrelloConfig holds Trello integration settings
type TrelloConfig struct {
	ListID string `yaml:"list_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values a minimal config file may omit.
func (c *Config) applyDefaults() {
	if c.History.Limit == 0 {
		c.History.Limit = history.DefaultLimit
	}
	if c.Billing.MessageFee == 0 {
		c.Billing.MessageFee = 1
	}
	if c.Integrations.Slack.Channel == "" {
		c.Integrations.Slack.Channel = "#general"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative")
	}
	if c.Billing.MessageFee < 0 {
		return fmt.Errorf("billing.message_fee must not be negative")
	}
	return nil
}
