package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// StoreConfig holds the document store connection settings.
type StoreConfig struct {
	BaseURL    string `toml:"base_url"`
	Token      string `toml:"token"`
	DatabaseID string `toml:"database_id"`
}

// Config is the process-wide configuration, loaded once at startup and
// immutable afterwards.
type Config struct {
	Store StoreConfig `toml:"store"`

	// RepoPath is the git repository worktrees are created from.
	RepoPath string `toml:"repo_path"`

	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxConcurrentTasks  int    `toml:"max_concurrent_tasks"`
	DefaultModel        string `toml:"default_model"`
	WorkspaceRoot       string `toml:"workspace_root"`
	BaseRef             string `toml:"base_ref"`
	LeaseExpiryMinutes  int    `toml:"lease_expiry_minutes"`
	PageSize            int    `toml:"page_size"`

	// APIPort enables the read-only observation API when non-zero.
	APIPort int `toml:"api_port"`

	SlackWebhook    string `toml:"slack_webhook"`
	DiscordWebhook  string `toml:"discord_webhook"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`

	// DataDir holds the run journal database. Not set in the config file;
	// derived from TASKRELAY_DATA or the home directory.
	DataDir string `toml:"-"`
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".taskrelay", "config.toml"), nil
}

// Load reads the TOML config at path, applies .env and environment
// overrides, fills defaults, and validates.
func Load(path string) (*Config, error) {
	// .env is optional; environment always wins over the file.
	_ = godotenv.Load()

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TASKRELAY_STORE_TOKEN"); v != "" {
		cfg.Store.Token = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("TASKRELAY_DATA"); v != "" {
		cfg.DataDir = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 15
	}
	if cfg.MaxConcurrentTasks == 0 {
		cfg.MaxConcurrentTasks = 2
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "sonnet"
	}
	if cfg.BaseRef == "" {
		cfg.BaseRef = "main"
	}
	if cfg.LeaseExpiryMinutes == 0 {
		cfg.LeaseExpiryMinutes = 60
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 50
	}
	if cfg.DataDir == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(homeDir, ".taskrelay")
		}
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = filepath.Join(cfg.DataDir, "workspaces")
	}
}

func (cfg *Config) validate() error {
	if cfg.Store.BaseURL == "" {
		return fmt.Errorf("store.base_url is required")
	}
	if cfg.Store.DatabaseID == "" {
		return fmt.Errorf("store.database_id is required")
	}
	if cfg.RepoPath == "" {
		return fmt.Errorf("repo_path is required")
	}
	if cfg.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be >= 1, got %d", cfg.PollIntervalSeconds)
	}
	if cfg.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max_concurrent_tasks must be >= 1, got %d", cfg.MaxConcurrentTasks)
	}
	return nil
}

// PollInterval returns the poll tick period.
func (cfg *Config) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalSeconds) * time.Second
}

// LeaseExpiry returns the soft lease expiry.
func (cfg *Config) LeaseExpiry() time.Duration {
	return time.Duration(cfg.LeaseExpiryMinutes) * time.Minute
}
