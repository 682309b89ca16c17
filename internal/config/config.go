// Package config provides configuration management for taskboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/taskboard/internal/hosting"
	"github.com/randalmurphal/taskboard/internal/task"
	"github.com/randalmurphal/taskboard/internal/util"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// BoardDir is the taskboard configuration directory
	BoardDir = ".taskboard"
	// EnvPrefix prefixes every environment override (TASKBOARD_SYNC_INTERVAL).
	EnvPrefix = "TASKBOARD"
)

// DatabaseConfig selects the task store.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver" mapstructure:"driver"`
	// Path is the SQLite file, relative to the working directory.
	Path string `yaml:"path" mapstructure:"path"`
	// DSN is the PostgreSQL connection string. Prefer TASKBOARD_DATABASE_DSN
	// over writing credentials to the file.
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// WorkerConfig controls the scheduler loop.
type WorkerConfig struct {
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	StuckThreshold time.Duration `yaml:"stuck_threshold" mapstructure:"stuck_threshold"`
	// RepoPath is inspected for stuck tasks whose project has no local path.
	RepoPath string `yaml:"repo_path" mapstructure:"repo_path"`
	// GitTimeout bounds each git command run by the repo inspector.
	GitTimeout time.Duration `yaml:"git_timeout" mapstructure:"git_timeout"`
}

// ReviewConfig enables the optional review column.
type ReviewConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// SyncConfig controls reconciliation against external trackers.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// IgnoreLabels are globs; issues carrying a matching label are skipped.
	IgnoreLabels []string `yaml:"ignore_labels" mapstructure:"ignore_labels"`
	// RateLimitBuffer stops requests once this many remain in the window.
	RateLimitBuffer int `yaml:"rate_limit_buffer" mapstructure:"rate_limit_buffer"`
	// Backoff applies when a tracker signals a limit without a reset time.
	Backoff time.Duration `yaml:"backoff" mapstructure:"backoff"`
}

// JiraConfig overrides hosting settings for Jira-linked projects.
type JiraConfig struct {
	BaseURL     string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Email       string `yaml:"email,omitempty" mapstructure:"email"`
	TokenEnvVar string `yaml:"token_env_var,omitempty" mapstructure:"token_env_var"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" mapstructure:"level"`
	// Format is text or json.
	Format string `yaml:"format" mapstructure:"format"`
	// File, when set, receives logs instead of stderr and is rotated.
	File       string `yaml:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Config is the effective taskboard configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Worker   WorkerConfig   `yaml:"worker" mapstructure:"worker"`
	Review   ReviewConfig   `yaml:"review" mapstructure:"review"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Hosting  hosting.Config `yaml:"hosting" mapstructure:"hosting"`
	Jira     JiraConfig     `yaml:"jira" mapstructure:"jira"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// Workflow returns the status workflow the config selects.
func (c *Config) Workflow() task.Workflow {
	return task.Workflow{ReviewEnabled: c.Review.Enabled}
}

// TrackerConfig returns the hosting settings for a project repository,
// with the jira section applied when the project lives in Jira.
func (c *Config) TrackerConfig(repoURL string) hosting.Config {
	cfg := c.Hosting
	provider, err := hosting.ResolveProviderType(repoURL, cfg)
	if err != nil || provider != hosting.ProviderJira {
		return cfg
	}
	if c.Jira.BaseURL != "" {
		cfg.BaseURL = c.Jira.BaseURL
	}
	if c.Jira.Email != "" {
		cfg.Email = c.Jira.Email
	}
	if c.Jira.TokenEnvVar != "" {
		cfg.TokenEnvVar = c.Jira.TokenEnvVar
	}
	return cfg
}

// Path returns the project config path under root.
func Path(root string) string {
	return filepath.Join(root, BoardDir, ConfigFileName)
}

// SaveTo writes the config as YAML, creating parent directories.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Init writes a default config under root. An existing file is kept unless
// force is set.
func Init(root string, force bool) (string, error) {
	path := Path(root)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	return path, Default().SaveTo(path)
}
