package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/randalmurphal/taskboard/internal/hosting"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   ".taskboard/taskboard.db",
		},
		Worker: WorkerConfig{
			Interval:       30 * time.Second,
			StuckThreshold: 10 * time.Minute,
			RepoPath:       ".",
			GitTimeout:     10 * time.Second,
		},
		Review: ReviewConfig{
			Enabled:  false,
			Cooldown: 60 * time.Minute,
		},
		Sync: SyncConfig{
			Interval:        5 * time.Minute,
			IgnoreLabels:    []string{},
			RateLimitBuffer: 5,
			Backoff:         60 * time.Second,
		},
		Hosting: hosting.Config{
			Provider: "auto",
			Timeout:  hosting.DefaultTimeout,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// setDefaults registers every key with viper. AutomaticEnv only resolves
// keys viper already knows, so each field needs a default here.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.dsn", d.Database.DSN)

	v.SetDefault("worker.interval", d.Worker.Interval)
	v.SetDefault("worker.stuck_threshold", d.Worker.StuckThreshold)
	v.SetDefault("worker.repo_path", d.Worker.RepoPath)
	v.SetDefault("worker.git_timeout", d.Worker.GitTimeout)

	v.SetDefault("review.enabled", d.Review.Enabled)
	v.SetDefault("review.cooldown", d.Review.Cooldown)

	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.ignore_labels", d.Sync.IgnoreLabels)
	v.SetDefault("sync.rate_limit_buffer", d.Sync.RateLimitBuffer)
	v.SetDefault("sync.backoff", d.Sync.Backoff)

	v.SetDefault("hosting.provider", d.Hosting.Provider)
	v.SetDefault("hosting.base_url", d.Hosting.BaseURL)
	v.SetDefault("hosting.token_env_var", d.Hosting.TokenEnvVar)
	v.SetDefault("hosting.email", d.Hosting.Email)
	v.SetDefault("hosting.timeout", d.Hosting.Timeout)

	v.SetDefault("jira.base_url", d.Jira.BaseURL)
	v.SetDefault("jira.email", d.Jira.Email)
	v.SetDefault("jira.token_env_var", d.Jira.TokenEnvVar)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}
