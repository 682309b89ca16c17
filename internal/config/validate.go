package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/randalmurphal/taskboard/internal/db/driver"
	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
)

// Validate reports the first invalid setting as CONFIG_INVALID.
func (c *Config) Validate() error {
	dialect, err := driver.ParseDialect(c.Database.Driver)
	if err != nil {
		return boarderrors.ErrConfigInvalid("database.driver", "must be sqlite or postgres")
	}
	switch dialect {
	case driver.DialectSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return boarderrors.ErrConfigInvalid("database.path", "required for sqlite")
		}
	case driver.DialectPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return boarderrors.ErrConfigInvalid("database.dsn", "required for postgres (set TASKBOARD_DATABASE_DSN)")
		}
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"worker.interval", c.Worker.Interval},
		{"worker.stuck_threshold", c.Worker.StuckThreshold},
		{"worker.git_timeout", c.Worker.GitTimeout},
		{"sync.interval", c.Sync.Interval},
		{"sync.backoff", c.Sync.Backoff},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return boarderrors.ErrConfigInvalid(d.field, "must be a positive duration")
		}
	}
	if c.Review.Cooldown < 0 {
		return boarderrors.ErrConfigInvalid("review.cooldown", "must not be negative")
	}
	if c.Hosting.Timeout < 0 {
		return boarderrors.ErrConfigInvalid("hosting.timeout", "must not be negative")
	}
	if c.Sync.RateLimitBuffer < 0 {
		return boarderrors.ErrConfigInvalid("sync.rate_limit_buffer", "must not be negative")
	}
	for _, pattern := range c.Sync.IgnoreLabels {
		if !doublestar.ValidatePattern(strings.ToLower(pattern)) {
			return boarderrors.ErrConfigInvalid("sync.ignore_labels", fmt.Sprintf("invalid glob %q", pattern))
		}
	}

	switch strings.ToLower(c.Hosting.Provider) {
	case "", "auto", "github", "gitlab", "jira":
	default:
		return boarderrors.ErrConfigInvalid("hosting.provider", "must be auto, github, gitlab, or jira")
	}

	if _, err := c.LogLevel(); err != nil {
		return boarderrors.ErrConfigInvalid("log.level", "must be debug, info, warn, or error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return boarderrors.ErrConfigInvalid("log.format", "must be text or json")
	}
	return nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.Log.Level))
	return level, err
}
