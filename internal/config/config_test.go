package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/hosting"
)

func writeConfig(t *testing.T, root, body string) string {
	t.Helper()
	path := Path(root)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Worker.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Worker.StuckThreshold)
	assert.Equal(t, 60*time.Minute, cfg.Review.Cooldown)
	assert.False(t, cfg.Workflow().ReviewEnabled)
}

func TestLoadDefaultsOnly(t *testing.T) {
	root := t.TempDir()

	cfg, used, err := Load(root, "")
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "auto", cfg.Hosting.Provider)
	assert.Empty(t, cfg.Sync.IgnoreLabels)
}

func TestLoadProjectFile(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, `
worker:
  interval: 1m
  stuck_threshold: 20m
review:
  enabled: true
sync:
  ignore_labels: [wontfix, "area/**/legacy"]
hosting:
  token_env_var: ACME_GH_TOKEN
`)

	cfg, used, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, time.Minute, cfg.Worker.Interval)
	assert.Equal(t, 20*time.Minute, cfg.Worker.StuckThreshold)
	assert.True(t, cfg.Workflow().ReviewEnabled)
	assert.Equal(t, []string{"wontfix", "area/**/legacy"}, cfg.Sync.IgnoreLabels)
	assert.Equal(t, "ACME_GH_TOKEN", cfg.Hosting.TokenEnvVar)
	// Untouched keys keep their defaults.
	assert.Equal(t, 60*time.Minute, cfg.Review.Cooldown)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "sync:\n  interval: 10m\n")
	t.Setenv("TASKBOARD_SYNC_INTERVAL", "2m")
	t.Setenv("TASKBOARD_REVIEW_ENABLED", "true")
	t.Setenv("TASKBOARD_SYNC_IGNORE_LABELS", "duplicate,wontfix")

	cfg, _, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.True(t, cfg.Review.Enabled)
	assert.Equal(t, []string{"duplicate", "wontfix"}, cfg.Sync.IgnoreLabels)
}

func TestLoadEnvAlias(t *testing.T) {
	t.Setenv("TASKBOARD_DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://board@localhost/board")

	cfg, _, err := Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://board@localhost/board", cfg.Database.DSN)
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, _, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "worker:\n  interval: 0s\n")

	_, _, err := Load(root, "")
	require.Error(t, err)
	assert.True(t, boarderrors.HasCode(err, boarderrors.CodeConfigInvalid))
	assert.Contains(t, err.Error(), "worker.interval")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"sqlite without path", func(c *Config) { c.Database.Path = " " }, "database.path"},
		{"negative cooldown", func(c *Config) { c.Review.Cooldown = -time.Second }, "review.cooldown"},
		{"bad glob", func(c *Config) { c.Sync.IgnoreLabels = []string{"[oops"} }, "sync.ignore_labels"},
		{"bad provider", func(c *Config) { c.Hosting.Provider = "bitbucket" }, "hosting.provider"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			be := boarderrors.AsBoardError(err)
			require.NotNil(t, be)
			assert.Equal(t, boarderrors.CodeConfigInvalid, be.Code)
			assert.Contains(t, be.What, tt.field)
		})
	}
}

func TestInitWritesLoadableDefaults(t *testing.T) {
	root := t.TempDir()

	path, err := Init(root, false)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = Init(root, false)
	require.Error(t, err, "existing config is kept without force")
	_, err = Init(root, true)
	require.NoError(t, err)

	cfg, used, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, path, used)
	def := Default()
	assert.Equal(t, def.Worker, cfg.Worker)
	assert.Equal(t, def.Review, cfg.Review)
	assert.Equal(t, def.Sync.Interval, cfg.Sync.Interval)
	assert.Equal(t, def.Log, cfg.Log)
}

func TestTrackerConfigAppliesJiraSection(t *testing.T) {
	cfg := Default()
	cfg.Hosting.TokenEnvVar = "GH_TOKEN"
	cfg.Jira = JiraConfig{Email: "bot@acme.io", TokenEnvVar: "ACME_JIRA"}

	gh := cfg.TrackerConfig("https://github.com/acme/api")
	assert.Equal(t, "GH_TOKEN", gh.TokenEnvVar)
	assert.Empty(t, gh.Email)

	jira := cfg.TrackerConfig("https://acme.atlassian.net/browse/OPS")
	assert.Equal(t, "ACME_JIRA", jira.TokenEnvVar)
	assert.Equal(t, "bot@acme.io", jira.Email)
	assert.Equal(t, hosting.DefaultTimeout, jira.Timeout)
}
