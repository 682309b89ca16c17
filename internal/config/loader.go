package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// envAliases are extra environment names accepted for a key, checked after
// the derived TASKBOARD_SECTION_FIELD name.
var envAliases = map[string][]string{
	"database.dsn":     {"TASKBOARD_DB_DSN", "DATABASE_URL"},
	"database.driver":  {"TASKBOARD_DB_DRIVER"},
	"review.enabled":   {"TASKBOARD_REVIEW"},
	"log.level":        {"TASKBOARD_LOG_LEVEL"},
	"jira.email":       {"JIRA_EMAIL"},
	"hosting.base_url": {"TASKBOARD_HOSTING_URL"},
}

// Load resolves the effective configuration.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. Config file: path when given, else <root>/.taskboard/config.yaml if present
//  3. Environment variables (TASKBOARD_*)
//
// It returns the config file used, or "" when none was read. An explicit
// path that does not exist is an error; a missing default file is not.
func Load(root, path string) (*Config, string, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(root, BoardDir))
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	}

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, used, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, used, err
	}
	return cfg, used, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, env}, aliases...)...)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Sync.IgnoreLabels == nil {
		cfg.Sync.IgnoreLabels = []string{}
	}
	return &cfg, nil
}
