package jira

import (
	"fmt"
	"os"

	"github.com/randalmurphal/taskboard/internal/hosting"
)

// resolveCredentials reads the Jira account email and API token. The email
// comes from config or JIRA_EMAIL; the token from cfg.TokenEnvVar or
// JIRA_API_TOKEN.
func resolveCredentials(cfg hosting.Config) (email, token string, err error) {
	email = cfg.Email
	if email == "" {
		email = os.Getenv("JIRA_EMAIL")
	}
	if email == "" {
		return "", "", fmt.Errorf("jira email is not set (hosting.email or JIRA_EMAIL): %w", hosting.ErrAuthFailed)
	}

	envVar := "JIRA_API_TOKEN"
	if cfg.TokenEnvVar != "" {
		envVar = cfg.TokenEnvVar
	}
	token = os.Getenv(envVar)
	if token == "" {
		return "", "", fmt.Errorf("%s environment variable is not set (required for Jira API access): %w", envVar, hosting.ErrAuthFailed)
	}
	return email, token, nil
}
