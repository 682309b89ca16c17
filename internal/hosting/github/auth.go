package github

import "github.com/randalmurphal/taskboard/internal/hosting"

// resolveToken reads the API token from cfg.TokenEnvVar or GITHUB_TOKEN.
func resolveToken(cfg hosting.Config) (string, error) {
	return hosting.TokenFromEnv(hosting.ProviderGitHub, cfg, "GITHUB_TOKEN")
}
