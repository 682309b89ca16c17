package gitlab

import "github.com/randalmurphal/taskboard/internal/hosting"

// resolveToken reads the API token from cfg.TokenEnvVar, GITLAB_TOKEN or
// GITLAB_PRIVATE_TOKEN.
func resolveToken(cfg hosting.Config) (string, error) {
	return hosting.TokenFromEnv(hosting.ProviderGitLab, cfg, "GITLAB_TOKEN", "GITLAB_PRIVATE_TOKEN")
}
