package hosting

import (
	"fmt"
	"os"
	"strings"
)

// TokenFromEnv reads an API token for provider. A configured TokenEnvVar is
// the only variable consulted; otherwise defaults are tried in order. A
// missing token wraps ErrAuthFailed.
func TokenFromEnv(provider ProviderType, cfg Config, defaults ...string) (string, error) {
	vars := defaults
	if cfg.TokenEnvVar != "" {
		vars = []string{cfg.TokenEnvVar}
	}
	for _, name := range vars {
		if token := strings.TrimSpace(os.Getenv(name)); token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("%s token not found (set %s): %w", provider, strings.Join(vars, " or "), ErrAuthFailed)
}
