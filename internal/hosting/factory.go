package hosting

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultTimeout bounds every tracker request.
const DefaultTimeout = 30 * time.Second

// Config holds tracker configuration.
type Config struct {
	// Provider type: "github", "gitlab", "jira", or "auto" (default).
	// When "auto", the provider is detected from the project's repository URL.
	Provider string `yaml:"provider" json:"provider" mapstructure:"provider"`

	// BaseURL for self-hosted instances (e.g., "https://gitlab.company.com")
	// or the Jira Cloud site. Leave empty to derive it from the project URL.
	BaseURL string `yaml:"base_url" json:"base_url,omitempty" mapstructure:"base_url"`

	// TokenEnvVar overrides the default token environment variable name.
	// Default: GITHUB_TOKEN, GITLAB_TOKEN, or JIRA_API_TOKEN.
	TokenEnvVar string `yaml:"token_env_var" json:"token_env_var,omitempty" mapstructure:"token_env_var"`

	// Email is the Jira account used with the API token.
	Email string `yaml:"email" json:"email,omitempty" mapstructure:"email"`

	// Timeout bounds each request. Zero uses DefaultTimeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty" mapstructure:"timeout"`
}

// RequestTimeout returns the configured timeout or the default.
func (c Config) RequestTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// NewTrackerFunc constructs a tracker for a project repository URL. The
// concrete constructors are registered by the provider packages to avoid
// import cycles.
type NewTrackerFunc func(repoURL string, cfg Config) (Tracker, error)

var (
	registryMu          sync.RWMutex
	trackerConstructors = map[ProviderType]NewTrackerFunc{}
)

// RegisterTracker registers a tracker constructor.
// Called from init() in provider packages (github/, gitlab/, jira/).
func RegisterTracker(providerType ProviderType, constructor NewTrackerFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	trackerConstructors[providerType] = constructor
}

// NewTracker creates a tracker for a project repository URL. If
// cfg.Provider is "auto" or empty, the provider is detected from the URL.
func NewTracker(repoURL string, cfg Config) (Tracker, error) {
	providerType, err := ResolveProviderType(repoURL, cfg)
	if err != nil {
		return nil, err
	}

	registryMu.RLock()
	constructor, ok := trackerConstructors[providerType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no tracker registered for %q (registered: %v)", providerType, registeredTrackers())
	}

	return constructor(repoURL, cfg)
}

// ResolveProviderType determines which provider serves repoURL.
func ResolveProviderType(repoURL string, cfg Config) (ProviderType, error) {
	if cfg.Provider != "" && cfg.Provider != "auto" {
		pt := ProviderType(cfg.Provider)
		if pt != ProviderGitHub && pt != ProviderGitLab && pt != ProviderJira {
			return "", fmt.Errorf("unknown provider %q (supported: github, gitlab, jira)", cfg.Provider)
		}
		return pt, nil
	}

	if repoURL == "" {
		return "", fmt.Errorf("project has no external repository URL")
	}
	detected := DetectProvider(repoURL)
	if detected == ProviderUnknown {
		return "", fmt.Errorf("cannot detect issue tracker from %q (set hosting.provider explicitly in config)", repoURL)
	}
	return detected, nil
}

func registeredTrackers() []ProviderType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	providers := make([]ProviderType, 0, len(trackerConstructors))
	for pt := range trackerConstructors {
		providers = append(providers, pt)
	}
	slices.Sort(providers)
	return providers
}
