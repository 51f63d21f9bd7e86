package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied after validation. Builds on this job are known to never
// finish in under half an hour, hence the generous poll floor.
const (
	DefaultRemote           = "origin"
	DefaultBranch           = "master"
	DefaultProvider         = "local"
	DefaultUsageType        = "QA"
	DefaultQueueInterval    = 10 * time.Second
	DefaultQueueWait        = 2 * time.Hour
	DefaultMinBeforePoll    = 30 * time.Minute
	DefaultPollInterval     = 15 * time.Minute
	DefaultMaxWait          = 3 * time.Hour
	DefaultTransientRetries = 3
	DefaultDBPath           = "./automation.db"
	DefaultServerHost       = "127.0.0.1"
	DefaultServerPort       = 5000
)

// Environment overrides for credentials so tokens can be kept out of the file.
const (
	EnvJenkinsToken = "GLJT_JENKINS_TOKEN"
	EnvGitHubToken  = "GLJT_GITHUB_TOKEN"
)

// ForbiddenTokens are placeholder values that must never be accepted as
// credentials.
var ForbiddenTokens = map[string]bool{
	"replace-with-token": true,
	"changeme":           true,
	"secret":             true,
	"password":           true,
	"api-token":          true,
}

// Load reads, validates and defaults the configuration from a YAML file.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Credentials may come from the environment instead of the file
	if token := os.Getenv(EnvJenkinsToken); token != "" {
		cfg.Jenkins.APIToken = token
	}
	if token := os.Getenv(EnvGitHubToken); token != "" {
		cfg.Repo.GitHub.Token = token
	}

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(errs, "\n"))
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Validate checks the configuration and returns a list of human-readable
// problems. An empty list means the configuration is usable.
func Validate(cfg *Config) []string {
	var errs []string

	// Jenkins connection
	if cfg.Jenkins.BaseURL == "" {
		errs = append(errs, "  - jenkins: missing required 'base_url' field")
	} else if u, err := url.Parse(cfg.Jenkins.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("  - jenkins: base_url is not a valid URL: '%s'", cfg.Jenkins.BaseURL))
	} else if u.Scheme != "https" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		errs = append(errs, fmt.Sprintf("  - jenkins: base_url must use https, got '%s'", u.Scheme))
	}

	if cfg.Jenkins.Username == "" {
		errs = append(errs, "  - jenkins: missing required 'username' field")
	}

	if cfg.Jenkins.APIToken == "" {
		errs = append(errs, fmt.Sprintf("  - jenkins: missing required 'api_token' field (or set %s)", EnvJenkinsToken))
	} else if ForbiddenTokens[strings.ToLower(cfg.Jenkins.APIToken)] {
		errs = append(errs, "  - jenkins: api_token appears to be a placeholder value, replace with a real token")
	}

	// TEM submission
	if cfg.TEM.BaseURL == "" {
		errs = append(errs, "  - tem: missing required 'base_url' field")
	} else if u, err := url.Parse(cfg.TEM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("  - tem: base_url is not a valid URL: '%s'", cfg.TEM.BaseURL))
	}

	if cfg.TEM.TestPlanName == "" {
		errs = append(errs, "  - tem: missing required 'test_plan_name' field")
	}

	if cfg.TEM.NotifyEmail == "" {
		errs = append(errs, "  - tem: missing required 'notify_email' field")
	} else if !strings.Contains(cfg.TEM.NotifyEmail, "@") {
		errs = append(errs, fmt.Sprintf("  - tem: notify_email does not look like an email address: '%s'", cfg.TEM.NotifyEmail))
	}

	// Repository
	switch cfg.Repo.Provider {
	case "", "local":
		if cfg.Repo.Path == "" {
			errs = append(errs, "  - repo: missing required 'path' field for the local provider")
		}
	case "github":
		if cfg.Repo.GitHub.OwnerRepo == "" {
			errs = append(errs, "  - repo: missing required 'github.owner_repo' field for the github provider")
		} else if parts := strings.Split(cfg.Repo.GitHub.OwnerRepo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			errs = append(errs, fmt.Sprintf("  - repo: github.owner_repo must be 'owner/repo', got '%s'", cfg.Repo.GitHub.OwnerRepo))
		}
	default:
		errs = append(errs, fmt.Sprintf("  - repo: provider must be 'local' or 'github', got '%s'", cfg.Repo.Provider))
	}

	// Polling policy: negative values are always wrong, zero means default
	if cfg.Poll.Interval < 0 {
		errs = append(errs, "  - poll: interval must be positive")
	}
	if cfg.Poll.MinBeforePoll < 0 {
		errs = append(errs, "  - poll: min_before_poll must not be negative")
	}
	if cfg.Poll.MaxWait < 0 {
		errs = append(errs, "  - poll: max_wait must be positive")
	}
	if cfg.Poll.TransientRetries < 0 {
		errs = append(errs, "  - poll: transient_retries must not be negative")
	}
	if cfg.Poll.MaxWait > 0 && cfg.Poll.MinBeforePoll > cfg.Poll.MaxWait {
		errs = append(errs, "  - poll: min_before_poll must not exceed max_wait")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("  - server: port out of range: %d", cfg.Server.Port))
	}

	return errs
}

func applyDefaults(cfg *Config) {
	if cfg.Repo.Remote == "" {
		cfg.Repo.Remote = DefaultRemote
	}
	if cfg.Repo.Branch == "" {
		cfg.Repo.Branch = DefaultBranch
	}
	if cfg.Repo.Provider == "" {
		cfg.Repo.Provider = DefaultProvider
	}
	if cfg.TEM.UsageType == "" {
		cfg.TEM.UsageType = DefaultUsageType
	}
	if cfg.Poll.QueueInterval == 0 {
		cfg.Poll.QueueInterval = Duration(DefaultQueueInterval)
	}
	if cfg.Poll.QueueWait == 0 {
		cfg.Poll.QueueWait = Duration(DefaultQueueWait)
	}
	if cfg.Poll.MinBeforePoll == 0 {
		cfg.Poll.MinBeforePoll = Duration(DefaultMinBeforePoll)
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(DefaultPollInterval)
	}
	if cfg.Poll.MaxWait == 0 {
		cfg.Poll.MaxWait = Duration(DefaultMaxWait)
	}
	if cfg.Poll.TransientRetries == 0 {
		cfg.Poll.TransientRetries = DefaultTransientRetries
	}
	if cfg.Tracker.DBPath == "" {
		cfg.Tracker.DBPath = DefaultDBPath
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
}
