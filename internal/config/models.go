package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "15m" or "2h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// JenkinsConfig holds the connection details for the Jenkins job.
// BaseURL is the full job URL, e.g. "https://jenkins.example.com/job/csf-integration/".
type JenkinsConfig struct {
	BaseURL    string            `yaml:"base_url"`
	Username   string            `yaml:"username"`
	APIToken   string            `yaml:"api_token"`
	JobName    string            `yaml:"job_name"`
	Parameters map[string]string `yaml:"parameters"`
}

// TEMConfig holds the details for the test-execution manager submission.
type TEMConfig struct {
	BaseURL       string `yaml:"base_url"`
	TestPlanName  string `yaml:"test_plan_name"`
	NotifyEmail   string `yaml:"notify_email"`
	ScriptBranch  string `yaml:"script_branch"`
	ScriptVersion string `yaml:"script_version"`
	UsageType     string `yaml:"usage_type"`
	Headless      *bool  `yaml:"headless"`
}

// GitHubConfig configures the GitHub-backed commit source.
type GitHubConfig struct {
	OwnerRepo string `yaml:"owner_repo"`
	Token     string `yaml:"token"`
}

// RepoConfig identifies the watched repository and how to read its latest commit.
// Provider is either "local" (read the fetched remote-tracking ref with go-git)
// or "github" (query the GitHub API).
type RepoConfig struct {
	Path                string       `yaml:"path"`
	Remote              string       `yaml:"remote"`
	Branch              string       `yaml:"branch"`
	Provider            string       `yaml:"provider"`
	ExpectedIdentifiers []string     `yaml:"expected_identifiers"`
	GitHub              GitHubConfig `yaml:"github"`
}

// PollConfig is the polling policy for the build lifecycle.
type PollConfig struct {
	QueueInterval    Duration `yaml:"queue_interval"`
	QueueWait        Duration `yaml:"queue_wait"`
	MinBeforePoll    Duration `yaml:"min_before_poll"`
	Interval         Duration `yaml:"interval"`
	MaxWait          Duration `yaml:"max_wait"`
	TransientRetries int      `yaml:"transient_retries"`
}

// TrackerConfig locates the SQLite database holding the commit marker and run history.
type TrackerConfig struct {
	DBPath string `yaml:"db_path"`
}

// NotifyConfig configures the optional local command executed after a
// successful pipeline run.
type NotifyConfig struct {
	OnComplete string `yaml:"on_complete"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the root configuration structure.
type Config struct {
	Jenkins JenkinsConfig `yaml:"jenkins"`
	TEM     TEMConfig     `yaml:"tem"`
	Repo    RepoConfig    `yaml:"repo"`
	Poll    PollConfig    `yaml:"poll"`
	Tracker TrackerConfig `yaml:"tracker"`
	Notify  NotifyConfig  `yaml:"notify"`
	Server  ServerConfig  `yaml:"server"`
}

// Headless reports whether the TEM browser should run headless (default true).
func (t TEMConfig) HeadlessEnabled() bool {
	if t.Headless == nil {
		return true
	}
	return *t.Headless
}
