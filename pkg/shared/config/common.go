package config

import (
	"crypto/tls"
	"time"
)

const (
	DefaultConfigFile   = "config.yml"
	DefaultBaseBranch   = "main"
	DefaultPRTitle      = "Security: AI-Reviewed Security Fixes"
	DefaultReportFolder = "security_reports"
	DefaultChangelog    = "CHANGELOG.md"

	EnvConfig   = "AUTOFIX_CONFIG"
	EnvHome     = "AUTOFIX_HOME"
	EnvLogLevel = "AUTOFIX_LOG_LEVEL"
	EnvPlugins  = "AUTOFIX_PLUGINS_FOLDER"
	EnvTemp     = "AUTOFIX_TEMP_FOLDER"
	EnvSlack    = "SLACK_WEBHOOK"
)

// BaseHTTPConfig holds common HTTP client configuration settings.
type BaseHTTPConfig struct {
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	Timeout          time.Duration
	TLSClientConfig  *tls.Config
	Proxy            string
}

// RestyHTTPClientConfig holds additional configuration settings for the resty http client.
type RestyHTTPClientConfig struct {
	BaseHTTPConfig
	Debug bool
}

// DefaultHTTPConfig is the base configuration applicable to all HTTP clients.
func DefaultHTTPConfig() BaseHTTPConfig {
	return BaseHTTPConfig{
		RetryCount:       3,
		RetryWaitTime:    1 * time.Second,
		RetryMaxWaitTime: 5 * time.Second,
		Timeout:          30 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		Proxy: "",
	}
}

// DefaultRestyConfig returns the http config used for resty clients.
func DefaultRestyConfig() RestyHTTPClientConfig {
	return RestyHTTPClientConfig{
		BaseHTTPConfig: DefaultHTTPConfig(),
		Debug:          false,
	}
}

// DefaultRemediation returns the fix loop defaults.
func DefaultRemediation() Remediation {
	budget := 2
	return Remediation{
		SeverityThreshold:   "critical",
		MaxRounds:           3,
		Concurrency:         3,
		RunTimeout:          30 * time.Minute,
		ProviderTimeout:     2 * time.Minute,
		ProviderRetryBudget: &budget,
		Backoff: Backoff{
			Initial:    1 * time.Second,
			Max:        30 * time.Second,
			Multiplier: 2,
		},
	}
}

// ApplyDefaults fills every unset value of cfg.
func ApplyDefaults(cfg *Config) {
	d := DefaultRemediation()
	r := &cfg.Remediation
	r.SeverityThreshold = SetThen(r.SeverityThreshold, d.SeverityThreshold)
	r.MaxRounds = SetThen(r.MaxRounds, d.MaxRounds)
	r.Concurrency = SetThen(r.Concurrency, d.Concurrency)
	r.RunTimeout = SetThen(r.RunTimeout, d.RunTimeout)
	r.ProviderTimeout = SetThen(r.ProviderTimeout, d.ProviderTimeout)
	if r.ProviderRetryBudget == nil {
		r.ProviderRetryBudget = d.ProviderRetryBudget
	}
	r.Backoff.Initial = SetThen(r.Backoff.Initial, d.Backoff.Initial)
	r.Backoff.Max = SetThen(r.Backoff.Max, d.Backoff.Max)
	r.Backoff.Multiplier = SetThen(r.Backoff.Multiplier, d.Backoff.Multiplier)

	cfg.Providers.Architect.Type = SetThen(cfg.Providers.Architect.Type, "anthropic")
	cfg.Providers.Implementer.Type = SetThen(cfg.Providers.Implementer.Type, cfg.Providers.Architect.Type)

	cfg.Validation.SourceRoot = SetThen(cfg.Validation.SourceRoot, ".")
	cfg.Validation.Timeout = SetThen(cfg.Validation.Timeout, 10*time.Minute)
	cfg.Validation.Rescan.Type = SetThen(cfg.Validation.Rescan.Type, "pattern")

	cfg.GitClient.Timeout = SetThen(cfg.GitClient.Timeout, 10*time.Minute)
	cfg.GitClient.Remote = SetThen(cfg.GitClient.Remote, "origin")
	cfg.GitClient.AuthorName = SetThen(cfg.GitClient.AuthorName, "autofix")
	cfg.GitClient.AuthorEmail = SetThen(cfg.GitClient.AuthorEmail, "autofix@localhost")

	cfg.VCS.Provider = SetThen(cfg.VCS.Provider, "none")
	cfg.VCS.BaseBranch = SetThen(cfg.VCS.BaseBranch, DefaultBaseBranch)
	cfg.VCS.PRTitle = SetThen(cfg.VCS.PRTitle, DefaultPRTitle)

	cfg.Cache.MaxAge = SetThen(cfg.Cache.MaxAge, 30*24*time.Hour)
	cfg.Reports.Folder = SetThen(cfg.Reports.Folder, DefaultReportFolder)
	cfg.Reports.Changelog = SetThen(cfg.Reports.Changelog, DefaultChangelog)
	cfg.Notify.SlackWebhookEnv = SetThen(cfg.Notify.SlackWebhookEnv, EnvSlack)
}

// RetryBudget returns the configured provider retry budget, zero when unset.
func (r Remediation) RetryBudget() int {
	if r.ProviderRetryBudget == nil {
		return 0
	}
	return *r.ProviderRetryBudget
}
