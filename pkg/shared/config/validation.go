package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/scan-io-git/autofix/pkg/shared/files"
)

var (
	severityLevels = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
	providerTypes  = map[string]bool{"anthropic": true, "openai": true, "gemini": true}
	rescanTypes    = map[string]bool{"command": true, "plugin": true, "pattern": true}
	vcsProviders   = map[string]bool{"none": true, "github": true, "gitlab": true, "bitbucket": true}
	gitAuthTypes   = map[string]bool{"": true, "ssh-key": true, "ssh-agent": true, "http": true}
)

// ValidateConfig checks if the global configurations have valid values.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := ValidateAutofixConfig(cfg); err != nil {
		return fmt.Errorf("YAML global config: autofix directive is invalid: %w", err)
	}
	if err := ValidateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	if err := ValidateGitConfig(&cfg.GitClient); err != nil {
		return fmt.Errorf("YAML global config: git_client directive is invalid: %w", err)
	}
	if err := ValidateRemediationConfig(&cfg.Remediation); err != nil {
		return fmt.Errorf("YAML global config: remediation directive is invalid: %w", err)
	}
	if err := ValidateProviderConfig(&cfg.Providers.Architect); err != nil {
		return fmt.Errorf("YAML global config: providers.architect directive is invalid: %w", err)
	}
	if err := ValidateProviderConfig(&cfg.Providers.Implementer); err != nil {
		return fmt.Errorf("YAML global config: providers.implementer directive is invalid: %w", err)
	}
	if err := ValidateValidationConfig(&cfg.Validation); err != nil {
		return fmt.Errorf("YAML global config: validation directive is invalid: %w", err)
	}
	if err := ValidateVCSConfig(&cfg.VCS); err != nil {
		return fmt.Errorf("YAML global config: vcs directive is invalid: %w", err)
	}
	for i, s := range cfg.Scanners {
		if s.Name == "" || (len(s.Command) == 0) == (s.Plugin == "") {
			return fmt.Errorf("YAML global config: scanners[%d] requires a name and either a command or a plugin", i)
		}
	}
	return nil
}

// ValidateAutofixConfig resolves the working folders and creates them.
func ValidateAutofixConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("autofix configuration is nil")
	}
	if err := updateFolder(&cfg.Autofix.HomeFolder, EnvHome, GetHome(cfg)); err != nil {
		return fmt.Errorf("failed to update home folder: %w", err)
	}
	if err := updateFolder(&cfg.Autofix.PluginsFolder, EnvPlugins, GetPluginsFolder(cfg)); err != nil {
		return fmt.Errorf("failed to update plugins folder: %w", err)
	}
	if err := updateFolder(&cfg.Autofix.TempFolder, EnvTemp, GetTempFolder(cfg)); err != nil {
		return fmt.Errorf("failed to update temp folder: %w", err)
	}
	return nil
}

// ValidateRemediationConfig checks the fix loop settings.
func ValidateRemediationConfig(r *Remediation) error {
	if r == nil {
		return fmt.Errorf("remediation configuration is nil")
	}
	if !severityLevels[strings.ToLower(r.SeverityThreshold)] {
		return fmt.Errorf("severity_threshold must be one of low, medium, high, critical: %q", r.SeverityThreshold)
	}
	if r.MaxRounds <= 0 {
		return fmt.Errorf("max_rounds must be a positive integer: %d", r.MaxRounds)
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer: %d", r.Concurrency)
	}
	if r.RetryBudget() < 0 {
		return fmt.Errorf("provider_retry_budget cannot be negative: %d", r.RetryBudget())
	}
	if r.FatalErrorThreshold < 0 {
		return fmt.Errorf("fatal_error_threshold cannot be negative: %d", r.FatalErrorThreshold)
	}
	if r.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff.multiplier must be at least 1: %v", r.Backoff.Multiplier)
	}

	durations := map[string]struct {
		value time.Duration
		max   time.Duration
	}{
		"run_timeout":      {r.RunTimeout, 24 * time.Hour},
		"provider_timeout": {r.ProviderTimeout, 1 * time.Hour},
		"backoff.initial":  {r.Backoff.Initial, 10 * time.Minute},
		"backoff.max":      {r.Backoff.Max, 1 * time.Hour},
	}
	for name, d := range durations {
		if err := validateDuration(d.value, name, d.max); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProviderConfig checks a single AI back end definition.
func ValidateProviderConfig(p *Provider) error {
	if p == nil {
		return fmt.Errorf("provider configuration is nil")
	}
	if !providerTypes[p.Type] {
		return fmt.Errorf("unsupported provider type %q", p.Type)
	}
	if p.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative: %d", p.MaxConcurrency)
	}
	if p.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative: %v", p.RequestsPerSecond)
	}
	if p.BaseURL != "" {
		if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
	}
	return nil
}

// ValidateValidationConfig checks the validation gate settings.
func ValidateValidationConfig(v *Validation) error {
	if v == nil {
		return fmt.Errorf("validation configuration is nil")
	}
	if !rescanTypes[v.Rescan.Type] {
		return fmt.Errorf("unsupported rescan type %q", v.Rescan.Type)
	}
	switch v.Rescan.Type {
	case "command":
		if len(v.Rescan.Command) == 0 {
			return fmt.Errorf("rescan.command is required for the command rescanner")
		}
	case "plugin":
		if v.Rescan.Plugin == "" {
			return fmt.Errorf("rescan.plugin is required for the plugin rescanner")
		}
	}
	return validateDuration(v.Timeout, "timeout", 2*time.Hour)
}

// ValidateVCSConfig checks the review request settings.
func ValidateVCSConfig(v *VCS) error {
	if v == nil {
		return fmt.Errorf("vcs configuration is nil")
	}
	if !vcsProviders[v.Provider] {
		return fmt.Errorf("unsupported vcs provider %q", v.Provider)
	}
	if v.Provider != "none" && v.Repository == "" {
		return fmt.Errorf("repository is required for the %s provider", v.Provider)
	}
	return nil
}

// ValidateGitConfig checks if the Git configurations have valid values.
func ValidateGitConfig(gitConfig *GitClient) error {
	if gitConfig == nil {
		return fmt.Errorf("git configuration is nil")
	}
	if !gitAuthTypes[gitConfig.AuthType] {
		return fmt.Errorf("unsupported auth_type %q", gitConfig.AuthType)
	}
	if gitConfig.AuthType == "ssh-key" && gitConfig.SSHKey == "" {
		return fmt.Errorf("ssh_key is required for the ssh-key auth type")
	}
	return validateDuration(gitConfig.Timeout, "timeout", 1*time.Hour)
}

// ValidateHTTPConfig checks if the HTTP configurations have valid values.
func ValidateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}

	durations := map[string]time.Duration{
		"retry_max_wait_time": httpConfig.RetryMaxWaitTime,
		"retry_wait_time":     httpConfig.RetryWaitTime,
		"timeout":             httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 100*time.Second); err != nil {
			return err
		}
	}

	return validateProxy(&httpConfig.Proxy)
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateProxy checks if the given Proxy settings are valid.
func validateProxy(proxy *Proxy) error {
	if proxy == nil {
		return fmt.Errorf("proxy configuration is nil")
	}

	// If host or port is not set, skip further validation
	if proxy.Host == "" || proxy.Port == 0 {
		return nil
	}

	if !strings.Contains(proxy.Host, "://") {
		proxy.Host = "http://" + proxy.Host
	}
	proxy.Host = strings.TrimRight(proxy.Host, "/")
	if _, err := url.Parse(proxy.Host); err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}

	if proxy.Port < 1 || proxy.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", proxy.Port)
	}
	return nil
}

// updateFolder resolves a folder from its env variable or fallback, expands and creates it.
func updateFolder(folder *string, envVar, fallback string) error {
	if envVarValue := os.Getenv(envVar); envVarValue != "" {
		*folder = envVarValue
	} else if *folder == "" {
		*folder = fallback
	}

	expanded, err := files.ExpandPath(*folder)
	if err != nil {
		return fmt.Errorf("failed to expand path %q: %w", *folder, err)
	}
	*folder = expanded

	if err := files.CreateFolderIfNotExists(expanded); err != nil {
		return fmt.Errorf("failed to create folder %q: %w", expanded, err)
	}
	return nil
}
