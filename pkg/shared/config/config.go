package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Config is the root of the autofix YAML configuration.
type Config struct {
	Autofix     Autofix     `yaml:"autofix"`
	Logger      Logger      `yaml:"logger"`
	HTTPClient  HTTPClient  `yaml:"http_client"`
	GitClient   GitClient   `yaml:"git_client"`
	Remediation Remediation `yaml:"remediation"`
	Providers   Providers   `yaml:"providers"`
	Validation  Validation  `yaml:"validation"`
	Scanners    []Scanner   `yaml:"scanners"`
	VCS         VCS         `yaml:"vcs"`
	Cache       Cache       `yaml:"cache"`
	Reports     Reports     `yaml:"reports"`
	Notify      Notify      `yaml:"notify"`
	Metrics     Metrics     `yaml:"metrics"`
}

// Autofix holds the working folders of the tool.
type Autofix struct {
	HomeFolder    string `yaml:"home_folder"`
	PluginsFolder string `yaml:"plugins_folder"`
	TempFolder    string `yaml:"temp_folder"`
}

type Logger struct {
	Level string `yaml:"level"`
}

type HTTPClient struct {
	Debug            *bool           `yaml:"debug"`
	RetryCount       int             `yaml:"retry_count"`
	RetryWaitTime    time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration   `yaml:"retry_max_wait_time"`
	Timeout          time.Duration   `yaml:"timeout"`
	TLSClientConfig  TLSClientConfig `yaml:"tls_client_config"`
	Proxy            Proxy           `yaml:"proxy"`
}

type TLSClientConfig struct {
	Verify *bool `yaml:"verify"`
}

type Proxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GitClient configures the local repository host used for the fix branch.
type GitClient struct {
	Timeout        time.Duration `yaml:"timeout"`
	AuthType       string        `yaml:"auth_type"`
	SSHKey         string        `yaml:"ssh_key"`
	SSHKeyPassword string        `yaml:"ssh_key_password"`
	KnownHosts     string        `yaml:"known_hosts"`
	Username       string        `yaml:"username"`
	TokenEnv       string        `yaml:"token_env"`
	Remote         string        `yaml:"remote"`
	AuthorName     string        `yaml:"author_name"`
	AuthorEmail    string        `yaml:"author_email"`
	InsecureTLS    *bool         `yaml:"insecure_tls"`
}

// Remediation holds the knobs of the fix loop and the pipeline controller.
type Remediation struct {
	SeverityThreshold   string        `yaml:"severity_threshold"`
	MaxRounds           int           `yaml:"max_rounds"`
	Concurrency         int           `yaml:"concurrency"`
	RunTimeout          time.Duration `yaml:"run_timeout"`
	ProviderTimeout     time.Duration `yaml:"provider_timeout"`
	ProviderRetryBudget *int          `yaml:"provider_retry_budget"`
	Backoff             Backoff       `yaml:"backoff"`
	FatalErrorThreshold int           `yaml:"fatal_error_threshold"`
	Rule                string        `yaml:"rule"`
}

type Backoff struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
}

type Providers struct {
	Architect   Provider `yaml:"architect"`
	Implementer Provider `yaml:"implementer"`
}

// Provider selects and tunes one AI back end. Options are back end specific
// and decoded by the provider package.
type Provider struct {
	Type              string                 `yaml:"type"`
	Model             string                 `yaml:"model"`
	APIKeyEnv         string                 `yaml:"api_key_env"`
	BaseURL           string                 `yaml:"base_url"`
	MaxConcurrency    int                    `yaml:"max_concurrency"`
	RequestsPerSecond float64                `yaml:"requests_per_second"`
	Burst             int                    `yaml:"burst"`
	Options           map[string]interface{} `yaml:"options"`
}

type Validation struct {
	SourceRoot    string        `yaml:"source_root"`
	TestCommand   []string      `yaml:"test_command"`
	Timeout       time.Duration `yaml:"timeout"`
	KeepWorkspace *bool         `yaml:"keep_workspace"`
	Rescan        Rescan        `yaml:"rescan"`
}

// Rescan configures how a patched copy is checked for the original vulnerability.
type Rescan struct {
	Type     string              `yaml:"type"`
	Command  []string            `yaml:"command"`
	Report   string              `yaml:"report"`
	Format   string              `yaml:"format"`
	Plugin   string              `yaml:"plugin"`
	Patterns map[string][]string `yaml:"patterns"`
	Timeout  time.Duration       `yaml:"timeout"`
}

// Scanner is an external scanner producing a report file, either a command
// or a scanner plugin.
type Scanner struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Plugin  string   `yaml:"plugin"`
	Args    []string `yaml:"args"`
	Report  string   `yaml:"report"`
	Format  string   `yaml:"format"`
}

type VCS struct {
	Provider   string   `yaml:"provider"`
	URL        string   `yaml:"url"`
	APIURL     string   `yaml:"api_url"`
	Repository string   `yaml:"repository"`
	BaseBranch string   `yaml:"base_branch"`
	TokenEnv   string   `yaml:"token_env"`
	Username   string   `yaml:"username"`
	Push       *bool    `yaml:"push"`
	PRTitle    string   `yaml:"pr_title"`
	Labels     []string `yaml:"labels"`
}

type Cache struct {
	Folder   string        `yaml:"folder"`
	MaxAge   time.Duration `yaml:"max_age"`
	Disabled bool          `yaml:"disabled"`
}

type Reports struct {
	Folder    string   `yaml:"folder"`
	Changelog string   `yaml:"changelog"`
	Formats   []string `yaml:"formats"`
}

type Notify struct {
	SlackWebhookEnv string `yaml:"slack_webhook_env"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	d.SetStrict(true)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// LoadConfig reads the config file and fills unset values with defaults.
// A missing file at the default location yields a default configuration.
func LoadConfig(configPath string, required bool) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(configPath); err != nil && os.IsNotExist(err) && !required {
		ApplyDefaults(cfg)
		return cfg, nil
	}

	if err := LoadYAML(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", configPath, err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}
