package git

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/hashicorp/go-hclog"
	crssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

const (
	defaultTokenEnv   = "GIT_TOKEN"
	defaultKnownHosts = "~/.ssh/known_hosts"
)

// Authenticator builds the transport auth used for fetch and push.
type Authenticator interface {
	SetupAuth(cfg config.GitClient, logger hclog.Logger) (transport.AuthMethod, error)
	ValidateConfig(cfg config.GitClient) error
}

// SSHKeyAuthenticator provides SSH key-based authentication.
type SSHKeyAuthenticator struct{}

// SSHAgentAuthenticator provides SSH agent-based authentication.
type SSHAgentAuthenticator struct{}

// HTTPAuthenticator provides HTTP basic authentication with a token.
type HTTPAuthenticator struct{}

// SetupAuth configures SSH key authentication.
func (s *SSHKeyAuthenticator) SetupAuth(cfg config.GitClient, logger hclog.Logger) (transport.AuthMethod, error) {
	logger.Debug("setting up SSH key authentication")

	sshKeyPath, err := files.ExpandPath(cfg.SSHKey)
	if err != nil {
		logger.Error("failed to expand SSH key path", "path", cfg.SSHKey, "error", err)
		return nil, err
	}

	auth, err := ssh.NewPublicKeysFromFile("git", sshKeyPath, cfg.SSHKeyPassword)
	if err != nil {
		logger.Error("failed to set up SSH key authentication", "error", err.Error())
		return nil, err
	}
	callback, err := hostKeyCallback(cfg, logger)
	if err != nil {
		return nil, err
	}
	auth.HostKeyCallbackHelper = ssh.HostKeyCallbackHelper{HostKeyCallback: callback}
	return auth, nil
}

// ValidateConfig validates the configuration for SSHKeyAuthenticator.
func (s *SSHKeyAuthenticator) ValidateConfig(cfg config.GitClient) error {
	if cfg.SSHKey == "" {
		return fmt.Errorf("ssh_key is required for ssh-key authentication")
	}
	return nil
}

// SetupAuth configures SSH agent authentication.
func (s *SSHAgentAuthenticator) SetupAuth(cfg config.GitClient, logger hclog.Logger) (transport.AuthMethod, error) {
	logger.Debug("setting up SSH agent authentication")

	auth, err := ssh.NewSSHAgentAuth("git")
	if err != nil {
		logger.Error("failed to set up SSH agent authentication", "error", err)
		return nil, err
	}
	callback, err := hostKeyCallback(cfg, logger)
	if err != nil {
		return nil, err
	}
	auth.HostKeyCallbackHelper = ssh.HostKeyCallbackHelper{HostKeyCallback: callback}
	return auth, nil
}

// ValidateConfig validates the configuration for SSHAgentAuthenticator.
func (s *SSHAgentAuthenticator) ValidateConfig(config.GitClient) error {
	return nil
}

// SetupAuth configures HTTP basic authentication.
func (h *HTTPAuthenticator) SetupAuth(cfg config.GitClient, logger hclog.Logger) (transport.AuthMethod, error) {
	logger.Debug("setting up HTTP authentication")

	return &http.BasicAuth{
		Username: config.SetThen(cfg.Username, "git"),
		Password: config.LookupSecret(cfg.TokenEnv, defaultTokenEnv),
	}, nil
}

// ValidateConfig validates the configuration for HTTPAuthenticator.
func (h *HTTPAuthenticator) ValidateConfig(cfg config.GitClient) error {
	if config.LookupSecret(cfg.TokenEnv, defaultTokenEnv) == "" {
		return fmt.Errorf("a token is required for http authentication (env %q)", config.SetThen(cfg.TokenEnv, defaultTokenEnv))
	}
	return nil
}

// getAuthenticator returns the Authenticator for authType. An empty type means
// the remote needs no credentials (local paths, anonymous http).
func getAuthenticator(authType string) (Authenticator, error) {
	switch authType {
	case "":
		return nil, nil
	case "ssh-key":
		return &SSHKeyAuthenticator{}, nil
	case "ssh-agent":
		return &SSHAgentAuthenticator{}, nil
	case "http":
		return &HTTPAuthenticator{}, nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", authType)
	}
}

// NewAuth resolves git_client into a transport auth method. It returns nil
// when no auth type is configured.
func NewAuth(cfg config.GitClient, logger hclog.Logger) (transport.AuthMethod, error) {
	authenticator, err := getAuthenticator(cfg.AuthType)
	if err != nil {
		logger.Error("unsupported authentication type", "error", err)
		return nil, fmt.Errorf("unsupported authentication type: %w", err)
	}
	if authenticator == nil {
		return nil, nil
	}

	if err := authenticator.ValidateConfig(cfg); err != nil {
		logger.Error("invalid configuration", "error", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	auth, err := authenticator.SetupAuth(cfg, logger)
	if err != nil {
		logger.Error("failed to set up Git authentication", "error", err)
		return nil, fmt.Errorf("failed to set up Git authentication: %w", err)
	}
	return auth, nil
}

// hostKeyCallback verifies SSH host keys against git_client.known_hosts, or
// accepts any key when insecure_tls is set.
func hostKeyCallback(cfg config.GitClient, logger hclog.Logger) (crssh.HostKeyCallback, error) {
	if config.GetBoolValue(cfg, "InsecureTLS", false) {
		logger.Warn("SSH host key verification is disabled")
		return crssh.InsecureIgnoreHostKey(), nil
	}

	path, err := files.ExpandPath(config.SetThen(cfg.KnownHosts, defaultKnownHosts))
	if err != nil {
		return nil, fmt.Errorf("failed to expand known_hosts path: %w", err)
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		logger.Error("failed to load known_hosts", "path", path, "error", err)
		return nil, fmt.Errorf("failed to load known_hosts %q: %w", path, err)
	}
	return callback, nil
}
