package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/httpclient"
)

// default environment variables holding API keys per back end type.
var defaultAPIKeyEnv = map[string]string{
	TypeAnthropic: "ANTHROPIC_API_KEY",
	TypeOpenAI:    "OPENAI_API_KEY",
	TypeGemini:    "GEMINI_API_KEY",
}

// Set is the pair of capabilities used by a run.
type Set struct {
	Architect   Architect
	Implementer Implementer
	closers     []io.Closer
}

// Close releases back end clients.
func (s *Set) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build creates the Architect and Implementer configured in cfg. Roles using the
// same back end type share one Limited so concurrency caps apply per provider.
func Build(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*Set, error) {
	set := &Set{}
	shared := map[string]*Limited{}

	agent := func(role string, p config.Provider) (*Agent, error) {
		opts, err := DecodeOptions(p.Options)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		lim, ok := shared[p.Type]
		if !ok {
			c, err := newCompleter(ctx, cfg, logger, p, opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", role, err)
			}
			if closer, ok := c.(io.Closer); ok {
				set.closers = append(set.closers, closer)
			}
			lim = NewLimited(c, Limits{
				Timeout:           cfg.Remediation.ProviderTimeout,
				MaxConcurrency:    p.MaxConcurrency,
				RequestsPerSecond: p.RequestsPerSecond,
				Burst:             p.Burst,
			})
			shared[p.Type] = lim
		}
		logger.Debug("provider configured", "role", role, "type", p.Type, "model", p.Model)
		return NewAgent(lim, opts, logger.Named(role)), nil
	}

	architect, err := agent("architect", cfg.Providers.Architect)
	if err != nil {
		set.Close()
		return nil, err
	}
	implementer, err := agent("implementer", cfg.Providers.Implementer)
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Architect = architect
	set.Implementer = implementer
	return set, nil
}

func newCompleter(ctx context.Context, cfg *config.Config, logger hclog.Logger, p config.Provider, opts Options) (Completer, error) {
	apiKey := config.LookupSecret(p.APIKeyEnv, defaultAPIKeyEnv[p.Type])
	// The call deadline comes from Limited, not from the transport.
	client := httpclient.InitializeSingleShotClient(logger, cfg).SetTimeout(0)
	switch p.Type {
	case TypeAnthropic:
		return NewAnthropic(client, p.BaseURL, apiKey, p.Model, opts)
	case TypeOpenAI:
		return NewOpenAI(client, p.BaseURL, apiKey, p.Model, opts)
	case TypeGemini:
		return NewGemini(ctx, p.BaseURL, apiKey, p.Model)
	default:
		return nil, fmt.Errorf("unknown provider type %q", p.Type)
	}
}
