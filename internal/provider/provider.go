package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

// Plan is the Architect's strategy for one round. Abandon means the finding
// cannot or should not be fixed automatically.
type Plan struct {
	Summary string   `json:"summary"`
	Steps   []string `json:"steps,omitempty"`
	Files   []string `json:"files,omitempty"`
	Abandon bool     `json:"abandon,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// TestFile is a test proving the fix, written into the validation workspace.
type TestFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Candidate is one proposed fix: a unified diff plus the test exercising it.
type Candidate struct {
	Patch string   `json:"patch"`
	Test  TestFile `json:"test"`
}

// PriorAttempt is the feedback of a rejected round handed to the next analysis.
type PriorAttempt struct {
	Round    int    `json:"round"`
	Plan     Plan   `json:"plan"`
	Feedback string `json:"feedback"`
}

// Architect produces a fix plan for a finding.
type Architect interface {
	Analyze(ctx context.Context, f findings.Finding, prior []PriorAttempt) (Plan, error)
}

// Implementer turns a plan into a patch and a test.
type Implementer interface {
	Implement(ctx context.Context, f findings.Finding, plan Plan) (Candidate, error)
}

// Request is a single prompt sent to a model.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer is a model back end. Failures caused by the back end are
// returned as *errors.ProviderError.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Agent implements both Architect and Implementer on top of a Completer.
type Agent struct {
	completer Completer
	opts      Options
	logger    hclog.Logger
}

// NewAgent creates an Agent using c for every call.
func NewAgent(c Completer, opts Options, logger hclog.Logger) *Agent {
	return &Agent{completer: c, opts: opts, logger: logger}
}

// Analyze asks the model for a plan.
func (a *Agent) Analyze(ctx context.Context, f findings.Finding, prior []PriorAttempt) (Plan, error) {
	prompt, err := RenderArchitectPrompt(f, prior)
	if err != nil {
		return Plan{}, err
	}

	text, err := a.completer.Complete(ctx, a.request(architectSystem, prompt))
	if err != nil {
		return Plan{}, err
	}

	plan, err := ParsePlan(text)
	if err != nil {
		a.logger.Debug("unparsable plan", "provider", a.completer.Name(), "finding", f.ShortID(), "error", err)
		return Plan{}, errors.NewProviderError(errors.ProviderMalformedResponse, a.completer.Name(), err)
	}
	a.logger.Debug("plan received", "provider", a.completer.Name(), "finding", f.ShortID(), "abandon", plan.Abandon)
	return plan, nil
}

// Implement asks the model for a patch and a test following plan.
func (a *Agent) Implement(ctx context.Context, f findings.Finding, plan Plan) (Candidate, error) {
	prompt, err := RenderImplementerPrompt(f, plan)
	if err != nil {
		return Candidate{}, err
	}

	text, err := a.completer.Complete(ctx, a.request(implementerSystem, prompt))
	if err != nil {
		return Candidate{}, err
	}

	candidate, err := ParseCandidate(text)
	if err != nil {
		a.logger.Debug("unparsable candidate", "provider", a.completer.Name(), "finding", f.ShortID(), "error", err)
		return Candidate{}, errors.NewProviderError(errors.ProviderMalformedResponse, a.completer.Name(), err)
	}
	return candidate, nil
}

func (a *Agent) request(system, prompt string) Request {
	return Request{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	}
}

// String identifies the agent in logs.
func (a *Agent) String() string {
	return fmt.Sprintf("agent(%s)", a.completer.Name())
}
