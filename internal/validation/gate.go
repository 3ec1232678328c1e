package validation

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/execx"
	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/patch"
	"github.com/scan-io-git/autofix/internal/provider"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

// maxTestOutput bounds the test output kept in a verdict and fed back to the Architect.
const maxTestOutput = 16 * 1024

// RescanResult tells whether the original vulnerability is still detected.
// Unverified means no check applied to the finding, so its absence proves nothing.
type RescanResult struct {
	Vulnerable bool     `json:"vulnerable"`
	Unverified bool     `json:"unverified,omitempty"`
	Matches    []string `json:"matches,omitempty"`
}

// Verdict is the outcome of validating one candidate.
type Verdict struct {
	Passed     bool         `json:"passed"`
	TestOutput string       `json:"test_output,omitempty"`
	Rescan     RescanResult `json:"rescan"`
	Reason     string       `json:"reason,omitempty"`
}

// Feedback renders the verdict as input for the next analysis round.
func (v Verdict) Feedback() string {
	var b strings.Builder
	b.WriteString(v.Reason)
	if v.TestOutput != "" {
		b.WriteString("\nTest output:\n")
		b.WriteString(v.TestOutput)
	}
	if v.Rescan.Vulnerable {
		b.WriteString("\nThe vulnerability is still detected")
		if len(v.Rescan.Matches) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(v.Rescan.Matches, "; "))
		}
	}
	if v.Rescan.Unverified {
		b.WriteString("\nThe configured rescanner has no check for this finding")
	}
	return b.String()
}

// Rescanner checks a patched workspace for the vulnerability of a finding.
type Rescanner interface {
	Rescan(ctx context.Context, workspace string, f findings.Finding) (RescanResult, error)
}

// SourceGuard keeps writers off the source tree while fn reads it.
type SourceGuard interface {
	ReadSource(fn func() error) error
}

// Validator is the contract of the validation gate used by the orchestrator.
type Validator interface {
	Validate(ctx context.Context, f findings.Finding, c provider.Candidate) (Verdict, error)
}

// Gate validates candidates in throwaway copies of the source tree.
type Gate struct {
	logger        hclog.Logger
	runner        execx.Runner
	rescanner     Rescanner
	sourceRoot    string
	tempFolder    string
	testCommand   []string
	timeout       time.Duration
	rescanTimeout time.Duration
	keepWorkspace bool
	guard         SourceGuard
}

// NewGate creates a Gate from the validation section of cfg.
func NewGate(cfg *config.Config, logger hclog.Logger, runner execx.Runner, rescanner Rescanner) (*Gate, error) {
	root, err := files.ExpandPath(cfg.Validation.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid source root: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source root %q is not a directory", root)
	}
	return &Gate{
		logger:        logger,
		runner:        runner,
		rescanner:     rescanner,
		sourceRoot:    root,
		tempFolder:    config.GetTempFolder(cfg),
		testCommand:   cfg.Validation.TestCommand,
		timeout:       cfg.Validation.Timeout,
		rescanTimeout: config.SetThen(cfg.Validation.Rescan.Timeout, cfg.Validation.Timeout),
		keepWorkspace: config.GetBoolValue(cfg.Validation, "KeepWorkspace", false),
	}, nil
}

// SetSourceGuard makes workspace copies wait for writers of the source tree.
func (g *Gate) SetSourceGuard(guard SourceGuard) {
	g.guard = guard
}

// Validate applies c to an isolated copy of the source tree, runs its test and
// rescans the result. The source tree itself is never modified. A returned
// error means validation could not be carried out at all.
func (g *Gate) Validate(ctx context.Context, f findings.Finding, c provider.Candidate) (Verdict, error) {
	workspace, err := g.prepareWorkspace(f)
	if err != nil {
		return Verdict{}, err
	}
	if g.keepWorkspace {
		g.logger.Info("keeping validation workspace", "finding", f.ShortID(), "workspace", workspace)
	} else {
		defer os.RemoveAll(workspace)
	}

	if _, err := patch.Apply(workspace, c.Patch); err != nil {
		g.logger.Debug("patch rejected", "finding", f.ShortID(), "error", err)
		return Verdict{Reason: fmt.Sprintf("patch does not apply: %v", err)}, nil
	}

	testPath, err := files.EnsureWithinRoot(workspace, c.Test.Path)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("invalid test path: %v", err)}, nil
	}
	if err := files.WriteFile(testPath, []byte(c.Test.Content)); err != nil {
		return Verdict{}, err
	}

	passed, output, err := g.runTest(ctx, workspace, c.Test.Path)
	if err != nil {
		return Verdict{}, err
	}
	verdict := Verdict{TestOutput: output}
	if !passed {
		verdict.Reason = "test failed"
		return verdict, nil
	}

	rescan, err := g.rescan(ctx, workspace, f)
	if err != nil {
		return Verdict{}, fmt.Errorf("rescan failed: %w", err)
	}
	verdict.Rescan = rescan
	if rescan.Vulnerable {
		verdict.Reason = "vulnerability still detected after the patch"
		return verdict, nil
	}
	if rescan.Unverified {
		g.logger.Warn("no rescan check applies, candidate not accepted", "finding", f.ShortID(), "category", f.Category)
		verdict.Reason = "no rescan check applies"
		return verdict, nil
	}

	verdict.Passed = true
	g.logger.Debug("candidate validated", "finding", f.ShortID())
	return verdict, nil
}

func (g *Gate) prepareWorkspace(f findings.Finding) (string, error) {
	if err := files.CreateFolderIfNotExists(g.tempFolder); err != nil {
		return "", err
	}
	workspace, err := os.MkdirTemp(g.tempFolder, "validate-"+f.ShortID()+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create validation workspace: %w", err)
	}

	skip := []string{".git"}
	if rel, err := filepath.Rel(g.sourceRoot, g.tempFolder); err == nil && !strings.HasPrefix(rel, "..") {
		skip = append(skip, filepath.Base(g.tempFolder))
	}
	copyTree := func() error { return files.CopyDir(g.sourceRoot, workspace, skip...) }
	if g.guard != nil {
		err = g.guard.ReadSource(copyTree)
	} else {
		err = copyTree()
	}
	if err != nil {
		os.RemoveAll(workspace)
		return "", fmt.Errorf("failed to copy source tree: %w", err)
	}
	return workspace, nil
}

func (g *Gate) runTest(ctx context.Context, workspace, testPath string) (bool, string, error) {
	if len(g.testCommand) == 0 {
		return false, "", fmt.Errorf("no test command configured")
	}

	args := execx.Expand(g.testCommand, map[string]string{
		"test":      filepath.ToSlash(testPath),
		"workspace": workspace,
	})

	testCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		testCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	res, err := g.runner.Run(testCtx, execx.Command{Name: args[0], Args: args[1:], Dir: workspace})
	if err != nil {
		if ctx.Err() != nil {
			return false, "", ctx.Err()
		}
		if testCtx.Err() != nil {
			return false, fmt.Sprintf("test did not finish within %s\n%s", g.timeout, tail(res.Output)), nil
		}
		return false, "", fmt.Errorf("failed to run tests: %w", err)
	}
	return res.ExitCode == 0, tail(res.Output), nil
}

// rescan bounds the rescanner by the rescan timeout. Running out of time is an
// error, never a clean result.
func (g *Gate) rescan(ctx context.Context, workspace string, f findings.Finding) (RescanResult, error) {
	if g.rescanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.rescanTimeout)
		defer cancel()
	}
	res, err := g.rescanner.Rescan(ctx, workspace, f)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return RescanResult{}, fmt.Errorf("rescan did not finish within %s: %w", g.rescanTimeout, err)
	}
	return res, err
}

func tail(out []byte) string {
	if len(out) > maxTestOutput {
		out = out[len(out)-maxTestOutput:]
	}
	return string(out)
}
