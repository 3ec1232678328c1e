package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/autofix/cmd/scan"
	internalcmd "github.com/scan-io-git/autofix/internal/cmd"
	"github.com/scan-io-git/autofix/internal/execx"
	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/provider"
	"github.com/scan-io-git/autofix/internal/validation"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
	"github.com/scan-io-git/autofix/pkg/shared/logger"
)

// RunOptionsValidate holds the arguments for the validate command.
type RunOptionsValidate struct {
	FindingID string
	PatchFile string
	TestFile  string
	TestPath  string
	FromCache bool
}

// Result is the output of the validate command.
type Result struct {
	Finding findings.Finding   `json:"finding"`
	Verdict validation.Verdict `json:"verdict"`
}

// Global variables for configuration and command arguments
var (
	AppConfig            *config.Config
	globalOptions        *internalcmd.GlobalOptions
	validateOptions      RunOptionsValidate
	exampleValidateUsage = `  # Check a hand written fix of a reported finding
  autofix validate -p reports/semgrep.sarif --finding 3f2a9c1e --patch fix.diff --test tests/test_sqli.py

  # Place the test at a different path of the isolated copy
  autofix validate -p reports --finding 3f2a9c1e --patch fix.diff --test /tmp/t.py --test-path tests/security/test_sqli.py`
)

// ValidateCmd represents the validate command.
var ValidateCmd = &cobra.Command{
	Use:                   "validate --finding ID --patch PATH --test PATH [--test-path PATH] [--path/-p REPORT]...",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleValidateUsage,
	Short:                 "Runs the validation gate on a patch and test for one finding and prints the verdict",
	RunE:                  runValidateCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, global *internalcmd.GlobalOptions) {
	AppConfig = cfg
	globalOptions = global
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.NewConfigError(fmt.Errorf("unexpected arguments %v", args))
	}
	ctx := cmd.Context()
	logger := logger.NewLogger(AppConfig, "core-validate")

	if err := validateValidateArgs(&validateOptions); err != nil {
		logger.Error("invalid validate arguments", "error", err)
		return errors.NewConfigError(err)
	}
	candidate, err := LoadCandidate(validateOptions.PatchFile, validateOptions.TestFile, validateOptions.TestPath)
	if err != nil {
		return errors.NewConfigError(err)
	}

	scanned, err := scan.Execute(ctx, AppConfig, logger, globalOptions.Paths, scan.RunOptionsScan{NoCache: true, FromCache: validateOptions.FromCache})
	if err != nil {
		logger.Error("scan stage failed", "error", err)
		return err
	}
	finding, err := FindFinding(scanned.Normalized.Findings, validateOptions.FindingID)
	if err != nil {
		return errors.NewConfigError(err)
	}

	runner := execx.OSRunner{}
	rescanner, err := validation.NewRescanner(AppConfig, logger.Named("rescan"), runner)
	if err != nil {
		return errors.NewConfigError(err)
	}
	gate, err := validation.NewGate(AppConfig, logger.Named("gate"), runner, rescanner)
	if err != nil {
		return errors.NewConfigError(err)
	}

	verdict, err := gate.Validate(ctx, finding, candidate)
	if err != nil {
		logger.Error("validation failed to run", "finding", finding.ID, "error", err)
		return err
	}

	if _, err := internalcmd.WriteResult(ctx, logger, globalOptions.Output, fmt.Sprintf("verdict_%s.json", finding.ID), Result{Finding: finding, Verdict: verdict}); err != nil {
		logger.Error("failed to write result", "error", err)
		return err
	}
	if !verdict.Passed {
		return errors.NewCommandError(validateOptions, verdict, fmt.Errorf("candidate rejected: %s", verdict.Reason), errors.ExitPartial)
	}
	logger.Info("candidate accepted", "finding", finding.ID)
	return nil
}

// validateValidateArgs validates the arguments provided to the validate command.
func validateValidateArgs(opts *RunOptionsValidate) error {
	if opts.FindingID == "" {
		return fmt.Errorf("the 'finding' flag must be specified")
	}
	if opts.PatchFile == "" {
		return fmt.Errorf("the 'patch' flag must be specified")
	}
	if opts.TestFile == "" {
		return fmt.Errorf("the 'test' flag must be specified")
	}
	if opts.TestPath != "" && filepath.IsAbs(opts.TestPath) {
		return fmt.Errorf("the 'test-path' flag must be relative to the source root")
	}
	return nil
}

// LoadCandidate reads a patch and a test file. The test is placed at
// testPath, or at the test file path itself when that is relative.
func LoadCandidate(patchFile, testFile, testPath string) (provider.Candidate, error) {
	patchData, err := os.ReadFile(patchFile)
	if err != nil {
		return provider.Candidate{}, fmt.Errorf("failed to read patch: %w", err)
	}
	testData, err := os.ReadFile(testFile)
	if err != nil {
		return provider.Candidate{}, fmt.Errorf("failed to read test: %w", err)
	}
	if testPath == "" {
		testPath = testFile
		if filepath.IsAbs(testPath) {
			testPath = filepath.Join("tests", filepath.Base(testFile))
		}
	}
	return provider.Candidate{
		Patch: string(patchData),
		Test:  provider.TestFile{Path: filepath.ToSlash(filepath.Clean(testPath)), Content: string(testData)},
	}, nil
}

// FindFinding returns the finding with id, or the only one whose id starts with it.
func FindFinding(list []findings.Finding, id string) (findings.Finding, error) {
	var matches []findings.Finding
	for _, f := range list {
		if f.ID == id {
			return f, nil
		}
		if strings.HasPrefix(f.ID, id) {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 0:
		return findings.Finding{}, fmt.Errorf("finding %q not found in %d findings", id, len(list))
	case 1:
		return matches[0], nil
	default:
		return findings.Finding{}, fmt.Errorf("finding id %q is ambiguous: %d findings match", id, len(matches))
	}
}

// Initialize flags for the validate command.
func init() {
	ValidateCmd.Flags().StringVar(&validateOptions.FindingID, "finding", "", "Id, or unique id prefix, of the finding the candidate fixes.")
	ValidateCmd.Flags().StringVar(&validateOptions.PatchFile, "patch", "", "Unified diff to apply to an isolated copy of the source root.")
	ValidateCmd.Flags().StringVar(&validateOptions.TestFile, "test", "", "Test proving the fix.")
	ValidateCmd.Flags().StringVar(&validateOptions.TestPath, "test-path", "", "Path of the test inside the source root. Defaults to the --test path when relative.")
	ValidateCmd.Flags().BoolVar(&validateOptions.FromCache, "from-cache", false, "Look the finding up in the latest cached scan.")
	ValidateCmd.Flags().BoolP("help", "h", false, "Show help for the validate command.")
}
