package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/scan-io-git/autofix/pkg/shared"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitConfig  = 2
	ExitPartial = 3
)

// MalformedFindingError reports a scanner record that misses a required field.
// Only the offending record is dropped.
type MalformedFindingError struct {
	Input string
	Index int
	Field string
	Err   error
}

func (e *MalformedFindingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed finding %d in %q: %v", e.Index, e.Input, e.Err)
	}
	return fmt.Sprintf("malformed finding %d in %q: missing %s", e.Index, e.Input, e.Field)
}

func (e *MalformedFindingError) Unwrap() error { return e.Err }

// NewMalformedFindingError creates a MalformedFindingError for a missing field.
func NewMalformedFindingError(input string, index int, field string) *MalformedFindingError {
	return &MalformedFindingError{Input: input, Index: index, Field: field}
}

// ProviderErrorKind classifies failures of external capability providers.
type ProviderErrorKind string

const (
	ProviderTimeout           ProviderErrorKind = "timeout"
	ProviderRateLimited       ProviderErrorKind = "rateLimited"
	ProviderMalformedResponse ProviderErrorKind = "malformedResponse"
	ProviderUnavailable       ProviderErrorKind = "unavailable"
)

// ProviderError is an externally caused failure of an Architect or Implementer call.
type ProviderError struct {
	Kind     ProviderErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError creates a ProviderError of the given kind.
func NewProviderError(kind ProviderErrorKind, provider string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// AsProviderError returns the ProviderError wrapped in err, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ValidationFailure is the semantic rejection of a candidate fix. It drives
// the next round and is never a system error.
type ValidationFailure struct {
	Reason string
}

func (e *ValidationFailure) Error() string {
	return "validation failed: " + e.Reason
}

// ConflictError reports a patch that cannot be committed onto the fix branch.
type ConflictError struct {
	Branch string
	Path   string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict applying patch to %q on branch %q: %v", e.Path, e.Branch, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// RunBudgetExceeded aborts a run that outlived its wall-clock budget.
type RunBudgetExceeded struct {
	Budget time.Duration
}

func (e *RunBudgetExceeded) Error() string {
	return fmt.Sprintf("run budget of %v exceeded", e.Budget)
}

// FatalErrorThresholdReached aborts a run after too many errored findings.
type FatalErrorThresholdReached struct {
	Count     int
	Threshold int
}

func (e *FatalErrorThresholdReached) Error() string {
	return fmt.Sprintf("fatal error threshold reached: %d errored findings (threshold %d)", e.Count, e.Threshold)
}

// ConfigError wraps invalid configuration or command line usage.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err as a configuration error.
func NewConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Err: err}
}

// Custom error type for not implemented errors
type NotImplementedError struct {
	MethodName string
	PluginName string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("method %q is not implemented for %q", e.MethodName, e.PluginName)
}

// NewNotImplementedError creates a NotImplementedError.
func NewNotImplementedError(methodName, pluginName string) error {
	return &NotImplementedError{
		MethodName: methodName,
		PluginName: pluginName,
	}
}

// CommandError carries the process exit code of a failed command together with its result.
type CommandError struct {
	ExitCode    int
	CommonError string
	Result      shared.GenericLaunchesResult
}

func (e *CommandError) Error() string {
	return e.CommonError
}

// NewCommandError creates a new CommandError instance, encapsulating args, result, and the error message.
func NewCommandError(args interface{}, result interface{}, err error, code int) *CommandError {
	return &CommandError{
		ExitCode:    code,
		CommonError: err.Error(),
		Result: shared.GenericLaunchesResult{
			Launches: []shared.GenericResult{
				{
					Args:    args,
					Result:  result,
					Status:  shared.StatusFailed,
					Message: err.Error(),
				},
			},
		},
	}
}

// ExitCodeFor maps an error returned by a command to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitRuntime
}
