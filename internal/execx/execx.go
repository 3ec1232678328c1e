package execx

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the combined output of a finished process.
type Result struct {
	Output   []byte
	ExitCode int
}

// Runner starts processes. Run returns a Result for every process that was
// started, whatever its exit code; the error is reserved for failures to
// start and for cancellation.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	LookPath(file string) (string, error)
}

// OSRunner runs real processes.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() != nil {
		return Result{Output: out.Bytes(), ExitCode: -1}, fmt.Errorf("%s interrupted: %w", c, ctx.Err())
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return Result{Output: out.Bytes(), ExitCode: exitErr.ExitCode()}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%s failed: %w", c, err)
	}
	return Result{Output: out.Bytes()}, nil
}

func (OSRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Expand replaces {key} placeholders in every argument.
func Expand(args []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
