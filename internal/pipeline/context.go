package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/metrics"
	"github.com/scan-io-git/autofix/internal/orchestrator"
	"github.com/scan-io-git/autofix/pkg/shared/config"
)

// RunContext is the per-run state handed to every component of a run.
type RunContext struct {
	ID        string
	Config    *config.Config
	Logger    hclog.Logger
	StartedAt time.Time
	Metrics   *metrics.Run

	fatal atomic.Int64
}

// NewRunContext starts a run with a fresh id.
func NewRunContext(cfg *config.Config, logger hclog.Logger) *RunContext {
	id := uuid.New().String()
	return &RunContext{
		ID:        id,
		Config:    cfg,
		Logger:    logger.With("run", id),
		StartedAt: time.Now().UTC(),
		Metrics:   metrics.New(id),
	}
}

// RecordFatal counts one errored finding and returns the running total.
func (rc *RunContext) RecordFatal() int {
	return int(rc.fatal.Add(1))
}

// FatalCount returns the number of errored findings so far.
func (rc *RunContext) FatalCount() int {
	return int(rc.fatal.Load())
}

// TransitionHook feeds orchestrator state changes into the run metrics.
func (rc *RunContext) TransitionHook() orchestrator.TransitionFunc {
	return func(findingID string, from, to orchestrator.State) {
		rc.Metrics.Transition(string(from), string(to))
		rc.Logger.Trace("finding state changed", "finding", findingID, "from", from, "to", to)
	}
}
