package changeset

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/orchestrator"
	"github.com/scan-io-git/autofix/internal/provider"
	"github.com/scan-io-git/autofix/internal/template"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/internal/vcs"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

// Host is the repository the fix branch lives in.
type Host interface {
	CreateBranch(ctx context.Context, name string) (vcs.BranchRef, error)
	Commit(ctx context.Context, ref vcs.BranchRef, change vcs.Change, message string) (vcs.CommitRef, error)
	OpenReviewRequest(ctx context.Context, ref vcs.BranchRef, title, description string) (vcs.ReviewRequestRef, error)
	DiscardBranch(ctx context.Context, ref vcs.BranchRef) error
}

// Entry is one accepted fix staged on the branch.
type Entry struct {
	Finding findings.Finding     `json:"finding"`
	Score   triage.SeverityScore `json:"score"`
	Rank    int                  `json:"rank"`
	Round   int                  `json:"round"`
	Plan    provider.Plan        `json:"plan"`
	Patch   string               `json:"patch"`
	Test    provider.TestFile    `json:"test"`
	Commit  *vcs.CommitRef       `json:"commit,omitempty"`
}

// EntryFor builds the entry of an accepted attempt.
func EntryFor(r triage.Ranked, a orchestrator.FixAttempt) Entry {
	return Entry{
		Finding: r.Finding,
		Score:   r.Score,
		Rank:    r.Rank,
		Round:   a.Round,
		Plan:    a.Plan,
		Patch:   a.Patch,
		Test:    a.Test,
	}
}

// Unfixed is an admitted finding that did not end Accepted.
type Unfixed struct {
	Finding findings.Finding     `json:"finding"`
	Score   triage.SeverityScore `json:"score"`
	Rank    int                  `json:"rank"`
	Outcome orchestrator.Outcome `json:"outcome"`
}

// Summary is what the run knows about the findings that were not fixed.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Threshold triage.Band
	Skipped   []triage.Ranked
	Unfixed   []Unfixed
}

// Description is the data of the consolidated review request description.
type Description struct {
	Title     string
	RunID     string
	StartedAt time.Time
	Branch    string
	Base      string
	DryRun    bool
	Threshold triage.Band
	Fixed     []Entry
	Unfixed   []Unfixed
	Skipped   []triage.Ranked
}

// Result is what Finalize produced.
type Result struct {
	Branch        *vcs.BranchRef        `json:"branch,omitempty"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	ReviewRequest *vcs.ReviewRequestRef `json:"review_request,omitempty"`
	Entries       []Entry               `json:"entries"`
}

type state int

const (
	stateIdle state = iota
	stateOpen
	stateFinalized
	stateAborted
)

// ErrNotOpen is returned when the change set has no open branch.
var ErrNotOpen = stderrors.New("change set is not open")

// Manager owns the fix branch of one run. All methods are safe for
// concurrent use; commits happen one at a time in call order.
type Manager struct {
	logger hclog.Logger
	host   Host
	dryRun bool
	title  string
	tmpl   string

	mu      sync.Mutex
	state   state
	branch  vcs.BranchRef
	entries []Entry
}

// Options tune a Manager.
type Options struct {
	// DryRun records entries without touching the repository.
	DryRun bool
	Title  string
	// Template overrides the built-in description template.
	Template string
}

// New creates a Manager working on host. host may be nil in dry-run mode.
func New(logger hclog.Logger, host Host, opts Options) *Manager {
	if host == nil {
		opts.DryRun = true
	}
	return &Manager{
		logger: logger,
		host:   host,
		dryRun: opts.DryRun,
		title:  config.SetThen(opts.Title, config.DefaultPRTitle),
		tmpl:   opts.Template,
	}
}

// DryRun reports whether the manager leaves the repository untouched.
func (m *Manager) DryRun() bool { return m.dryRun }

// Begin creates the fix branch of the run.
func (m *Manager) Begin(ctx context.Context) (vcs.BranchRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateIdle {
		return vcs.BranchRef{}, fmt.Errorf("change set already started")
	}
	if m.dryRun {
		m.state = stateOpen
		m.logger.Info("dry run: no branch is created")
		return vcs.BranchRef{}, nil
	}

	ref, err := m.host.CreateBranch(ctx, "")
	if err != nil {
		return vcs.BranchRef{}, fmt.Errorf("failed to create fix branch: %w", err)
	}
	m.branch = ref
	m.state = stateOpen
	return ref, nil
}

// Branch returns the fix branch, empty in dry-run mode.
func (m *Manager) Branch() vcs.BranchRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branch
}

// CommitMessage is the message of the commit staging e.
func CommitMessage(e Entry) string {
	location := e.Finding.Location.Path
	if location == "" {
		location = e.Finding.Location.String()
	}
	subject := fmt.Sprintf("fix(security): %s in %s [%s] severity=%s cvss=%.1f",
		e.Finding.Category, location, e.Finding.ShortID(), strings.ToLower(e.Score.Band.String()), e.Score.CVSSScore)

	var body strings.Builder
	if e.Finding.Title != "" {
		body.WriteString(e.Finding.Title)
		body.WriteString("\n\n")
	}
	if e.Plan.Summary != "" {
		body.WriteString(e.Plan.Summary)
		body.WriteString("\n\n")
	}
	fmt.Fprintf(&body, "Finding: %s\nRound: %d\n", e.Finding.ID, e.Round)
	if e.Test.Path != "" {
		fmt.Fprintf(&body, "Test: %s\n", e.Test.Path)
	}
	return subject + "\n\n" + body.String()
}

// Accept stages one accepted fix as a commit on the branch. A
// *errors.ConflictError affects only this entry; the branch stays usable.
func (m *Manager) Accept(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateOpen {
		return ErrNotOpen
	}
	if m.dryRun {
		m.entries = append(m.entries, e)
		m.logger.Debug("dry run: fix recorded", "finding", e.Finding.ShortID())
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	change := vcs.Change{Patch: e.Patch}
	if e.Test.Path != "" {
		change.Files = append(change.Files, vcs.File{Path: e.Test.Path, Content: e.Test.Content})
	}

	commit, err := m.host.Commit(ctx, m.branch, change, CommitMessage(e))
	if err != nil {
		var conflict *errors.ConflictError
		if stderrors.As(err, &conflict) {
			m.logger.Warn("fix conflicts with earlier fixes", "finding", e.Finding.ShortID(), "path", conflict.Path)
		}
		return err
	}
	e.Commit = &commit
	m.entries = append(m.entries, e)
	m.logger.Info("fix committed", "finding", e.Finding.ShortID(), "commit", commit.Hash, "branch", m.branch.Name)
	return nil
}

// Entries returns the staged entries in triage order.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedEntries()
}

func (m *Manager) sortedEntries() []Entry {
	out := append([]Entry(nil), m.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Abort discards the branch. No commit of the run survives it.
func (m *Manager) Abort(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateOpen {
		m.state = stateAborted
		return nil
	}
	m.state = stateAborted
	m.entries = nil
	if m.dryRun {
		return nil
	}

	m.logger.Warn("aborting change set", "branch", m.branch.Name, "reason", reason)
	// discarding must happen even when ctx is already done
	if err := m.host.DiscardBranch(context.WithoutCancel(ctx), m.branch); err != nil {
		return fmt.Errorf("failed to discard branch %q: %w", m.branch.Name, err)
	}
	return nil
}

// Finalize renders the consolidated description and opens the review
// request. Without accepted fixes the branch is discarded and no request is opened.
func (m *Manager) Finalize(ctx context.Context, s Summary) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateOpen {
		return nil, ErrNotOpen
	}
	m.state = stateFinalized

	entries := m.sortedEntries()
	res := &Result{Title: m.title, Entries: entries}

	desc := Description{
		Title:     m.title,
		RunID:     s.RunID,
		StartedAt: s.StartedAt,
		DryRun:    m.dryRun,
		Threshold: s.Threshold,
		Fixed:     entries,
		Unfixed:   s.Unfixed,
		Skipped:   s.Skipped,
	}
	if !m.dryRun {
		desc.Branch, desc.Base = m.branch.Name, m.branch.Base
	}
	text, err := template.RenderFile(template.PRDescription, m.tmpl, desc)
	if err != nil {
		return nil, err
	}
	res.Description = text

	if m.dryRun {
		return res, nil
	}

	if len(entries) == 0 {
		m.logger.Info("no fix accepted, discarding branch", "branch", m.branch.Name)
		if err := m.host.DiscardBranch(ctx, m.branch); err != nil {
			return res, fmt.Errorf("failed to discard empty branch %q: %w", m.branch.Name, err)
		}
		return res, nil
	}

	branch := m.branch
	res.Branch = &branch
	ref, err := m.host.OpenReviewRequest(ctx, m.branch, m.title, text)
	if err != nil {
		return res, fmt.Errorf("failed to open review request: %w", err)
	}
	if ref.URL != "" || ref.ID != "" {
		res.ReviewRequest = &ref
		m.logger.Info("review request opened", "url", ref.URL, "branch", m.branch.Name)
	}
	return res, nil
}

// OutcomeForError maps an Accept error onto the finding's terminal outcome.
func OutcomeForError(err error) orchestrator.Outcome {
	var conflict *errors.ConflictError
	switch {
	case stderrors.As(err, &conflict):
		return orchestrator.Outcome{Kind: orchestrator.Errored, Reason: orchestrator.ReasonConflict}
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return orchestrator.Outcome{Kind: orchestrator.Errored, Reason: orchestrator.ReasonCancelled}
	default:
		return orchestrator.Outcome{Kind: orchestrator.Errored, Reason: err.Error()}
	}
}
