package normalizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

// Supported report formats.
const (
	FormatSARIF           = "sarif"
	FormatZAP             = "zap"
	FormatNuclei          = "nuclei"
	FormatDependencyCheck = "dependency-check"
	FormatGeneric         = "generic"
)

// ReportExtensions are the file extensions collected from report directories.
var ReportExtensions = []string{"json", "sarif", "jsonl"}

// Input is one raw scanner report.
type Input struct {
	Name   string
	Format string
	Data   []byte
}

// Record is a scanner result before validation. Err is set when the record
// itself could not be decoded.
type Record struct {
	Source      string
	Category    string
	RuleID      string
	Title       string
	Description string
	Location    findings.Location
	RawSeverity string
	CVSSVector  string
	CVSSScore   *float64
	References  []string
	Err         error
}

// Adapter converts one scanner format into records.
type Adapter interface {
	Format() string
	Detect(data []byte) bool
	Parse(data []byte) ([]Record, error)
}

// Result is the outcome of a normalization.
type Result struct {
	Findings  []findings.Finding
	Malformed []*errors.MalformedFindingError
}

// Normalizer turns heterogeneous scanner reports into canonical findings.
type Normalizer struct {
	logger     hclog.Logger
	adapters   []Adapter
	sourceRoot string
}

// New creates a Normalizer with every built in adapter. sourceRoot is stripped
// from absolute report paths so locations stay repository relative.
func New(logger hclog.Logger, sourceRoot string) *Normalizer {
	return &Normalizer{
		logger:     logger,
		sourceRoot: sourceRoot,
		adapters: []Adapter{
			&sarifAdapter{},
			&zapAdapter{},
			&dependencyCheckAdapter{},
			&nucleiAdapter{},
			&genericAdapter{},
		},
	}
}

// LoadInputs reads every report file found under paths.
func LoadInputs(paths []string) ([]Input, error) {
	reportFiles, err := files.CollectFiles(paths, ReportExtensions)
	if err != nil {
		return nil, err
	}

	inputs := make([]Input, 0, len(reportFiles))
	for _, path := range reportFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read report %q: %w", path, err)
		}
		inputs = append(inputs, Input{Name: path, Data: data})
	}
	return inputs, nil
}

// DetectFormat returns the format of data, or an empty string when no adapter recognizes it.
func (n *Normalizer) DetectFormat(data []byte) string {
	for _, a := range n.adapters {
		if a.Detect(data) {
			return a.Format()
		}
	}
	return ""
}

func (n *Normalizer) adapterFor(format string) Adapter {
	for _, a := range n.adapters {
		if a.Format() == format {
			return a
		}
	}
	return nil
}

// Normalize converts every input into findings. A record missing a required
// field is reported as malformed and dropped without affecting the others.
// Findings are numbered in the order they are produced, which is the
// discovery order used by triage.
func (n *Normalizer) Normalize(inputs ...Input) Result {
	var result Result
	seen := make(map[string]bool)
	discovery := 0

	for _, in := range inputs {
		format := in.Format
		if format == "" {
			format = n.DetectFormat(in.Data)
		}
		adapter := n.adapterFor(format)
		if adapter == nil {
			n.logger.Warn("unrecognized report format", "input", in.Name, "format", format)
			result.Malformed = append(result.Malformed, &errors.MalformedFindingError{
				Input: in.Name, Index: -1, Err: fmt.Errorf("unrecognized report format %q", format),
			})
			continue
		}

		records, err := adapter.Parse(in.Data)
		if err != nil {
			n.logger.Error("failed to parse report", "input", in.Name, "format", format, "error", err)
			result.Malformed = append(result.Malformed, &errors.MalformedFindingError{Input: in.Name, Index: -1, Err: err})
			continue
		}

		for i, rec := range records {
			f, mErr := n.toFinding(in.Name, i, rec)
			if mErr != nil {
				n.logger.Warn("dropping malformed finding", "input", in.Name, "index", i, "error", mErr)
				result.Malformed = append(result.Malformed, mErr)
				continue
			}
			if seen[f.ID] {
				n.logger.Debug("dropping duplicate finding", "id", f.ID, "input", in.Name)
				continue
			}
			seen[f.ID] = true
			f.Discovery = discovery
			discovery++
			result.Findings = append(result.Findings, f)
		}
		n.logger.Debug("report normalized", "input", in.Name, "format", format, "records", len(records))
	}

	n.logger.Info("normalization completed", "findings", len(result.Findings), "malformed", len(result.Malformed))
	return result
}

func (n *Normalizer) toFinding(input string, index int, rec Record) (findings.Finding, *errors.MalformedFindingError) {
	if rec.Err != nil {
		return findings.Finding{}, &errors.MalformedFindingError{Input: input, Index: index, Err: rec.Err}
	}

	rec.Location.Path = n.relativePath(rec.Location.Path)
	category := findings.NormalizeCategory(rec.Category)

	switch {
	case strings.TrimSpace(rec.Source) == "":
		return findings.Finding{}, errors.NewMalformedFindingError(input, index, "source")
	case category == "":
		return findings.Finding{}, errors.NewMalformedFindingError(input, index, "category")
	case rec.Location.IsZero():
		return findings.Finding{}, errors.NewMalformedFindingError(input, index, "location")
	case strings.TrimSpace(rec.RawSeverity) == "":
		return findings.Finding{}, errors.NewMalformedFindingError(input, index, "rawSeverity")
	}

	source := strings.ToLower(strings.TrimSpace(rec.Source))
	return findings.Finding{
		ID:          findings.Fingerprint(source, rec.Location, category),
		Source:      source,
		Category:    category,
		RuleID:      rec.RuleID,
		Title:       rec.Title,
		Description: rec.Description,
		Location:    rec.Location,
		RawSeverity: strings.ToLower(strings.TrimSpace(rec.RawSeverity)),
		CVSSVector:  strings.TrimSpace(rec.CVSSVector),
		CVSSScore:   rec.CVSSScore,
		References:  rec.References,
	}, nil
}

func (n *Normalizer) relativePath(path string) string {
	if path == "" {
		return ""
	}
	path = strings.TrimPrefix(path, "file://")
	if n.sourceRoot != "" && filepath.IsAbs(path) {
		if root, err := filepath.Abs(n.sourceRoot); err == nil {
			if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
				return filepath.ToSlash(rel)
			}
		}
	}
	return filepath.ToSlash(path)
}
