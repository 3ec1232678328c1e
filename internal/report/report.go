package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/pipeline"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

// Format is a report format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatSARIF    Format = "sarif"
)

// Ext is the file extension of the format.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatSARIF:
		return "sarif"
	default:
		return "json"
	}
}

// ParseFormat accepts the format names and a few aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "sarif":
		return FormatSARIF, nil
	default:
		return "", fmt.Errorf("unknown report format %q (json, markdown, sarif)", s)
	}
}

// Target is one report to produce.
type Target struct {
	Format Format
	Dest   string
}

// DefaultName is the file name of a report written at t.
func DefaultName(f Format, t time.Time) string {
	return fmt.Sprintf("security_report_%s.%s", t.UTC().Format("20060102_150405"), f.Ext())
}

// ParseTargets parses FORMAT[:DEST] specs. A missing DEST puts the report
// into folder under its default name.
func ParseTargets(specs []string, folder string, t time.Time) ([]Target, error) {
	var targets []Target
	for _, spec := range specs {
		name, dest, _ := strings.Cut(spec, ":")
		if IsS3(spec) {
			return nil, errors.NewConfigError(fmt.Errorf("report %q: a format is required before the destination", spec))
		}
		f, err := ParseFormat(name)
		if err != nil {
			return nil, errors.NewConfigError(err)
		}
		if dest == "" {
			dest = folder
		}
		if dest == "" || dest == "-" {
			targets = append(targets, Target{Format: f})
			continue
		}
		resolved, err := Resolve(dest, DefaultName(f, t))
		if err != nil {
			return nil, errors.NewConfigError(fmt.Errorf("report %q: %w", spec, err))
		}
		targets = append(targets, Target{Format: f, Dest: resolved})
	}
	return targets, nil
}

// Writer renders run reports and stores them.
type Writer struct {
	logger hclog.Logger
	out    *Output
	opts   Options
}

// Options add repository context to rendered reports.
type Options struct {
	Repository string
	Commit     string
	Links      *Links
	ToolName   string
	Version    string
}

// NewWriter creates a Writer storing through out.
func NewWriter(logger hclog.Logger, out *Output, opts Options) *Writer {
	if opts.ToolName == "" {
		opts.ToolName = "autofix"
	}
	return &Writer{logger: logger, out: out, opts: opts}
}

// Render returns the report in format f.
func (w *Writer) Render(f Format, r *pipeline.RunReport) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal report: %w", err)
		}
		return append(data, '\n'), nil
	case FormatMarkdown:
		return renderMarkdown(r, w.opts)
	case FormatSARIF:
		return renderSARIF(r, w.opts)
	default:
		return nil, fmt.Errorf("unknown report format %q", f)
	}
}

// Write renders r once per target. Every target is attempted; the first
// error is returned.
func (w *Writer) Write(ctx context.Context, r *pipeline.RunReport, targets []Target) ([]string, error) {
	var written []string
	var firstErr error
	for _, t := range targets {
		data, err := w.Render(t.Format, r)
		if err == nil {
			var where string
			where, err = w.out.Write(ctx, t.Dest, data)
			if err == nil {
				written = append(written, where)
				w.logger.Info("report written", "format", t.Format, "destination", where)
				continue
			}
		}
		w.logger.Error("failed to write report", "format", t.Format, "destination", t.Dest, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return written, firstErr
}

// Folder returns the directory reports default to, relative paths resolved against base.
func Folder(base, folder string) string {
	if folder == "" || IsS3(folder) || filepath.IsAbs(folder) {
		return folder
	}
	return filepath.Join(base, folder)
}
