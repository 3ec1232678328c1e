package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/execx"
	"github.com/scan-io-git/autofix/internal/normalizer"
	"github.com/scan-io-git/autofix/pkg/shared"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

// Request is one configured scanner run against a target.
type Request struct {
	Name    string   `json:"name"`
	Target  string   `json:"target"`
	Command []string `json:"command,omitempty"`
	Plugin  string   `json:"plugin,omitempty"`
	Args    []string `json:"args,omitempty"`
	Report  string   `json:"report"`
	Format  string   `json:"format,omitempty"`
}

// Scanner runs the scanners configured under scanners and collects their reports.
type Scanner struct {
	cfg            *config.Config
	logger         hclog.Logger
	runner         execx.Runner
	concurrentJobs int
	now            func() time.Time
}

// New creates a new Scanner running at most concurrentJobs scanners at once.
func New(cfg *config.Config, logger hclog.Logger, runner execx.Runner, concurrentJobs int) *Scanner {
	return &Scanner{
		cfg:            cfg,
		logger:         logger,
		runner:         runner,
		concurrentJobs: concurrentJobs,
		now:            time.Now,
	}
}

// PrepareScanArgs builds one request per configured scanner. Reports without a
// configured path are written to outputFolder.
func (s *Scanner) PrepareScanArgs(target, outputFolder string) ([]Request, error) {
	if len(s.cfg.Scanners) == 0 {
		return nil, nil
	}
	if _, err := os.Stat(target); err != nil {
		return nil, fmt.Errorf("scan target %q: %w", target, err)
	}
	if outputFolder == "" {
		outputFolder = filepath.Join(config.GetTempFolder(s.cfg), "reports")
	}
	if err := files.CreateFolderIfNotExists(outputFolder); err != nil {
		return nil, fmt.Errorf("failed to create results folder '%s': %w", outputFolder, err)
	}

	stamp := s.now().UTC().Format("20060102T150405")
	reqs := make([]Request, 0, len(s.cfg.Scanners))
	for _, sc := range s.cfg.Scanners {
		report := sc.Report
		if report == "" {
			report = filepath.Join(outputFolder, fmt.Sprintf("%s-%s.%s", sc.Name, stamp, reportExtension(sc.Format)))
		}
		vars := map[string]string{"target": target, "report": report}
		reqs = append(reqs, Request{
			Name:    sc.Name,
			Target:  target,
			Command: execx.Expand(sc.Command, vars),
			Plugin:  sc.Plugin,
			Args:    execx.Expand(sc.Args, vars),
			Report:  execx.Expand([]string{report}, vars)[0],
			Format:  sc.Format,
		})
	}
	return reqs, nil
}

func reportExtension(format string) string {
	switch format {
	case normalizer.FormatSARIF:
		return "sarif"
	case normalizer.FormatNuclei:
		return "jsonl"
	default:
		return "json"
	}
}

// scanOne runs a single scanner and returns the path of its report.
func (s *Scanner) scanOne(ctx context.Context, req Request) (string, error) {
	if req.Plugin != "" {
		return s.scanPlugin(req)
	}

	res, err := s.runner.Run(ctx, execx.Command{Name: req.Command[0], Args: req.Command[1:], Dir: req.Target})
	if err != nil {
		return "", err
	}
	// scanners commonly exit non-zero when they report findings
	if _, statErr := os.Stat(req.Report); statErr != nil {
		return "", fmt.Errorf("scanner %q exited with %d without writing %s", req.Name, res.ExitCode, req.Report)
	}
	s.logger.Debug("scanner finished", "scanner", req.Name, "exit_code", res.ExitCode)
	return req.Report, nil
}

func (s *Scanner) scanPlugin(req Request) (string, error) {
	var result shared.ScannerScanResponse
	err := shared.WithPlugin(s.cfg, "plugin-scanner", shared.PluginTypeScanner, req.Plugin, func(raw interface{}) error {
		scanner, ok := raw.(shared.Scanner)
		if !ok {
			return fmt.Errorf("invalid plugin type")
		}
		var err error
		result, err = scanner.Scan(shared.ScannerScanRequest{
			TargetPath:     req.Target,
			ResultsPath:    req.Report,
			ReportFormat:   req.Format,
			AdditionalArgs: req.Args,
		})
		if err != nil {
			s.logger.Error("scanner plugin scan failed", "plugin", req.Plugin, "error", err)
			return fmt.Errorf("scanner plugin scan failed. Scan arguments: %v. Error: %w", req, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if result.ResultsPath != "" {
		return result.ResultsPath, nil
	}
	return req.Report, nil
}

// ScanRepos runs every request concurrently. It returns a launch result per
// request and the reports of the successful ones in request order.
func (s *Scanner) ScanRepos(ctx context.Context, reqs []Request) (shared.GenericLaunchesResult, []normalizer.Input) {
	s.logger.Info("scan starting", "total", len(reqs), "goroutines", s.concurrentJobs)

	launches := make([]shared.GenericResult, len(reqs))
	inputs := make([]*normalizer.Input, len(reqs))
	var mu sync.Mutex

	skipped := shared.ForEachWithBoundedGoroutines(ctx, s.concurrentJobs, reqs, func(ctx context.Context, i int, req Request) {
		s.logger.Info("goroutine started", "#", i+1, "scanner", req.Name)

		launch := shared.GenericResult{Args: req, Status: shared.StatusOK}
		var input *normalizer.Input
		path, err := s.scanOne(ctx, req)
		if err == nil {
			var data []byte
			data, err = os.ReadFile(path)
			if err == nil {
				input = &normalizer.Input{Name: path, Format: req.Format, Data: data}
				launch.Result = shared.ScannerScanResponse{ResultsPath: path}
			}
		}
		if err != nil {
			s.logger.Error("scanner failed", "scanner", req.Name, "error", err)
			launch.Status = shared.StatusFailed
			launch.Message = err.Error()
		}

		mu.Lock()
		launches[i] = launch
		inputs[i] = input
		mu.Unlock()
	})
	for _, i := range skipped {
		launches[i] = shared.GenericResult{Args: reqs[i], Status: shared.StatusFailed, Message: context.Cause(ctx).Error()}
	}

	var collected []normalizer.Input
	for _, in := range inputs {
		if in != nil {
			collected = append(collected, *in)
		}
	}
	return shared.GenericLaunchesResult{Launches: launches}, collected
}
