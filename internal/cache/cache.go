package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

const (
	resultsFolder = "results"
	extension     = ".json"
	// timestamps sort lexically in this layout
	timeLayout = "20060102T150405.000000000Z"
)

// Entry is one cached scan.
type Entry struct {
	ScanID    string             `json:"scan_id"`
	Timestamp time.Time          `json:"timestamp"`
	Findings  []findings.Finding `json:"findings"`
	Malformed []string           `json:"malformed,omitempty"`
}

// Store keeps normalized scan results on disk.
type Store struct {
	logger   hclog.Logger
	folder   string
	maxAge   time.Duration
	disabled bool
	now      func() time.Time
}

// New creates a Store under cache.folder.
func New(cfg *config.Config, logger hclog.Logger) *Store {
	return &Store{
		logger:   logger,
		folder:   filepath.Join(config.GetCacheFolder(cfg), resultsFolder),
		maxAge:   config.SetThen(cfg.Cache.MaxAge, 30*24*time.Hour),
		disabled: cfg.Cache.Disabled,
		now:      time.Now,
	}
}

// Disabled reports whether the cache is switched off.
func (s *Store) Disabled() bool { return s.disabled }

// EntryName returns the file name of a scan saved at t.
// Example: src-app_20240102T030405.000000000Z.json
func EntryName(scanID string, t time.Time) string {
	return fmt.Sprintf("%s_%s%s", sanitize(scanID), t.UTC().Format(timeLayout), extension)
}

func sanitize(id string) string {
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '-'
	}, id)
	if id == "" {
		return "scan"
	}
	return id
}

// Save writes the findings of scanID and returns the file path.
func (s *Store) Save(scanID string, list []findings.Finding, malformed []string) (string, error) {
	if s.disabled {
		return "", nil
	}
	now := s.now()
	path := filepath.Join(s.folder, EntryName(scanID, now))

	data, err := json.MarshalIndent(Entry{ScanID: scanID, Timestamp: now.UTC(), Findings: list, Malformed: malformed}, "", "    ")
	if err != nil {
		return path, fmt.Errorf("error marshaling the scan results: %w", err)
	}
	if err := files.WriteFile(path, data); err != nil {
		return path, fmt.Errorf("error writing scan results: %w", err)
	}
	s.logger.Info("scan results cached", "path", path, "findings", len(list))
	return path, nil
}

// Latest returns the most recent entry of scanID.
func (s *Store) Latest(scanID string) (*Entry, bool, error) {
	if s.disabled {
		return nil, false, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.folder, sanitize(scanID)+"_*"+extension))
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	sort.Strings(matches)
	latest := matches[len(matches)-1]

	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %q: %w", latest, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry %q: %w", latest, err)
	}
	return &e, true, nil
}

// Prune removes entries older than cache.max_age and returns how many went.
func (s *Store) Prune() (int, error) {
	entries, err := os.ReadDir(s.folder)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != extension {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.folder, e.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to remove stale cache entry", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("pruned scan cache", "removed", removed, "maxAge", s.maxAge)
	}
	return removed, nil
}
