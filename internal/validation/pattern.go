package validation

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

// defaultSignatures are static checks per category used when no scanner is
// configured for rescans.
var defaultSignatures = map[string][]string{
	findings.CategorySQLInjection: {
		`(?i)\b(execute|executemany|query|raw|exec)\s*\(\s*f["'][^"']*\{`,
		`(?i)["'][^"'\n]*\b(select|insert|update|delete)\b[^"'\n]*["']\s*(\+|%\s*[\w(])`,
		`(?i)["'][^"'\n]*\b(select|insert|update|delete)\b[^"'\n]*["']\s*\.format\(`,
		`(?i)fmt\.Sprintf\(\s*"[^"]*\b(select|insert|update|delete)\b`,
	},
	findings.CategoryCommandInjection: {
		`\bos\.system\s*\(`,
		`\bos\.popen\s*\(`,
		`subprocess\.\w+\([^)]*shell\s*=\s*True`,
		`exec\.Command\(\s*"(sh|bash)"\s*,\s*"-c"`,
		`\bchild_process\.exec\s*\(`,
	},
	findings.CategoryXSS: {
		`\.innerHTML\s*=`,
		`dangerouslySetInnerHTML`,
		`\bmark_safe\s*\(`,
		`\|\s*safe\b`,
		`template\.HTML\(`,
		`document\.write\s*\(`,
	},
	findings.CategoryWeakCrypto: {
		`(?i)hashlib\.(md5|sha1)\s*\(`,
		`"crypto/(md5|sha1|des|rc4)"`,
		`(?i)MessageDigest\.getInstance\(\s*"(md5|sha-?1)"`,
		`(?i)createHash\(\s*['"](md5|sha1)['"]`,
		`(?i)\bDES\.new\(|\bARC4\.new\(`,
	},
	findings.CategoryInsecureDeserialization: {
		`\bpickle\.loads?\s*\(`,
		`\bcPickle\.loads?\s*\(`,
		`\byaml\.unsafe_load\s*\(`,
		`\byaml\.load\s*\(\s*[^,()]+\)`,
		`\bmarshal\.loads\s*\(`,
		`new\s+ObjectInputStream\s*\(`,
	},
	findings.CategoryHardcodedSecret: {
		`(?i)\b(password|passwd|secret|api_?key|token)\s*[:=]\s*["'][^"'\s]{6,}["']`,
	},
}

// PatternRescanner checks the file of a finding against regular expressions
// for its category. Findings without a file location, a signature for their
// category or an existing file are reported as unverified.
type PatternRescanner struct {
	logger     hclog.Logger
	signatures map[string][]*regexp.Regexp
}

// NewPatternRescanner compiles the default signatures merged with extra, which
// replace the defaults of the categories they name.
func NewPatternRescanner(logger hclog.Logger, extra map[string][]string) (*PatternRescanner, error) {
	merged := make(map[string][]string, len(defaultSignatures))
	for category, patterns := range defaultSignatures {
		merged[category] = patterns
	}
	for category, patterns := range extra {
		merged[findings.NormalizeCategory(category)] = patterns
	}

	compiled := make(map[string][]*regexp.Regexp, len(merged))
	for category, patterns := range merged {
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid rescan pattern for %s: %w", category, err)
			}
			compiled[category] = append(compiled[category], re)
		}
	}
	return &PatternRescanner{logger: logger, signatures: compiled}, nil
}

func (p *PatternRescanner) Rescan(ctx context.Context, workspace string, f findings.Finding) (RescanResult, error) {
	sigs := p.signatures[f.Category]
	if len(sigs) == 0 || f.Location.Path == "" {
		p.logger.Debug("no static signature applies", "finding", f.ShortID(), "category", f.Category)
		return RescanResult{Unverified: true}, nil
	}

	path, err := files.EnsureWithinRoot(workspace, f.Location.Path)
	if err != nil {
		return RescanResult{}, err
	}
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		p.logger.Debug("file of the finding is gone", "finding", f.ShortID(), "path", f.Location.Path)
		return RescanResult{Unverified: true}, nil
	}
	if err != nil {
		return RescanResult{}, fmt.Errorf("failed to open %q: %w", f.Location.Path, err)
	}
	defer file.Close()

	var result RescanResult
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return RescanResult{}, err
		}
		text := scanner.Text()
		for _, re := range sigs {
			if re.MatchString(text) {
				result.Vulnerable = true
				result.Matches = append(result.Matches, fmt.Sprintf("%s:%d", f.Location.Path, line))
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return RescanResult{}, fmt.Errorf("failed to read %q: %w", f.Location.Path, err)
	}
	return result, nil
}
