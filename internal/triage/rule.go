package triage

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/scan-io-git/autofix/internal/findings"
)

// Rule is a compiled admission expression. It sees the variables
// finding (map), score (double) and band (string) and must yield a bool.
type Rule struct {
	expr string
	prg  cel.Program
}

// CompileRule compiles a CEL admission rule, e.g.
// `finding.category != "hardcoded_secret" && score >= 9.5`.
func CompileRule(expr string) (*Rule, error) {
	env, err := cel.NewEnv(
		cel.Variable("finding", cel.MapType(cel.StringType, cel.AnyType)),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("band", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid triage rule %q: %w", expr, issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("triage rule %q must evaluate to a bool, got %v", expr, t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build triage rule %q: %w", expr, err)
	}
	return &Rule{expr: expr, prg: prg}, nil
}

// Admit evaluates the rule for one scored finding.
func (r *Rule) Admit(f findings.Finding, s SeverityScore) (bool, error) {
	out, _, err := r.prg.Eval(map[string]interface{}{
		"finding": findingVars(f),
		"score":   s.CVSSScore,
		"band":    s.Band.String(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate triage rule %q: %w", r.expr, err)
	}
	admit, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("triage rule %q returned %T", r.expr, out.Value())
	}
	return admit, nil
}

func findingVars(f findings.Finding) map[string]interface{} {
	return map[string]interface{}{
		"id":           f.ID,
		"source":       f.Source,
		"category":     f.Category,
		"rule_id":      f.RuleID,
		"title":        f.Title,
		"path":         f.Location.Path,
		"url":          f.Location.URL,
		"component":    f.Location.Component,
		"raw_severity": f.RawSeverity,
	}
}
