package ruletree

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RuleFailure records one failed rule: where it failed, what value was
// observed, and what the rule required.
type RuleFailure struct {
	RuleSetID string
	RuleID    string
	Attribute string
	Observed  string
	Expected  string
	Operator  string

	// Severe marks failures caused by unparseable or unevaluable
	// values (bad numbers, division by zero, malformed custom operator
	// verdicts), which are severe regardless of the rule set's own
	// severity.
	Severe bool
}

// RuleSetResult is the outcome of one rule set, in traversal order.
type RuleSetResult struct {
	// The rule set that was evaluated.
	RuleSetID   string
	Description string

	// Whether the rule set passed. Pass is the rollup of the set's own
	// rules (combined by the set's mode) and all child rule sets
	// (combined by AND).
	Pass bool

	// Severity of the failure; Clean when the rule set passed.
	Severity Severity

	// The rule set's error message, recorded only on failure.
	ErrorMessage string

	// Failures of this rule set's own rules, in declaration order.
	Failures []RuleFailure

	// Whether this rule set's failure halted its remaining siblings.
	Halted bool
}

// Report is the immutable outcome of one Validate call.
type Report struct {
	// Unique id of this evaluation.
	EvaluationID string

	// Severe if any severe failure occurred anywhere, Warning if any
	// failure occurred, Clean otherwise.
	Severity Severity

	// Per-rule-set outcomes in traversal order. Rule sets pruned by a
	// halting sibling are absent.
	RuleSets []RuleSetResult

	// All rule failures across the tree, in evaluation order.
	Failures []RuleFailure

	// Counters.
	RulesEvaluated    int
	RulesFailed       int
	RuleSetsEvaluated int
	RuleSetsFailed    int

	// Per-rule trace lines; only populated if the engine collects
	// diagnostics.
	Diagnostics *Diagnostics
}

// Pass reports whether the whole tree passed: no rule set failed.
func (r *Report) Pass() bool {
	return r.RuleSetsFailed == 0
}

// Summary is a one-line account of the evaluation.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %s rules evaluated, %s failed; %s rule sets evaluated, %s failed",
		r.Severity,
		humanize.Comma(int64(r.RulesEvaluated)),
		humanize.Comma(int64(r.RulesFailed)),
		humanize.Comma(int64(r.RuleSetsEvaluated)),
		humanize.Comma(int64(r.RuleSetsFailed)))
}

// String produces a table of the rule sets evaluated, their verdicts,
// and every rule failure recorded.
func (r *Report) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nRULE TREE REPORT\n%s\n", r.Summary())
	tw.AppendHeader(table.Row{"\nRule Set", "Pass/\nFail", "\nSeverity", "\nRule", "\nAttribute", "\nObserved", "\nExpected", "\nMessage"})

	for _, rs := range r.RuleSets {
		msg := rs.ErrorMessage
		if rs.Halted {
			msg = strings.TrimSpace(msg + " [halted siblings]")
		}
		if len(rs.Failures) == 0 {
			tw.AppendRow(table.Row{rs.RuleSetID, passFail(rs.Pass), rs.Severity, "", "", "", "", msg})
			continue
		}
		for i, f := range rs.Failures {
			setCol, verdictCol, sevCol, msgCol := "", "", "", ""
			if i == 0 {
				setCol = rs.RuleSetID
				verdictCol = passFail(rs.Pass)
				sevCol = rs.Severity.String()
				msgCol = msg
			}
			tw.AppendRow(table.Row{setCol, verdictCol, sevCol, f.RuleID, f.Attribute, f.Observed, f.Expected, msgCol})
		}
	}

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

func passFail(b bool) string {
	if b {
		return "PASS"
	}
	return "FAIL"
}
