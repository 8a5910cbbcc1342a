package ruletree

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Diagnostics is the per-rule evaluation trace, collected only when the
// engine is created with CollectDiagnostics(true). Every rule that the
// walk reaches contributes exactly one line, pass or fail; rules pruned
// by a halting sibling contribute none.
type Diagnostics struct {
	Lines []DiagnosticLine
}

// DiagnosticLine records one rule application.
type DiagnosticLine struct {
	RuleSetID string
	RuleID    string
	Operator  string
	Target    Target
	Observed  string
	Pass      bool
}

func (d *Diagnostics) add(l DiagnosticLine) {
	if d == nil {
		return
	}
	d.Lines = append(d.Lines, l)
}

// String renders the trace as a table in evaluation order.
func (d *Diagnostics) String() string {
	if d == nil {
		return ""
	}
	tw := table.NewWriter()
	tw.SetTitle("\nEVALUATION TRACE\n")
	tw.AppendHeader(table.Row{"Rule Set", "Rule", "Operator", "Target", "Observed", "Pass/\nFail"})
	for _, l := range d.Lines {
		tw.AppendRow(table.Row{l.RuleSetID, l.RuleID, l.Operator, l.Target, l.Observed, passFail(l.Pass)})
	}
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}
