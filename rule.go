package ruletree

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode determines how a rule set combines the verdicts of its own rules.
// Child rule sets always combine by AND, regardless of mode.
type Mode int

const (
	// ModeAnd passes iff every rule passes. An empty rule list passes.
	ModeAnd Mode = iota

	// ModeOr passes iff at least one rule passes. An empty rule list
	// fails.
	ModeOr
)

func (m Mode) String() string {
	if m == ModeOr {
		return "OR"
	}
	return "AND"
}

// Severity grades a failure. A severe failure anywhere in the tree makes
// the whole report severe.
type Severity int

const (
	Clean Severity = iota
	Warning
	Severe
)

func (s Severity) String() string {
	switch s {
	case Severe:
		return "severe"
	case Warning:
		return "warning"
	default:
		return "clean"
	}
}

// Target selects which record a rule reads its attribute values from.
type Target int

const (
	// TargetNew reads from the incoming record. Assignments always
	// write to the incoming record, whatever the target.
	TargetNew Target = iota

	// TargetCurrent reads from the stored record retrieved before the
	// walk.
	TargetCurrent
)

func (t Target) String() string {
	if t == TargetCurrent {
		return "CURRENT"
	}
	return "NEW"
}

// An Operand is one input to a rule operator: a literal, a reference to
// an attribute of the rule's target record, or a callout to an attribute
// source.
type Operand interface {
	operand()
	String() string
}

// Literal is a fixed operand value.
type Literal string

// AttrRef resolves to row 0 of the named attribute's group, read from
// the rule's target record.
type AttrRef struct {
	Name string
}

// SourceRef resolves by invoking the attribute source bound under Name
// in the source registry.
type SourceRef struct {
	Name string
}

func (Literal) operand()   {}
func (AttrRef) operand()   {}
func (SourceRef) operand() {}

func (l Literal) String() string   { return string(l) }
func (a AttrRef) String() string   { return "@" + a.Name }
func (s SourceRef) String() string { return "$" + s.Name }

// OnFailure is the action a rule set performs when its verdict is fail.
type OnFailure interface {
	onFailure()
}

// EmitOnly records the rule set's error message and nothing more. This
// is the default action.
type EmitOnly struct{}

// AssignOnFailure writes a value into an attribute of the incoming
// record.
type AssignOnFailure struct {
	Attr  string
	Value string
}

// InvokeOnFailure dispatches a custom operator with fixed arguments.
type InvokeOnFailure struct {
	OpName string
	Attr   string
	Args   [4]string
}

// HaltSiblings stops the parent from visiting its remaining children.
// The halt does not propagate above the parent unless the parent's own
// failure action also halts.
type HaltSiblings struct{}

func (EmitOnly) onFailure()        {}
func (AssignOnFailure) onFailure() {}
func (InvokeOnFailure) onFailure() {}
func (HaltSiblings) onFailure()    {}

// A Rule is a leaf predicate or action over one attribute of the NEW or
// CURRENT record.
type Rule struct {
	// A rule identifier, unique within its rule set. (required)
	ID string `json:"id"`

	// Name of the attribute the rule reads (and, for assignment
	// operators, writes).
	Attribute string `json:"attribute"`

	// The operator to apply.
	Op Op `json:"-"`

	// Negate inverts the operator's boolean verdict. It has no effect
	// on assignment and arithmetic operators.
	Negate bool `json:"negate,omitempty"`

	// Which record the rule reads from.
	Target Target `json:"target"`

	// Operator inputs, resolved before the operator is applied.
	Operands []Operand `json:"-"`
}

// Expected describes what the rule required, for failure reporting.
func (r *Rule) Expected() string {
	x := strings.Builder{}
	if r.Negate {
		x.WriteString("not ")
	}
	x.WriteString(r.Op.Name())
	for i, o := range r.Operands {
		if i == 0 {
			x.WriteString(" ")
		} else {
			x.WriteString(", ")
		}
		x.WriteString(o.String())
	}
	return x.String()
}

// A RuleSet is a node in the tree: a list of rules combined by Mode,
// plus child rule sets combined by AND, with a severity, an error
// message and an on-failure action.
type RuleSet struct {
	// A rule set identifier. (required)
	ID string `json:"id"`

	// Human description, carried into the report.
	Description string `json:"description,omitempty"`

	// How the verdicts of Rules combine.
	Mode Mode `json:"mode"`

	// Severity of a failure of this rule set.
	Severity Severity `json:"severity"`

	// Message recorded in the report when the rule set fails.
	ErrorMessage string `json:"error_message,omitempty"`

	// Action performed when the rule set fails. Nil means EmitOnly.
	OnFailure OnFailure `json:"-"`

	// The rules of this set, evaluated in declaration order.
	Rules []*Rule `json:"rules,omitempty"`

	// Child rule sets, traversed left to right. Parent links are not
	// stored; traversal passes the parent on the call stack.
	Children []*RuleSet `json:"children,omitempty"`
}

// NewRuleSet initializes a rule set with the ID and AND mode.
func NewRuleSet(id string) *RuleSet {
	return &RuleSet{ID: id}
}

// AddRule appends rules to the set, preserving declaration order.
func (s *RuleSet) AddRule(rules ...*Rule) error {
	for _, r := range rules {
		if r == nil {
			return fmt.Errorf("attempt to add nil rule to %s", s.ID)
		}
		s.Rules = append(s.Rules, r)
	}
	return nil
}

// AddChild appends child rule sets, preserving traversal order.
func (s *RuleSet) AddChild(children ...*RuleSet) error {
	for _, c := range children {
		if c == nil {
			return fmt.Errorf("attempt to add nil child to %s", s.ID)
		}
		s.Children = append(s.Children, c)
	}
	return nil
}

// Find returns the rule set with the id in s or any of its children,
// searched depth-first.
func (s *RuleSet) Find(id string) *RuleSet {
	if s == nil {
		return nil
	}
	if s.ID == id {
		return s
	}
	for _, c := range s.Children {
		if found := c.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// Apply applies the function f to the rule set and its children
// recursively, stopping at the first error.
func Apply(s *RuleSet, f func(*RuleSet) error) error {
	if err := f(s); err != nil {
		return err
	}
	for _, c := range s.Children {
		if err := Apply(c, f); err != nil {
			return err
		}
	}
	return nil
}

// A RuleTree is what the parser hands to the engine: a fully built root
// rule set plus the custom-operator sources the tree's rules refer to.
type RuleTree struct {
	root      *RuleSet
	customOps map[string]*Source
}

// NewRuleTree wraps a root rule set.
func NewRuleTree(root *RuleSet) *RuleTree {
	return &RuleTree{
		root:      root,
		customOps: map[string]*Source{},
	}
}

// Root returns the root rule set.
func (t *RuleTree) Root() *RuleSet {
	return t.root
}

// RegisterCustomOperator binds a custom operator name used by the tree's
// rules to its source. This is the tree's only mutation point; it is
// intended for the parser, before the tree is handed to an engine.
func (t *RuleTree) RegisterCustomOperator(name string, src *Source) error {
	if name == "" {
		return fmt.Errorf("%w: empty custom operator name", ErrSource)
	}
	if src == nil || src.Operator == nil {
		return fmt.Errorf("%w: custom operator %s has no implementation", ErrSource, name)
	}
	t.customOps[name] = src
	return nil
}

// CustomOperators returns the custom operator bindings registered on the
// tree.
func (t *RuleTree) CustomOperators() map[string]*Source {
	out := make(map[string]*Source, len(t.customOps))
	for k, v := range t.customOps {
		out[k] = v
	}
	return out
}

// Validate is the optional static pass over the tree: every rule's
// attribute must resolve in the catalog, every custom operator must be
// bound in the registry, ranges must carry two operands, and rule set
// ids must not repeat. Evaluation does not require this pass; callers
// that build trees by hand may want it.
func (t *RuleTree) Validate(catalog *Catalog, registry *SourceRegistry) error {
	seen := map[string]bool{}
	return Apply(t.root, func(s *RuleSet) error {
		if s.ID == "" {
			return fmt.Errorf("rule set with no id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate rule set id %s", s.ID)
		}
		seen[s.ID] = true
		for _, r := range s.Rules {
			if r.Op == nil {
				return fmt.Errorf("rule %s/%s has no operator", s.ID, r.ID)
			}
			if _, err := catalog.ByName(r.Attribute); err != nil {
				return fmt.Errorf("rule %s/%s: %w", s.ID, r.ID, err)
			}
			for _, o := range r.Operands {
				if ref, ok := o.(AttrRef); ok {
					if _, err := catalog.ByName(ref.Name); err != nil {
						return fmt.Errorf("rule %s/%s operand: %w", s.ID, r.ID, err)
					}
				}
			}
			switch op := r.Op.(type) {
			case Range:
				if len(r.Operands) != 2 {
					return fmt.Errorf("rule %s/%s: range needs exactly 2 operands, has %d", s.ID, r.ID, len(r.Operands))
				}
			case Arith:
				if len(op.Operators) != len(r.Operands)-1 {
					return fmt.Errorf("rule %s/%s: arithmetic shape mismatch", s.ID, r.ID)
				}
			case Custom:
				if len(r.Operands) > 4 {
					return fmt.Errorf("rule %s/%s: custom operators take at most 4 operands", s.ID, r.ID)
				}
				_, inTree := t.customOps[op.OpName]
				_, inRegistry := registry.OperatorSource(op.OpName)
				if !inTree && !inRegistry {
					return fmt.Errorf("rule %s/%s: custom operator %s is not bound", s.ID, r.ID, op.OpName)
				}
			}
		}
		return nil
	})
}

// String returns a table of all the rule sets in the hierarchy with
// their rules, in traversal order.
func (s *RuleSet) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nRULE TREE\n")
	tw.AppendHeader(table.Row{"\nRule Set", "\nMode", "\nSeverity", "\nRule", "\nAttribute", "\nOperator", "\nOperands"})

	for _, r := range s.rulesToRows(0) {
		tw.AppendRow(r)
	}

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

func (s *RuleSet) rulesToRows(n int) []table.Row {
	rows := []table.Row{}
	indent := strings.Repeat("  ", n)

	if len(s.Rules) == 0 {
		rows = append(rows, table.Row{indent + s.ID, s.Mode, s.Severity, "", "", "", ""})
	}
	for i, r := range s.Rules {
		setCol := ""
		modeCol, sevCol := "", ""
		if i == 0 {
			setCol = indent + s.ID
			modeCol = s.Mode.String()
			sevCol = s.Severity.String()
		}
		operands := make([]string, len(r.Operands))
		for j, o := range r.Operands {
			operands[j] = o.String()
		}
		rows = append(rows, table.Row{setCol, modeCol, sevCol, r.ID, r.Attribute, r.Op.Name(), strings.Join(operands, ", ")})
	}

	for _, c := range s.Children {
		rows = append(rows, c.rulesToRows(n+1)...)
	}
	return rows
}

// Tree returns a tree representation of the hierarchy showing only rule
// set ids. The tree uses box-drawing characters to visualize
// parent-child relationships. Recursion is limited to a maximum depth
// of 20 levels.
//
// Example output:
//
//	root
//	├── child_1
//	│   └── grandchild_1
//	└── child_2
func (s *RuleSet) Tree() string {
	if s == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(s.ID)
	sb.WriteString("\n")
	s.buildTree(&sb, "", 0)
	return sb.String()
}

func (s *RuleSet) buildTree(sb *strings.Builder, prefix string, depth int) {
	if depth >= 20 {
		return
	}
	for i, child := range s.Children {
		isLast := i == len(s.Children)-1
		var connector, childPrefix string
		if isLast {
			connector = "└── "
			childPrefix = "    "
		} else {
			connector = "├── "
			childPrefix = "│   "
		}
		sb.WriteString(prefix)
		sb.WriteString(connector)
		sb.WriteString(child.ID)
		sb.WriteString("\n")
		child.buildTree(sb, prefix+childPrefix, depth+1)
	}
}
