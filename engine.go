package ruletree

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// A RecordRetriever produces the stored "current" record for the keys
// extracted from an incoming product. Invoked once per Validate call.
type RecordRetriever interface {
	Retrieve(keys map[string]string) (*Product, error)
}

// RecordRetrieverFunc adapts a function to the RecordRetriever interface.
type RecordRetrieverFunc func(keys map[string]string) (*Product, error)

func (f RecordRetrieverFunc) Retrieve(keys map[string]string) (*Product, error) {
	return f(keys)
}

// Engine evaluates a rule tree against (incoming, current) record pairs.
// An engine is safe to reuse across sequential validations; concurrent
// validations need one engine each, because assignment rules mutate the
// incoming product and the transaction gate is per-caller state.
type Engine struct {
	tree     *RuleTree
	catalog  *Catalog
	registry *SourceRegistry
	gate     *TransactionGate
	records  RecordRetriever
	opts     EngineOptions
}

const defaultMaxDepth = 32

// See the functional definitions below for the meaning.
type EngineOptions struct {
	CollectDiagnostics bool
	Orchestrate        bool
	MaxDepth           int
}

type EngineOption func(e *Engine)

// WithCatalog attaches the attribute catalog used to resolve rule attributes
// and record keys. Without a catalog, any rule that names an attribute
// fails validation with a metadata error.
func WithCatalog(c *Catalog) EngineOption {
	return func(e *Engine) { e.catalog = c }
}

// WithSources attaches the source registry consulted for attribute
// sources and custom operators.
func WithSources(r *SourceRegistry) EngineOption {
	return func(e *Engine) { e.registry = r }
}

// WithGate attaches the transaction gate consulted before every
// validation. The gate's confirmations are cleared when Validate
// returns, on success and on error alike.
func WithGate(g *TransactionGate) EngineOption {
	return func(e *Engine) { e.gate = g }
}

// WithRecords attaches the retrieval contract for the stored "current"
// record. Without it, rules targeting CURRENT read from an empty record.
func WithRecords(r RecordRetriever) EngineOption {
	return func(e *Engine) { e.records = r }
}

// CollectDiagnostics makes the engine record a per-rule trace in the
// report. Default: off.
func CollectDiagnostics(b bool) EngineOption {
	return func(e *Engine) { e.opts.CollectDiagnostics = b }
}

// Orchestrate makes the engine assemble the current record from the
// registry's attribute sources after retrieval. Default: off.
func Orchestrate(b bool) EngineOption {
	return func(e *Engine) { e.opts.Orchestrate = b }
}

// MaxDepth limits how far the walk descends into child rule sets.
// Default: 32.
func MaxDepth(n int) EngineOption {
	return func(e *Engine) { e.opts.MaxDepth = n }
}

// NewEngine creates an engine around a parsed rule tree. Custom
// operators registered on the tree are merged into the engine's source
// registry.
func NewEngine(tree *RuleTree, opts ...EngineOption) (*Engine, error) {
	if tree == nil || tree.Root() == nil {
		return nil, fmt.Errorf("engine requires a rule tree with a root rule set")
	}

	e := &Engine{
		tree: tree,
		opts: EngineOptions{MaxDepth: defaultMaxDepth},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = NewSourceRegistry()
	}
	for name, src := range tree.CustomOperators() {
		if err := e.registry.BindOperator(name, src); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// walk carries the mutable state of one Validate call.
type walk struct {
	new        *Product
	current    *Product
	report     *Report
	severeSeen bool
}

// Validate evaluates the tree against the incoming product, producing a
// report. The incoming product is owned by the engine for the duration
// of the call; assignment and arithmetic rules write into it, and those
// writes are visible to rules evaluated later in the same walk.
//
// Pre-flight: every key attribute must have a non-empty value in the
// incoming product, and the transaction gate, if attached, must be
// confirmed. The gate's confirmations are cleared before Validate
// returns, whether it succeeds or not.
func (e *Engine) Validate(incoming *Product) (*Report, error) {
	if e.gate != nil {
		defer e.gate.RevokeAll()
	}

	if incoming == nil {
		return nil, fmt.Errorf("%w: nil incoming product", ErrInput)
	}

	keys, err := e.extractKeys(incoming)
	if err != nil {
		return nil, err
	}

	if e.gate != nil && !e.gate.IsConfirmed() {
		return nil, fmt.Errorf("%w: transaction gate not confirmed (score %d, minimum %d)",
			ErrPermission, e.gate.CurrentScore(), e.gate.MinScore())
	}

	current := NewProduct()
	if e.records != nil {
		current, err = e.records.Retrieve(keys)
		if err != nil {
			return nil, fmt.Errorf("%w: retrieving current record: %v", ErrSource, err)
		}
		if current == nil {
			current = NewProduct()
		}
	}
	if e.opts.Orchestrate {
		if err := e.registry.Assemble(e.catalog, current); err != nil {
			return nil, err
		}
	}

	w := &walk{
		new:     incoming,
		current: current,
		report:  &Report{EvaluationID: uuid.NewString()},
	}
	if e.opts.CollectDiagnostics {
		w.report.Diagnostics = &Diagnostics{}
	}

	if _, _, err := e.eval(w, e.tree.Root(), 0); err != nil {
		return nil, err
	}

	switch {
	case w.severeSeen:
		w.report.Severity = Severe
	case w.report.RuleSetsFailed > 0 || w.report.RulesFailed > 0:
		w.report.Severity = Warning
	default:
		w.report.Severity = Clean
	}
	return w.report, nil
}

// extractKeys reads row 0 of every key attribute's group from the
// incoming product. A missing or empty key value is an input error.
func (e *Engine) extractKeys(incoming *Product) (map[string]string, error) {
	keys := map[string]string{}
	if e.catalog == nil {
		return keys, nil
	}
	for _, k := range e.catalog.Keys() {
		v := incoming.Value(k)
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: missing value for key attribute %s", ErrInput, k.Name)
		}
		keys[k.Name] = v
	}
	return keys, nil
}

// eval recursively evaluates the rule set and its children, depth-first,
// left to right. Returns the rule set's verdict and whether its failure
// action halts its remaining siblings.
func (e *Engine) eval(w *walk, s *RuleSet, depth int) (pass bool, halt bool, err error) {
	if depth > e.opts.MaxDepth {
		return true, false, nil
	}

	// A rule set moves through three phases: its own rules, then its
	// children, then the decision. The decision carries the verdict and
	// the failure records.
	res := RuleSetResult{
		RuleSetID:   s.ID,
		Description: s.Description,
		Severity:    Clean,
	}

	// Reserve the rule set's pre-order slot in the report; the verdict
	// is filled in after the children are decided.
	slot := len(w.report.RuleSets)
	w.report.RuleSets = append(w.report.RuleSets, res)
	w.report.RuleSetsEvaluated++

	rulesPassed := 0
	for _, r := range s.Rules {
		outcome, err := e.applyRule(w, s, r)
		if err != nil {
			return false, false, err
		}
		w.report.RulesEvaluated++
		if outcome.severe {
			w.severeSeen = true
		}
		if outcome.pass {
			rulesPassed++
		} else {
			w.report.RulesFailed++
			res.Failures = append(res.Failures, RuleFailure{
				RuleSetID: s.ID,
				RuleID:    r.ID,
				Attribute: r.Attribute,
				Observed:  outcome.observed,
				Expected:  r.Expected(),
				Operator:  r.Op.Name(),
				Severe:    outcome.severe,
			})
		}
		w.report.Diagnostics.add(DiagnosticLine{
			RuleSetID: s.ID,
			RuleID:    r.ID,
			Operator:  r.Op.Name(),
			Target:    r.Target,
			Observed:  outcome.observed,
			Pass:      outcome.pass,
		})
	}

	var rulesPass bool
	switch s.Mode {
	case ModeOr:
		rulesPass = rulesPassed > 0
	default:
		rulesPass = rulesPassed == len(s.Rules)
	}

	// An OR set reports a single representative failure; if it passed,
	// the provisional failures are dropped.
	if s.Mode == ModeOr && len(res.Failures) > 0 {
		if rulesPass {
			res.Failures = nil
		} else {
			res.Failures = res.Failures[:1]
		}
	}
	w.report.Failures = append(w.report.Failures, res.Failures...)

	childrenPass := true
	for _, c := range s.Children {
		cp, chalt, err := e.eval(w, c, depth+1)
		if err != nil {
			return false, false, err
		}
		if !cp {
			childrenPass = false
		}
		if chalt {
			break
		}
	}

	res.Pass = rulesPass && childrenPass
	if !res.Pass {
		w.report.RuleSetsFailed++
		res.Severity = s.Severity
		if res.Severity == Clean {
			res.Severity = Warning
		}
		if res.Severity == Severe {
			w.severeSeen = true
		}
		res.ErrorMessage = s.ErrorMessage
		halt, err = e.onFailure(w, s, &res)
		if err != nil {
			return false, false, err
		}
	}
	w.report.RuleSets[slot] = res
	return res.Pass, halt, nil
}

// onFailure performs the rule set's failure action. The halt flag is
// consulted by the parent; it is not propagated further up.
func (e *Engine) onFailure(w *walk, s *RuleSet, res *RuleSetResult) (bool, error) {
	switch a := s.OnFailure.(type) {
	case nil, EmitOnly:
		return false, nil
	case AssignOnFailure:
		attr, err := e.attribute(a.Attr)
		if err != nil {
			return false, err
		}
		w.new.Set(attr, a.Value)
		return false, nil
	case InvokeOnFailure:
		if _, err := e.registry.Invoke(a.OpName, a.Attr, a.Args); err != nil {
			return false, err
		}
		return false, nil
	case HaltSiblings:
		res.Halted = true
		return true, nil
	default:
		return false, fmt.Errorf("rule set %s: unknown failure action %T", s.ID, s.OnFailure)
	}
}

// ruleOutcome is the result of applying one rule.
type ruleOutcome struct {
	pass     bool
	severe   bool
	observed string
}

// applyRule resolves the rule's operands and applies its operator.
// Metadata and source resolution failures are fatal to the walk;
// numeric parse failures and malformed custom verdicts fail the rule
// severely but let the walk continue.
func (e *Engine) applyRule(w *walk, s *RuleSet, r *Rule) (ruleOutcome, error) {
	attr, err := e.attribute(r.Attribute)
	if err != nil {
		return ruleOutcome{}, fmt.Errorf("rule %s/%s: %w", s.ID, r.ID, err)
	}

	rec := w.new
	if r.Target == TargetCurrent {
		rec = w.current
	}
	observed := rec.Value(attr)

	operands, err := e.resolveOperands(rec, r)
	if err != nil {
		return ruleOutcome{}, fmt.Errorf("rule %s/%s: %w", s.ID, r.ID, err)
	}

	out := ruleOutcome{observed: observed}

	switch op := r.Op.(type) {
	case Populated:
		out.pass = strings.TrimSpace(observed) != ""

	case Blank:
		out.pass = strings.TrimSpace(observed) == ""

	case Compare:
		if len(operands) < 1 {
			return out, fmt.Errorf("rule %s/%s: comparison with no operand", s.ID, r.ID)
		}
		pass, cerr := compareKind(op.Cmp, attr.Kind, observed, operands[0])
		if cerr != nil {
			out.severe = true
			out.pass = false
		} else {
			out.pass = pass
		}

	case InSet:
		out.pass = false
		for _, v := range operands {
			if observed == v {
				out.pass = true
				break
			}
		}

	case Range:
		if len(operands) != 2 {
			return out, fmt.Errorf("rule %s/%s: range needs 2 operands, has %d", s.ID, r.ID, len(operands))
		}
		v, verr := parseDecimal(observed)
		lo, loerr := parseDecimal(operands[0])
		hi, hierr := parseDecimal(operands[1])
		if verr != nil || loerr != nil || hierr != nil {
			out.severe = true
			out.pass = false
		} else if lo > hi {
			out.pass = false
		} else {
			out.pass = lo <= v && v <= hi
		}

	case Arith:
		v, aerr := evalArith(op.Operators, operands)
		if aerr != nil {
			out.severe = true
			out.pass = false
		} else {
			w.new.Set(attr, formatDecimal(v))
			out.pass = true
		}
		return out, nil // assignments are never negated

	case Assign:
		if len(operands) < 1 {
			return out, fmt.Errorf("rule %s/%s: assignment with no operand", s.ID, r.ID)
		}
		w.new.Set(attr, operands[0])
		out.pass = true
		return out, nil

	case Custom:
		if len(operands) > 4 {
			return out, fmt.Errorf("rule %s/%s: custom operators take at most 4 operands", s.ID, r.ID)
		}
		var args [4]string
		copy(args[:], operands)
		v, ierr := e.registry.Invoke(op.OpName, r.Attribute, args)
		if ierr != nil {
			return out, fmt.Errorf("rule %s/%s: %w", s.ID, r.ID, ierr)
		}
		out.pass, out.severe = customVerdict(v)

	default:
		return out, fmt.Errorf("rule %s/%s: unknown operator %T", s.ID, r.ID, r.Op)
	}

	if r.Negate && !out.severe {
		out.pass = !out.pass
	}
	return out, nil
}

// resolveOperands turns the rule's operand list into strings. Literals
// pass through, attribute references read row 0 of the rule's target
// record, source callouts invoke the registry.
func (e *Engine) resolveOperands(rec *Product, r *Rule) ([]string, error) {
	out := make([]string, 0, len(r.Operands))
	for _, o := range r.Operands {
		switch v := o.(type) {
		case Literal:
			out = append(out, string(v))
		case AttrRef:
			attr, err := e.attribute(v.Name)
			if err != nil {
				return nil, err
			}
			out = append(out, rec.Value(attr))
		case SourceRef:
			src, ok := e.registry.AttributeSource(v.Name)
			if !ok {
				return nil, fmt.Errorf("%w: no source bound for %s", ErrSource, v.Name)
			}
			s, err := src.Retriever.Retrieve(src, v.Name)
			if err != nil {
				return nil, fmt.Errorf("%w: retrieving %s from %s: %v", ErrSource, v.Name, src.Name, err)
			}
			out = append(out, s)
		default:
			return nil, fmt.Errorf("unknown operand type %T", o)
		}
	}
	return out, nil
}

func (e *Engine) attribute(name string) (Attribute, error) {
	if e.catalog == nil {
		return Attribute{}, fmt.Errorf("%w: no catalog attached, cannot resolve %s", ErrMetadata, name)
	}
	return e.catalog.ByName(name)
}
