package ruletree

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Vault provides lock-free reads of a hot-reloadable rule tree. Readers
// (engines) take the current immutable root with CurrentTree; writers
// apply batches of mutations, which build a fresh tree and swap it in
// atomically. A reader mid-validation keeps the tree it started with.
type Vault struct {
	root atomic.Pointer[RuleTree]

	// Serializes writers; readers never take it.
	mu sync.Mutex
}

// A TreeMutation defines a single change to the rule tree.
type TreeMutation struct {
	// Required; id of the rule set being changed or added.
	ID string

	// RuleSet is the new rule set that will replace an existing one or
	// be added to the parent. If RuleSet is nil, the rule set with ID
	// is deleted.
	RuleSet *RuleSet

	// Parent id; required for adds, ignored for replaces and deletes.
	Parent string
}

// NewVault creates a vault around an initial tree. If nil, a tree with
// an empty root rule set with id "root" is created.
func NewVault(initial *RuleTree) *Vault {
	if initial == nil {
		initial = NewRuleTree(NewRuleSet("root"))
	}
	v := &Vault{}
	v.root.Store(initial)
	return v
}

// CurrentTree returns the current immutable tree for evaluation or
// inspection.
func (v *Vault) CurrentTree() *RuleTree {
	return v.root.Load()
}

// ApplyMutations makes the changes to the tree stored in the vault.
// The whole batch succeeds or fails together; on error the stored tree
// is unchanged.
func (v *Vault) ApplyMutations(mutations []TreeMutation) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	old := v.root.Load()
	next := copyRuleSet(old.Root())

	for _, m := range mutations {
		if m.ID == "" {
			return fmt.Errorf("mutation with no rule set id")
		}
		switch {
		case m.RuleSet == nil:
			if next.ID == m.ID {
				return fmt.Errorf("deleting rule set %s: cannot delete the root", m.ID)
			}
			if !deleteChild(next, m.ID) {
				return fmt.Errorf("deleting rule set %s: not found", m.ID)
			}
		case next.Find(m.ID) != nil:
			if next.ID == m.ID {
				next = copyRuleSet(m.RuleSet)
				continue
			}
			if !replaceChild(next, m.ID, copyRuleSet(m.RuleSet)) {
				return fmt.Errorf("replacing rule set %s: not found", m.ID)
			}
		default:
			parent := next.Find(m.Parent)
			if parent == nil {
				return fmt.Errorf("adding rule set %s: parent %s not found", m.ID, m.Parent)
			}
			parent.Children = append(parent.Children, copyRuleSet(m.RuleSet))
		}
	}

	tree := NewRuleTree(next)
	for name, src := range old.CustomOperators() {
		tree.customOps[name] = src
	}
	v.root.Store(tree)
	return nil
}

// copyRuleSet deep-copies the rule set hierarchy. Rules themselves are
// shared; they are immutable once built.
func copyRuleSet(s *RuleSet) *RuleSet {
	if s == nil {
		return nil
	}
	c := *s
	c.Rules = make([]*Rule, len(s.Rules))
	copy(c.Rules, s.Rules)
	c.Children = make([]*RuleSet, len(s.Children))
	for i, child := range s.Children {
		c.Children[i] = copyRuleSet(child)
	}
	return &c
}

func deleteChild(s *RuleSet, id string) bool {
	for i, c := range s.Children {
		if c.ID == id {
			s.Children = append(s.Children[:i], s.Children[i+1:]...)
			return true
		}
		if deleteChild(c, id) {
			return true
		}
	}
	return false
}

func replaceChild(s *RuleSet, id string, n *RuleSet) bool {
	for i, c := range s.Children {
		if c.ID == id {
			s.Children[i] = n
			return true
		}
		if replaceChild(c, id, n) {
			return true
		}
	}
	return false
}
