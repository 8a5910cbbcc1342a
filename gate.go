package ruletree

import (
	"fmt"
	"sync"
)

// maxOwners bounds the ledger size.
const maxOwners = 250

// TransactionGate is a weighted-owner confirmation ledger consulted
// before every validation: the gate is confirmed when the summed weight
// of confirming owners reaches the minimum score.
//
// The gate is the only component whose state is observable across
// validations. Every Validate call clears all confirmations on exit,
// so owners must confirm again between evaluations. All methods are
// safe for concurrent use.
type TransactionGate struct {
	mu        sync.Mutex
	weights   map[string]uint32
	confirmed map[string]bool
	minScore  uint32
	minSet    bool
}

// NewTransactionGate creates an empty gate. Until SetMinScore is
// called, the minimum score defaults to half the owner count, rounded
// down.
func NewTransactionGate() *TransactionGate {
	return &TransactionGate{
		weights:   map[string]uint32{},
		confirmed: map[string]bool{},
	}
}

// AddOwner registers an owner with the given weight. A weight of zero
// is recorded as one.
func (g *TransactionGate) AddOwner(id string, weight uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == "" {
		return fmt.Errorf("%w: empty owner id", ErrPermission)
	}
	if _, ok := g.weights[id]; ok {
		return fmt.Errorf("%w: owner %s already registered", ErrPermission, id)
	}
	if len(g.weights) >= maxOwners {
		return fmt.Errorf("%w: owner limit of %d reached", ErrPermission, maxOwners)
	}
	if weight == 0 {
		weight = 1
	}
	g.weights[id] = weight
	g.confirmed[id] = false
	return nil
}

// RemoveOwner deletes an owner and its confirmation.
func (g *TransactionGate) RemoveOwner(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.require(id); err != nil {
		return err
	}
	delete(g.weights, id)
	delete(g.confirmed, id)
	return nil
}

// Confirm marks the owner as confirming.
func (g *TransactionGate) Confirm(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.require(id); err != nil {
		return err
	}
	g.confirmed[id] = true
	return nil
}

// Revoke withdraws the owner's confirmation.
func (g *TransactionGate) Revoke(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.require(id); err != nil {
		return err
	}
	g.confirmed[id] = false
	return nil
}

// RevokeAll withdraws every confirmation, leaving owners and weights
// intact. The engine calls this when a validation finishes.
func (g *TransactionGate) RevokeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id := range g.confirmed {
		g.confirmed[id] = false
	}
}

// SetMinScore fixes the score the confirming weights must reach.
func (g *TransactionGate) SetMinScore(n uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n < 1 {
		return fmt.Errorf("%w: minimum score must be at least 1", ErrPermission)
	}
	g.minScore = n
	g.minSet = true
	return nil
}

// MinScore returns the effective minimum score: the value set with
// SetMinScore, or half the owner count rounded down when unset.
func (g *TransactionGate) MinScore() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minScoreLocked()
}

func (g *TransactionGate) minScoreLocked() uint32 {
	if g.minSet {
		return g.minScore
	}
	return uint32(len(g.weights) / 2)
}

// CurrentScore sums the weights of confirming owners.
func (g *TransactionGate) CurrentScore() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scoreLocked()
}

func (g *TransactionGate) scoreLocked() uint32 {
	var score uint32
	for id, ok := range g.confirmed {
		if ok {
			score += g.weights[id]
		}
	}
	return score
}

// IsConfirmed reports whether the confirming weights reach the minimum
// score.
func (g *TransactionGate) IsConfirmed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scoreLocked() >= g.minScoreLocked()
}

// OwnerCount returns the number of registered owners.
func (g *TransactionGate) OwnerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.weights)
}

// Confirmed reports the owner's confirmation state.
func (g *TransactionGate) Confirmed(id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.require(id); err != nil {
		return false, err
	}
	return g.confirmed[id], nil
}

func (g *TransactionGate) require(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty owner id", ErrPermission)
	}
	if _, ok := g.weights[id]; !ok {
		return fmt.Errorf("%w: unknown owner %s", ErrPermission, id)
	}
	return nil
}
