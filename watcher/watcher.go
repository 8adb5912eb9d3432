// Package watcher implements per-chain payment detection. Each ledger exposes
// payment history through a differently shaped API, so every chain family has
// its own implementation behind the single FindPayment capability. All
// chain-reported data is advisory until it passes the tolerance match; scan
// windows are bounded for cost control, so a payment outside the window is
// "not yet found" rather than an error.
package watcher

import (
	"context"
	"sort"
	"time"

	"promogate/models"
)

// Watcher looks for a direct-value transfer to the collector address matching
// the expected amount within tolerance. Implementations return an empty
// transaction id (not an error) when no match exists; errors are reserved for
// transport failures, which callers treat as "try again next cycle".
type Watcher interface {
	FindPayment(ctx context.Context, address string, expectedAmount float64, since time.Time) (string, error)
}

// Registry maps each chain to its watcher. Built once at startup; lookups
// replace any per-request branching on the chain value.
type Registry struct {
	watchers map[models.Chain]Watcher
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{watchers: make(map[models.Chain]Watcher)}
}

// Register binds a watcher to a chain, replacing any previous binding.
func (r *Registry) Register(chain models.Chain, w Watcher) {
	if r == nil || w == nil || !chain.Valid() {
		return
	}
	r.watchers[chain] = w
}

// Lookup resolves the watcher for a chain.
func (r *Registry) Lookup(chain models.Chain) (Watcher, bool) {
	if r == nil {
		return nil, false
	}
	w, ok := r.watchers[chain]
	return w, ok
}

// Chains lists the registered chains in a stable order.
func (r *Registry) Chains() []models.Chain {
	if r == nil {
		return nil
	}
	chains := make([]models.Chain, 0, len(r.watchers))
	for chain := range r.watchers {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// ToleranceBps converts a percentage tolerance into basis points.
func ToleranceBps(percent float64) uint64 {
	if percent <= 0 {
		return 0
	}
	return uint64(percent * 100)
}

// withinTolerance reports whether observed is within toleranceBps of expected,
// both in the chain's smallest unit.
func withinTolerance(observed, expected uint64, toleranceBps uint64) bool {
	if expected == 0 {
		return false
	}
	tolerance := expected / 10000 * toleranceBps
	if rem := expected % 10000; rem > 0 {
		tolerance += rem * toleranceBps / 10000
	}
	var diff uint64
	if observed >= expected {
		diff = observed - expected
	} else {
		diff = expected - observed
	}
	return diff <= tolerance
}
