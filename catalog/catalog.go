// Package catalog holds the promotion package price list and the tiered fee
// table. Prices are denominated in USD; conversion to a native amount happens
// once at request creation from the oracle snapshot.
package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Package describes a purchasable promotion placement.
type Package struct {
	Type        string
	Name        string
	Description string
	Prices      map[string]float64
}

// Durations supported by every package.
const (
	Duration24h = "24h"
	Duration7d  = "7d"
	Duration30d = "30d"
)

var packages = map[string]Package{
	"featured_token": {
		Type:        "featured_token",
		Name:        "Featured Token Slot",
		Description: "Prominent placement on homepage",
		Prices:      map[string]float64{Duration24h: 16.75, Duration7d: 94.00, Duration30d: 377.00},
	},
	"trending_boost": {
		Type:        "trending_boost",
		Name:        "Trending Boost (6h visible)",
		Description: "Badge in token feed",
		Prices:      map[string]float64{Duration24h: 6.15, Duration7d: 26.00, Duration30d: 86.00},
	},
	"pinned_card": {
		Type:        "pinned_card",
		Name:        "Pinned Token Card",
		Description: "Fixed position #1 in listings",
		Prices:      map[string]float64{Duration24h: 13.25, Duration7d: 80.00, Duration30d: 319.00},
	},
	"hero_banner": {
		Type:        "hero_banner",
		Name:        "Homepage Hero Banner",
		Description: "Large hero block on homepage",
		Prices:      map[string]float64{Duration24h: 25.50, Duration7d: 153.00, Duration30d: 489.00},
	},
}

// Lookup returns the package definition for the supplied type.
func Lookup(packageType string) (Package, bool) {
	pkg, ok := packages[strings.TrimSpace(packageType)]
	return pkg, ok
}

// All returns every package sorted by type for stable rendering.
func All() []Package {
	out := make([]Package, 0, len(packages))
	for _, pkg := range packages {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Price resolves the USD catalog price for a package and duration.
func Price(packageType, duration string) (float64, error) {
	pkg, ok := Lookup(packageType)
	if !ok {
		return 0, fmt.Errorf("catalog: invalid package %q", packageType)
	}
	price, ok := pkg.Prices[strings.TrimSpace(duration)]
	if !ok {
		return 0, fmt.Errorf("catalog: invalid duration %q for package %s", duration, pkg.Type)
	}
	return price, nil
}

// DurationHours converts a catalog duration into hours. Unknown durations
// resolve to 24 hours; validation happens before requests enter the store.
func DurationHours(duration string) int {
	switch strings.TrimSpace(duration) {
	case Duration24h:
		return 24
	case Duration7d:
		return 24 * 7
	case Duration30d:
		return 24 * 30
	}
	return 24
}

// Fee tiers keyed on the USD trade amount of the current purchase only. The
// platform holds no user history, so there is no volume discounting beyond
// the single amount.
type feeTier struct {
	id  string
	min float64
	max float64
	pct float64
}

var feeTiers = []feeTier{
	{id: "T1_0_1k", min: 0, max: 1_000, pct: 0.35},
	{id: "T2_1k_5k", min: 1_000, max: 5_000, pct: 0.30},
	{id: "T3_5k_10k", min: 5_000, max: 10_000, pct: 0.25},
	{id: "T4_10k_50k", min: 10_000, max: 50_000, pct: 0.20},
	{id: "T5_50k_100k", min: 50_000, max: 100_000, pct: 0.15},
	{id: "T6_100k_plus", min: 100_000, max: math.Inf(1), pct: 0.10},
}

// maxFeePercent is a hard safety cap on any computed fee percentage.
const maxFeePercent = 1.0

// PriceTier resolves the fee tier for a USD amount, returning the tier
// identifier and the fee percent. Negative amounts are rejected.
func PriceTier(usdAmount float64) (string, float64, error) {
	if usdAmount < 0 {
		return "", 0, fmt.Errorf("catalog: usd amount cannot be negative")
	}
	for _, tier := range feeTiers {
		if usdAmount >= tier.min && usdAmount < tier.max {
			pct := tier.pct
			if pct > maxFeePercent {
				pct = maxFeePercent
			}
			return tier.id, pct, nil
		}
	}
	last := feeTiers[len(feeTiers)-1]
	return last.id, last.pct, nil
}
