package watcher

import (
	"testing"

	"promogate/models"
)

func TestToleranceBps(t *testing.T) {
	if got := ToleranceBps(1.0); got != 100 {
		t.Fatalf("ToleranceBps(1.0) = %d, want 100", got)
	}
	if got := ToleranceBps(0.5); got != 50 {
		t.Fatalf("ToleranceBps(0.5) = %d, want 50", got)
	}
	if got := ToleranceBps(0); got != 0 {
		t.Fatalf("ToleranceBps(0) = %d, want 0", got)
	}
}

func TestWithinTolerance(t *testing.T) {
	const expected = 1_000_000 // 1 XRP in drops
	cases := []struct {
		observed uint64
		want     bool
	}{
		{expected, true},
		{expected + 10_000, true},  // exactly +1%
		{expected - 10_000, true},  // exactly -1%
		{expected + 10_001, false}, // just past +1%
		{expected - 10_001, false}, // just past -1%
		{0, false},
	}
	for _, tc := range cases {
		if got := withinTolerance(tc.observed, expected, 100); got != tc.want {
			t.Fatalf("withinTolerance(%d, %d, 100) = %v, want %v", tc.observed, expected, got, tc.want)
		}
	}
}

func TestWithinToleranceZeroExpected(t *testing.T) {
	if withinTolerance(0, 0, 100) {
		t.Fatal("zero expected amount must never match")
	}
}

func TestWithinToleranceLargeAmounts(t *testing.T) {
	// 10,000 ETH in wei would overflow a naive expected*bps product.
	const expected = uint64(10_000_000_000_000_000_000)
	if !withinTolerance(expected+expected/100, expected, 100) {
		t.Fatal("exactly +1% of a large amount should match")
	}
	if withinTolerance(expected+expected/100+expected/1000, expected, 100) {
		t.Fatal("+1.1% of a large amount should not match")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup(models.ChainSolana); ok {
		t.Fatal("empty registry should not resolve")
	}
	w := NewSolanaWatcher("https://example.invalid", SolanaConfig{})
	r.Register(models.ChainSolana, w)
	r.Register(models.Chain("dogecoin"), w) // invalid chains are ignored

	if got, ok := r.Lookup(models.ChainSolana); !ok || got != Watcher(w) {
		t.Fatal("registered watcher should resolve")
	}
	chains := r.Chains()
	if len(chains) != 1 || chains[0] != models.ChainSolana {
		t.Fatalf("chains = %v, want [solana]", chains)
	}
}

func TestHTTPEndpointNormalisesWebsocket(t *testing.T) {
	cases := map[string]string{
		"wss://rpc.example.com":  "https://rpc.example.com",
		"ws://rpc.example.com":   "http://rpc.example.com",
		" https://rpc.test.io ":  "https://rpc.test.io",
		"http://rpc.example.com": "http://rpc.example.com",
	}
	for in, want := range cases {
		if got := httpEndpoint(in); got != want {
			t.Fatalf("httpEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
