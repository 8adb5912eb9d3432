package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const solCollector = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

// newSolanaRPC serves getSignaturesForAddress and getTransaction from the
// supplied fixtures.
func newSolanaRPC(t *testing.T, signatures interface{}, transactions map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		var result interface{}
		switch req.Method {
		case "getSignaturesForAddress":
			result = signatures
		case "getTransaction":
			sig, _ := req.Params[0].(string)
			tx, ok := transactions[sig]
			if !ok {
				t.Fatalf("unexpected getTransaction for %q", sig)
			}
			result = tx
		default:
			t.Fatalf("unexpected rpc method %q", req.Method)
		}
		raw, err := json.Marshal(result)
		if err != nil {
			t.Fatalf("marshal result: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  json.RawMessage(raw),
		})
	}))
}

func solanaTxFixture(collector string, pre, post uint64, blockTime int64) map[string]interface{} {
	return map[string]interface{}{
		"blockTime": blockTime,
		"meta": map[string]interface{}{
			"err":          nil,
			"preBalances":  []uint64{5_000_000_000, pre},
			"postBalances": []uint64{4_000_000_000, post},
		},
		"transaction": map[string]interface{}{
			"message": map[string]interface{}{
				"accountKeys": []string{"SenderPubkey1111111111111111111111111111111", collector},
			},
		},
	}
}

func TestSolanaFindPayment(t *testing.T) {
	since := time.Now().Add(-10 * time.Minute)
	blockTime := time.Now().Add(-time.Minute).Unix()

	signatures := []map[string]interface{}{
		{"signature": "sigFailed", "blockTime": blockTime, "err": map[string]interface{}{"InstructionError": []interface{}{}}},
		{"signature": "sigOld", "blockTime": since.Add(-time.Hour).Unix(), "err": nil},
		{"signature": "sigMatch", "blockTime": blockTime, "err": nil},
	}
	transactions := map[string]interface{}{
		// 0.08375 SOL received, within 1% of expectation.
		"sigMatch": solanaTxFixture(solCollector, 1_000_000_000, 1_083_750_000, blockTime),
	}
	srv := newSolanaRPC(t, signatures, transactions)
	defer srv.Close()

	w := NewSolanaWatcher(srv.URL, SolanaConfig{SignatureLimit: 10, ToleranceBps: 100})
	tx, err := w.FindPayment(context.Background(), solCollector, 0.08375, since)
	if err != nil {
		t.Fatalf("find payment: %v", err)
	}
	if tx != "sigMatch" {
		t.Fatalf("tx = %q, want sigMatch", tx)
	}
}

func TestSolanaFindPaymentNoMatch(t *testing.T) {
	since := time.Now().Add(-10 * time.Minute)
	blockTime := time.Now().Add(-time.Minute).Unix()

	signatures := []map[string]interface{}{
		{"signature": "sigSmall", "blockTime": blockTime, "err": nil},
	}
	transactions := map[string]interface{}{
		// Received half the expected amount.
		"sigSmall": solanaTxFixture(solCollector, 1_000_000_000, 1_041_875_000, blockTime),
	}
	srv := newSolanaRPC(t, signatures, transactions)
	defer srv.Close()

	w := NewSolanaWatcher(srv.URL, SolanaConfig{ToleranceBps: 100})
	tx, err := w.FindPayment(context.Background(), solCollector, 0.08375, since)
	if err != nil {
		t.Fatalf("find payment: %v", err)
	}
	if tx != "" {
		t.Fatalf("tx = %q, want no match", tx)
	}
}

func TestSolanaFindPaymentTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewSolanaWatcher(srv.URL, SolanaConfig{})
	if _, err := w.FindPayment(context.Background(), solCollector, 1.0, time.Now()); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestSolanaFindPaymentRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"node is behind"}}`)
	}))
	defer srv.Close()

	w := NewSolanaWatcher(srv.URL, SolanaConfig{})
	if _, err := w.FindPayment(context.Background(), solCollector, 1.0, time.Now()); err == nil {
		t.Fatal("expected rpc error")
	}
}
