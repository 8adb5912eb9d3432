package watcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const xrpCollector = "rLHzPsX6oXkzU2qL12kHCH8G8cnZv1rBJh"

func newXRPLServer(t *testing.T, transactions []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Method != "account_tx" {
			t.Fatalf("unexpected method %q", body.Method)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"status":       "success",
				"transactions": transactions,
			},
		})
	}))
}

func xrplPayment(hash, destination, drops string, date int64, validated bool) map[string]interface{} {
	return map[string]interface{}{
		"validated": validated,
		"tx": map[string]interface{}{
			"TransactionType": "Payment",
			"Destination":     destination,
			"Amount":          drops,
			"hash":            hash,
			"date":            date,
		},
	}
}

func TestXRPFindPayment(t *testing.T) {
	since := time.Now().Add(-10 * time.Minute)
	recent := time.Now().Add(-time.Minute).Unix() - rippleEpochOffset

	transactions := []map[string]interface{}{
		xrplPayment("HASH_UNVALIDATED", xrpCollector, "47272727", recent, false),
		xrplPayment("HASH_WRONG_DEST", "rOtherAccount111111111111111111111", "47272727", recent, true),
		xrplPayment("HASH_OLD", xrpCollector, "47272727", since.Add(-time.Hour).Unix()-rippleEpochOffset, true),
		{
			// Issued-currency payments carry an Amount object and are skipped.
			"validated": true,
			"tx": map[string]interface{}{
				"TransactionType": "Payment",
				"Destination":     xrpCollector,
				"Amount":          map[string]interface{}{"currency": "USD", "value": "47.27", "issuer": "rIssuer"},
				"hash":            "HASH_IOU",
				"date":            recent,
			},
		},
		xrplPayment("HASH_MATCH", xrpCollector, "47272727", recent, true),
	}
	srv := newXRPLServer(t, transactions)
	defer srv.Close()

	w := NewXRPWatcher(srv.URL, XRPLConfig{ToleranceBps: 100})
	tx, err := w.FindPayment(context.Background(), xrpCollector, 47.272727, since)
	if err != nil {
		t.Fatalf("find payment: %v", err)
	}
	if tx != "HASH_MATCH" {
		t.Fatalf("tx = %q, want HASH_MATCH", tx)
	}
}

func TestXRPFindPaymentToleranceBoundary(t *testing.T) {
	since := time.Now().Add(-10 * time.Minute)
	recent := time.Now().Unix() - rippleEpochOffset

	// Expected 1 XRP = 1,000,000 drops; 1,010,001 drops sits just past +1%.
	transactions := []map[string]interface{}{
		xrplPayment("HASH_TOO_MUCH", xrpCollector, "1010001", recent, true),
	}
	srv := newXRPLServer(t, transactions)
	defer srv.Close()

	w := NewXRPWatcher(srv.URL, XRPLConfig{ToleranceBps: 100})
	tx, err := w.FindPayment(context.Background(), xrpCollector, 1.0, since)
	if err != nil {
		t.Fatalf("find payment: %v", err)
	}
	if tx != "" {
		t.Fatalf("tx = %q, want no match outside tolerance", tx)
	}
}

func TestXRPFindPaymentErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"status": "error"},
		})
	}))
	defer srv.Close()

	w := NewXRPWatcher(srv.URL, XRPLConfig{})
	if _, err := w.FindPayment(context.Background(), xrpCollector, 1.0, time.Now()); err == nil {
		t.Fatal("expected error result to fail the scan")
	}
}
