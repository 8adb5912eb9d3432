package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// dropsPerXRP scales a native XRP amount into drops.
const dropsPerXRP = 1_000_000

// rippleEpochOffset converts the XRPL close-time epoch (2000-01-01) to Unix.
const rippleEpochOffset = 946684800

// XRPLConfig tunes the account-transaction scan.
type XRPLConfig struct {
	// TransactionLimit bounds how many recent ledger transactions are fetched.
	TransactionLimit int
	// ToleranceBps is the amount-match tolerance in basis points.
	ToleranceBps uint64
	// Timeout applies to each RPC call.
	Timeout time.Duration
}

// XRPWatcher fetches the collector account's transaction history and matches
// validated Payment transactions by destination and drop amount.
type XRPWatcher struct {
	url          string
	httpClient   *http.Client
	limit        int
	toleranceBps uint64
}

// NewXRPWatcher constructs a watcher against an XRPL JSON-RPC endpoint.
func NewXRPWatcher(endpoint string, cfg XRPLConfig) *XRPWatcher {
	limit := cfg.TransactionLimit
	if limit <= 0 {
		limit = 50
	}
	tolerance := cfg.ToleranceBps
	if tolerance == 0 {
		tolerance = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &XRPWatcher{
		url:          httpEndpoint(endpoint),
		httpClient:   &http.Client{Timeout: timeout},
		limit:        limit,
		toleranceBps: tolerance,
	}
}

type xrplTx struct {
	TransactionType string          `json:"TransactionType"`
	Destination     string          `json:"Destination"`
	Amount          json.RawMessage `json:"Amount"`
	Hash            string          `json:"hash"`
	Date            int64           `json:"date"`
}

type xrplAccountTxResult struct {
	Status       string `json:"status"`
	Transactions []struct {
		Tx        xrplTx `json:"tx"`
		Validated bool   `json:"validated"`
	} `json:"transactions"`
}

// FindPayment implements the Watcher capability for the XRP Ledger.
func (w *XRPWatcher) FindPayment(ctx context.Context, address string, expectedAmount float64, since time.Time) (string, error) {
	if w == nil || w.httpClient == nil {
		return "", fmt.Errorf("watcher: xrpl client not configured")
	}
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", fmt.Errorf("watcher: xrpl address required")
	}

	result, err := w.accountTx(ctx, trimmed)
	if err != nil {
		return "", err
	}

	expectedDrops := uint64(math.Round(expectedAmount * dropsPerXRP))
	sinceRipple := since.Unix() - rippleEpochOffset

	for _, wrapper := range result.Transactions {
		tx := wrapper.Tx
		if !wrapper.Validated || tx.TransactionType != "Payment" {
			continue
		}
		if tx.Destination != trimmed {
			continue
		}
		if tx.Date > 0 && tx.Date < sinceRipple {
			continue
		}
		// Native XRP amounts arrive as a drop string; issued-currency amounts
		// are objects and are not direct value transfers.
		var dropStr string
		if err := json.Unmarshal(tx.Amount, &dropStr); err != nil {
			continue
		}
		drops, err := strconv.ParseUint(dropStr, 10, 64)
		if err != nil {
			continue
		}
		if withinTolerance(drops, expectedDrops, w.toleranceBps) {
			return tx.Hash, nil
		}
	}
	return "", nil
}

// accountTx issues the XRPL account_tx request. The XRPL HTTP API wraps a
// single params object rather than a JSON-RPC 2.0 envelope.
func (w *XRPWatcher) accountTx(ctx context.Context, account string) (*xrplAccountTxResult, error) {
	body := map[string]interface{}{
		"method": "account_tx",
		"params": []interface{}{map[string]interface{}{
			"account":          account,
			"ledger_index_min": -1,
			"ledger_index_max": -1,
			"limit":            w.limit,
		}},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watcher: xrpl account_tx: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("watcher: xrpl status %d", resp.StatusCode)
	}
	var payload struct {
		Result xrplAccountTxResult `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("watcher: xrpl decode: %w", err)
	}
	if payload.Result.Status != "" && payload.Result.Status != "success" {
		return nil, fmt.Errorf("watcher: xrpl result status %q", payload.Result.Status)
	}
	return &payload.Result, nil
}
