package watcher

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// lamportsPerSol scales a native SOL amount into lamports.
const lamportsPerSol = 1_000_000_000

// SolanaConfig tunes the signature-history scan.
type SolanaConfig struct {
	// SignatureLimit bounds how many recent signatures are inspected.
	SignatureLimit int
	// ToleranceBps is the amount-match tolerance in basis points.
	ToleranceBps uint64
	// Timeout applies to each RPC call.
	Timeout time.Duration
}

// SolanaWatcher inspects the collector account's recent signature history and
// matches on the post-balance delta of the collector account.
type SolanaWatcher struct {
	rpc          *rpcClient
	limit        int
	toleranceBps uint64
}

// NewSolanaWatcher constructs a watcher against a Solana JSON-RPC endpoint.
func NewSolanaWatcher(endpoint string, cfg SolanaConfig) *SolanaWatcher {
	limit := cfg.SignatureLimit
	if limit <= 0 {
		limit = 50
	}
	tolerance := cfg.ToleranceBps
	if tolerance == 0 {
		tolerance = 100
	}
	return &SolanaWatcher{
		rpc:          newRPCClient(httpEndpoint(endpoint), cfg.Timeout),
		limit:        limit,
		toleranceBps: tolerance,
	}
}

type solanaSignatureInfo struct {
	Signature string      `json:"signature"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

type solanaTransaction struct {
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err          interface{} `json:"err"`
		PreBalances  []uint64    `json:"preBalances"`
		PostBalances []uint64    `json:"postBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// FindPayment implements the Watcher capability for Solana.
func (w *SolanaWatcher) FindPayment(ctx context.Context, address string, expectedAmount float64, since time.Time) (string, error) {
	if w == nil || w.rpc == nil {
		return "", fmt.Errorf("watcher: solana client not configured")
	}
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", fmt.Errorf("watcher: solana address required")
	}

	var signatures []solanaSignatureInfo
	params := []interface{}{trimmed, map[string]interface{}{"limit": w.limit}}
	if err := w.rpc.call(ctx, "getSignaturesForAddress", params, &signatures); err != nil {
		return "", fmt.Errorf("watcher: solana signatures: %w", err)
	}

	expectedLamports := uint64(math.Round(expectedAmount * lamportsPerSol))
	sinceUnix := since.Unix()

	for _, info := range signatures {
		if info.Err != nil {
			continue
		}
		if info.BlockTime == nil || *info.BlockTime < sinceUnix {
			continue
		}
		matched, err := w.matchTransaction(ctx, info.Signature, trimmed, expectedLamports)
		if err != nil {
			return "", err
		}
		if matched {
			return info.Signature, nil
		}
	}
	return "", nil
}

// matchTransaction fetches a transaction and checks whether the collector's
// balance grew by the expected amount within tolerance.
func (w *SolanaWatcher) matchTransaction(ctx context.Context, signature, address string, expectedLamports uint64) (bool, error) {
	var tx solanaTransaction
	params := []interface{}{signature, map[string]interface{}{
		"encoding":                       "json",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := w.rpc.call(ctx, "getTransaction", params, &tx); err != nil {
		return false, fmt.Errorf("watcher: solana transaction %s: %w", signature, err)
	}
	if tx.Meta == nil || tx.Meta.Err != nil {
		return false, nil
	}
	keys := tx.Transaction.Message.AccountKeys
	index := -1
	for i, key := range keys {
		if key == address {
			index = i
			break
		}
	}
	if index < 0 || index >= len(tx.Meta.PreBalances) || index >= len(tx.Meta.PostBalances) {
		return false, nil
	}
	pre := tx.Meta.PreBalances[index]
	post := tx.Meta.PostBalances[index]
	if post <= pre {
		return false, nil
	}
	return withinTolerance(post-pre, expectedLamports, w.toleranceBps), nil
}

// httpEndpoint normalises websocket endpoints to their HTTP equivalent for
// request/response scanning.
func httpEndpoint(endpoint string) string {
	trimmed := strings.TrimSpace(endpoint)
	trimmed = strings.Replace(trimmed, "wss://", "https://", 1)
	return strings.Replace(trimmed, "ws://", "http://", 1)
}
