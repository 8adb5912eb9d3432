package watcher

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"promogate/models"
)

// weiPerEther scales a native amount into the chain's smallest unit.
var weiPerEther = big.NewFloat(1e18)

// EVMClient defines the subset of the Ethereum RPC used by the watcher.
type EVMClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*gethtypes.Block, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
func DialEVMClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("watcher: evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// EVMConfig tunes the bounded block scan.
type EVMConfig struct {
	// BlockTime is the chain's average block interval, used to estimate how
	// far back the scan floor sits for a given request age.
	BlockTime time.Duration
	// MaxBlocks caps the scan depth regardless of the time estimate.
	MaxBlocks uint64
	// ToleranceBps is the amount-match tolerance in basis points.
	ToleranceBps uint64
}

// EVMWatcher scans recent blocks backward from the head looking for a direct
// value transfer to the collector address. The most recent qualifying
// transaction wins.
type EVMWatcher struct {
	client       EVMClient
	chain        models.Chain
	blockTime    time.Duration
	maxBlocks    uint64
	toleranceBps uint64
	now          func() time.Time
}

// NewEVMWatcher constructs a watcher for an EVM-compatible chain.
func NewEVMWatcher(client EVMClient, chain models.Chain, cfg EVMConfig) *EVMWatcher {
	blockTime := cfg.BlockTime
	if blockTime <= 0 {
		if chain == models.ChainPolygon {
			blockTime = 2 * time.Second
		} else {
			blockTime = 12 * time.Second
		}
	}
	maxBlocks := cfg.MaxBlocks
	if maxBlocks == 0 {
		maxBlocks = 1000
	}
	tolerance := cfg.ToleranceBps
	if tolerance == 0 {
		tolerance = 100
	}
	return &EVMWatcher{
		client:       client,
		chain:        chain,
		blockTime:    blockTime,
		maxBlocks:    maxBlocks,
		toleranceBps: tolerance,
		now:          time.Now,
	}
}

// FindPayment implements the Watcher capability for EVM chains.
func (w *EVMWatcher) FindPayment(ctx context.Context, address string, expectedAmount float64, since time.Time) (string, error) {
	if w == nil || w.client == nil {
		return "", fmt.Errorf("watcher: evm client not configured")
	}
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("watcher: invalid evm address %q", address)
	}
	collector := common.HexToAddress(address)

	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return "", fmt.Errorf("watcher: %s head: %w", w.chain, err)
	}

	expectedWei, tolerance := w.expectedWei(expectedAmount)
	if expectedWei.Sign() <= 0 {
		return "", nil
	}

	floor := w.scanFloor(head, since)
	sinceUnix := uint64(0)
	if !since.IsZero() {
		sinceUnix = uint64(since.Unix())
	}

	for number := head; number > floor; number-- {
		block, err := w.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			// Problematic blocks are skipped; the bounded window means a miss
			// here is retried on the next cycle.
			continue
		}
		if block.Time() < sinceUnix {
			break
		}
		for _, tx := range block.Transactions() {
			to := tx.To()
			if to == nil || *to != collector {
				continue
			}
			diff := new(big.Int).Sub(tx.Value(), expectedWei)
			if diff.CmpAbs(tolerance) <= 0 {
				return tx.Hash().Hex(), nil
			}
		}
	}
	return "", nil
}

// expectedWei converts the native amount into wei and derives the absolute
// tolerance band.
func (w *EVMWatcher) expectedWei(expectedAmount float64) (*big.Int, *big.Int) {
	scaled := new(big.Float).Mul(big.NewFloat(expectedAmount), weiPerEther)
	expected, _ := scaled.Int(nil)
	tolerance := new(big.Int).Mul(expected, new(big.Int).SetUint64(w.toleranceBps))
	tolerance.Quo(tolerance, big.NewInt(10000))
	return expected, tolerance
}

// scanFloor estimates how many blocks back the request creation time sits and
// bounds the result by the configured maximum depth.
func (w *EVMWatcher) scanFloor(head uint64, since time.Time) uint64 {
	depth := w.maxBlocks
	if !since.IsZero() {
		elapsed := w.now().Sub(since)
		if elapsed > 0 {
			estimated := uint64(elapsed/w.blockTime) + 100
			if estimated < depth {
				depth = estimated
			}
		}
	}
	if depth >= head {
		return 0
	}
	return head - depth
}
