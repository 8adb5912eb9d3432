// Package recon runs the background reconciliation loop that matches on-chain
// payments against pending promotion requests and sweeps lifecycle deadlines.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"promogate/lifecycle"
	"promogate/models"
	"promogate/observability"
	"promogate/watcher"
)

// Worker drives periodic reconciliation cycles. Chains are scanned
// concurrently with respect to each other; requests within a chain are
// scanned sequentially to keep RPC pressure bounded.
type Worker struct {
	manager  *lifecycle.Manager
	watchers *watcher.Registry
	interval time.Duration
	backoff  time.Duration
	logger   *slog.Logger
	metrics  *observability.WorkerMetrics
	now      func() time.Time
}

// Config captures worker construction parameters.
type Config struct {
	Manager  *lifecycle.Manager
	Watchers *watcher.Registry
	Interval time.Duration
	Backoff  time.Duration
	Logger   *slog.Logger
	Metrics  *observability.WorkerMetrics
	Now      func() time.Time
}

// NewWorker builds a reconciliation worker.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Manager == nil {
		return nil, errors.New("recon: manager is required")
	}
	if cfg.Watchers == nil {
		return nil, errors.New("recon: watcher registry is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 45 * time.Second
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Worker{
		manager:  cfg.Manager,
		watchers: cfg.Watchers,
		interval: interval,
		backoff:  backoff,
		logger:   logger,
		metrics:  cfg.Metrics,
		now:      nowFn,
	}, nil
}

// Run executes cycles at the configured interval until the context is
// cancelled. A cycle failure (or panic) extends the wait to the error backoff
// instead of stopping the loop.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("reconciliation worker started", "interval", w.interval)
	for {
		wait := w.interval
		if err := w.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("reconciliation cycle failed", "error", err)
			wait = w.backoff
		}
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation worker stopped")
			return
		case <-time.After(wait):
		}
	}
}

// runCycle wraps a single cycle with panic recovery so one bad payload cannot
// kill the loop.
func (w *Worker) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, &cyclePanicError{value: r})
		}
	}()
	return w.Cycle(ctx)
}

type cyclePanicError struct {
	value interface{}
}

func (e *cyclePanicError) Error() string {
	return fmt.Sprintf("recon: cycle panic: %v", e.value)
}

// Cycle performs one reconciliation pass: retire expired promotions, scan
// pending requests for matching payments, then time out stale requests. Each
// step works off fresh state so transitions applied earlier in the cycle are
// observed by the later steps.
func (w *Worker) Cycle(ctx context.Context) error {
	started := w.now()

	if _, err := w.sweepExpired(ctx); err != nil {
		return err
	}

	pending, err := w.manager.ListPending(ctx)
	if err != nil {
		return err
	}
	w.metrics.SetPending(len(pending))
	w.scanPending(ctx, pending)

	if _, err := w.sweepTimeouts(ctx); err != nil {
		return err
	}

	w.metrics.ObserveCycle(w.now().Sub(started))
	return ctx.Err()
}

func (w *Worker) sweepExpired(ctx context.Context) (int64, error) {
	count, err := w.manager.ExpireDue(ctx, w.now())
	if err != nil {
		return 0, err
	}
	w.metrics.RecordTransitions("expired", count)
	return count, nil
}

func (w *Worker) sweepTimeouts(ctx context.Context) (int64, error) {
	count, err := w.manager.TimeoutStalePending(ctx, w.now())
	if err != nil {
		return 0, err
	}
	w.metrics.RecordTransitions("payment_timeout", count)
	return count, nil
}

// scanPending groups requests by chain and scans each chain in its own
// goroutine. A failing chain only loses its own requests for this cycle.
func (w *Worker) scanPending(ctx context.Context, pending []models.PromotionRequest) {
	byChain := make(map[models.Chain][]models.PromotionRequest)
	for _, req := range pending {
		byChain[req.Chain] = append(byChain[req.Chain], req)
	}

	var wg sync.WaitGroup
	for chain, reqs := range byChain {
		chainWatcher, ok := w.watchers.Lookup(chain)
		if !ok {
			w.logger.Warn("no watcher registered for chain", "chain", chain, "requests", len(reqs))
			continue
		}
		wg.Add(1)
		go func(chain models.Chain, reqs []models.PromotionRequest, cw watcher.Watcher) {
			defer wg.Done()
			w.scanChain(ctx, chain, reqs, cw)
		}(chain, reqs, chainWatcher)
	}
	wg.Wait()
}

func (w *Worker) scanChain(ctx context.Context, chain models.Chain, reqs []models.PromotionRequest, cw watcher.Watcher) {
	for _, req := range reqs {
		if ctx.Err() != nil {
			return
		}
		// Requests past their payment deadline belong to the timeout sweep;
		// a late payment must not activate them.
		if !w.now().Before(req.PaymentDeadline) {
			continue
		}
		txHash, err := cw.FindPayment(ctx, req.PaymentAddress, req.AmountNative, req.CreatedAt)
		if err != nil {
			w.metrics.RecordChainError(string(chain))
			w.logger.Error("payment scan failed",
				"chain", chain,
				"request_id", req.ID,
				"error", err)
			continue
		}
		if txHash == "" {
			continue
		}
		if _, err := w.manager.Activate(ctx, req.ID, txHash); err != nil {
			w.logger.Error("activation failed",
				"chain", chain,
				"request_id", req.ID,
				"tx_hash", txHash,
				"error", err)
			continue
		}
		w.metrics.RecordMatch(string(chain))
	}
}
