// Package lifecycle owns the promotion request state machine: creation with a
// fixed price snapshot, idempotent conditional activation, expiry, and
// payment-deadline timeouts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"promogate/catalog"
	"promogate/models"
	"promogate/oracle"
	"promogate/store"
)

// ErrInvalidRequest wraps validation failures at request-creation time; such
// requests never enter the reconciliation loop.
var ErrInvalidRequest = errors.New("lifecycle: invalid request")

// ErrPricingUnavailable indicates the oracle could not produce a positive
// quote. Creation must fail rather than record a zero or stale price.
var ErrPricingUnavailable = errors.New("lifecycle: pricing unavailable")

// ErrNotFound mirrors the store sentinel for callers of this package.
var ErrNotFound = store.ErrNotFound

// Manager coordinates promotion request transitions against the store.
type Manager struct {
	store      *store.Store
	oracle     *oracle.Oracle
	collectors map[models.Chain]string
	deadline   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Config captures the dependencies required to construct a Manager.
type Config struct {
	Store      *store.Store
	Oracle     *oracle.Oracle
	Collectors map[models.Chain]string
	Deadline   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewManager builds a configured lifecycle manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("lifecycle: store is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("lifecycle: oracle is required")
	}
	if len(cfg.Collectors) == 0 {
		return nil, errors.New("lifecycle: at least one collector address is required")
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 2 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		store:      cfg.Store,
		oracle:     cfg.Oracle,
		collectors: cfg.Collectors,
		deadline:   deadline,
		logger:     logger,
		now:        nowFn,
	}, nil
}

// CreateInput carries the client-supplied fields of a new promotion request.
type CreateInput struct {
	TokenAddress string
	Chain        models.Chain
	PackageType  string
	Duration     string
	UserWallet   string
}

// CreateResult is the payment instruction returned to the client.
type CreateResult struct {
	RequestID       uuid.UUID     `json:"requestId"`
	PaymentAddress  string        `json:"paymentAddress"`
	AmountNative    float64       `json:"amountNative"`
	AmountUSD       float64       `json:"amountUsd"`
	NativeCurrency  string        `json:"nativeCurrency"`
	PaymentDeadline time.Time     `json:"paymentDeadline"`
	Status          models.Status `json:"status"`
}

// CreateRequest validates the input, snapshots the native price, and persists
// a pending request. The native amount is fixed here and never recomputed.
func (m *Manager) CreateRequest(ctx context.Context, input CreateInput) (*CreateResult, error) {
	token := strings.ToLower(strings.TrimSpace(input.TokenAddress))
	if token == "" {
		return nil, fmt.Errorf("%w: token address required", ErrInvalidRequest)
	}
	if !input.Chain.Valid() {
		return nil, fmt.Errorf("%w: unsupported chain %q", ErrInvalidRequest, input.Chain)
	}
	collector, ok := m.collectors[input.Chain]
	if !ok {
		return nil, fmt.Errorf("%w: chain %s not accepting payments", ErrInvalidRequest, input.Chain)
	}
	pkg, ok := catalog.Lookup(input.PackageType)
	if !ok {
		return nil, fmt.Errorf("%w: invalid package %q", ErrInvalidRequest, input.PackageType)
	}
	usdPrice, err := catalog.Price(pkg.Type, input.Duration)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	prices := m.oracle.Prices(ctx)
	native, err := oracle.USDToNative(usdPrice, input.Chain, prices)
	if err != nil || native <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrPricingUnavailable, input.Chain)
	}

	now := m.now()
	req := &models.PromotionRequest{
		ID:              uuid.New(),
		TokenAddress:    token,
		Chain:           input.Chain,
		PackageType:     pkg.Type,
		PackageName:     pkg.Name,
		Duration:        strings.TrimSpace(input.Duration),
		DurationHours:   catalog.DurationHours(input.Duration),
		AmountUSD:       usdPrice,
		AmountNative:    native,
		NativeCurrency:  input.Chain.Symbol(),
		PaymentAddress:  collector,
		UserWallet:      strings.TrimSpace(input.UserWallet),
		Status:          models.StatusPendingPayment,
		CreatedAt:       now,
		PaymentDeadline: now.Add(m.deadline),
	}
	if err := m.store.Create(ctx, req); err != nil {
		return nil, err
	}

	m.logger.Info("promotion request created",
		"request_id", req.ID,
		"chain", req.Chain,
		"package", req.PackageType,
		"amount_usd", req.AmountUSD,
		"amount_native", req.AmountNative)

	return &CreateResult{
		RequestID:       req.ID,
		PaymentAddress:  req.PaymentAddress,
		AmountNative:    req.AmountNative,
		AmountUSD:       req.AmountUSD,
		NativeCurrency:  req.NativeCurrency,
		PaymentDeadline: req.PaymentDeadline,
		Status:          req.Status,
	}, nil
}

// GetStatus fetches a request by identifier.
func (m *Manager) GetStatus(ctx context.Context, id uuid.UUID) (*models.PromotionRequest, error) {
	return m.store.Get(ctx, id)
}

// ListActive returns active promotions, optionally filtered by package type.
func (m *Manager) ListActive(ctx context.Context, packageType string) ([]models.PromotionRequest, error) {
	return m.store.ListActive(ctx, packageType)
}

// ListPending returns the requests awaiting payment. Callers fetch fresh each
// reconciliation cycle; results are never cached across cycles.
func (m *Manager) ListPending(ctx context.Context) ([]models.PromotionRequest, error) {
	return m.store.ListByStatus(ctx, models.StatusPendingPayment)
}

// Activate transitions a pending request to active, recording the matched
// transaction hash and computing the expiry from the purchased duration. The
// update is conditional on the current status, so concurrent calls and
// replayed transaction hashes cannot reset an already-active promotion; when
// the request has already left pending_payment the call is a no-op returning
// the record unchanged.
func (m *Manager) Activate(ctx context.Context, id uuid.UUID, txHash string) (*models.PromotionRequest, error) {
	req, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPendingPayment {
		return req, nil
	}

	activatedAt := m.now()
	expiresAt := activatedAt.Add(time.Duration(req.DurationHours) * time.Hour)
	applied, err := m.store.Activate(ctx, id, txHash, activatedAt, expiresAt)
	if err != nil {
		return nil, err
	}
	if applied {
		m.logger.Info("promotion activated",
			"request_id", id,
			"chain", req.Chain,
			"tx_hash", txHash,
			"expires_at", expiresAt)
	}
	// Lost the race or already transitioned elsewhere; either way the stored
	// record is authoritative.
	return m.store.Get(ctx, id)
}

// ExpireDue retires every active promotion whose expiry has passed.
func (m *Manager) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	count, err := m.store.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.logger.Info("promotions expired", "count", count)
	}
	return count, nil
}

// TimeoutStalePending times out every pending request whose payment deadline
// has passed.
func (m *Manager) TimeoutStalePending(ctx context.Context, now time.Time) (int64, error) {
	count, err := m.store.TimeoutStalePending(ctx, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.logger.Info("pending requests timed out", "count", count)
	}
	return count, nil
}
