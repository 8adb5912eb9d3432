package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"promogate/models"
)

// ErrNotFound indicates that no promotion request exists for the identifier.
var ErrNotFound = errors.New("store: promotion request not found")

// Store wraps the promotion request collection. The conditional update in
// Activate is the sole synchronization primitive between concurrent
// reconciliation workers; no other method may weaken that guarantee.
type Store struct {
	db *gorm.DB
}

// New constructs a store over the supplied database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create persists a new promotion request.
func (s *Store) Create(ctx context.Context, req *models.PromotionRequest) error {
	if req == nil {
		return fmt.Errorf("store: request required")
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	return nil
}

// Get fetches a request by identifier.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.PromotionRequest, error) {
	var req models.PromotionRequest
	err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load request: %w", err)
	}
	return &req, nil
}

// ListByStatus returns every request currently in the supplied state.
func (s *Store) ListByStatus(ctx context.Context, status models.Status) ([]models.PromotionRequest, error) {
	var reqs []models.PromotionRequest
	if err := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("store: list by status: %w", err)
	}
	return reqs, nil
}

// ListActive returns active promotions, optionally filtered by package type.
func (s *Store) ListActive(ctx context.Context, packageType string) ([]models.PromotionRequest, error) {
	query := s.db.WithContext(ctx).Where("status = ?", models.StatusActive)
	if trimmed := strings.TrimSpace(packageType); trimmed != "" {
		query = query.Where("package_type = ?", trimmed)
	}
	var reqs []models.PromotionRequest
	if err := query.Order("activated_at desc").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("store: list active: %w", err)
	}
	return reqs, nil
}

// Activate transitions a request from pending_payment to active, recording the
// transaction hash and expiry. The update is conditional on the current status
// so a request that already left pending_payment is never overwritten; the
// return value reports whether this call performed the transition.
func (s *Store) Activate(ctx context.Context, id uuid.UUID, txHash string, activatedAt, expiresAt time.Time) (bool, error) {
	trimmed := strings.TrimSpace(txHash)
	if trimmed == "" {
		return false, fmt.Errorf("store: tx hash required")
	}
	res := s.db.WithContext(ctx).Model(&models.PromotionRequest{}).
		Where("id = ? AND status = ?", id, models.StatusPendingPayment).
		Updates(map[string]interface{}{
			"status":       models.StatusActive,
			"tx_hash":      trimmed,
			"activated_at": activatedAt,
			"expires_at":   expiresAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("store: activate request: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExpireDue transitions every active request whose expiry has passed to
// expired. Re-running is a no-op.
func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PromotionRequest{}).
		Where("status = ? AND expires_at < ?", models.StatusActive, now).
		Update("status", models.StatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("store: expire due: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// TimeoutStalePending transitions every pending request whose payment deadline
// has passed to payment_timeout. Such requests are never scanned again.
func (s *Store) TimeoutStalePending(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PromotionRequest{}).
		Where("status = ? AND payment_deadline < ?", models.StatusPendingPayment, now).
		Update("status", models.StatusPaymentTimeout)
	if res.Error != nil {
		return 0, fmt.Errorf("store: timeout stale pending: %w", res.Error)
	}
	return res.RowsAffected, nil
}
