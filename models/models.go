package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chain identifies a supported settlement ledger.
type Chain string

// Supported chains.
const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainSolana   Chain = "solana"
	ChainXRP      Chain = "xrp"
)

// Chains lists every supported chain in a stable order.
func Chains() []Chain {
	return []Chain{ChainEthereum, ChainPolygon, ChainSolana, ChainXRP}
}

// Valid reports whether the chain is one of the supported ledgers.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainPolygon, ChainSolana, ChainXRP:
		return true
	}
	return false
}

// Symbol returns the native currency ticker for the chain.
func (c Chain) Symbol() string {
	switch c {
	case ChainEthereum:
		return "ETH"
	case ChainPolygon:
		return "MATIC"
	case ChainSolana:
		return "SOL"
	case ChainXRP:
		return "XRP"
	}
	return ""
}

// Status represents a state in the promotion request lifecycle.
type Status string

// Lifecycle states. Transitions are one-directional:
// pending_payment -> active -> expired, with the side exit
// pending_payment -> payment_timeout. No state is ever re-entered.
const (
	StatusPendingPayment Status = "pending_payment"
	StatusActive         Status = "active"
	StatusExpired        Status = "expired"
	StatusPaymentTimeout Status = "payment_timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusPaymentTimeout
}

// PromotionRequest describes a promotion purchase across its lifecycle. The
// native amount is fixed at creation time from the oracle snapshot and never
// recomputed; payment matching tolerates price drift instead.
type PromotionRequest struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"requestId"`
	TokenAddress    string     `gorm:"size:128;index" json:"tokenAddress"`
	Chain           Chain      `gorm:"size:16;index" json:"chain"`
	PackageType     string     `gorm:"size:32;index" json:"packageType"`
	PackageName     string     `gorm:"size:64" json:"packageName"`
	Duration        string     `gorm:"size:8" json:"duration"`
	DurationHours   int        `gorm:"not null" json:"durationHours"`
	AmountUSD       float64    `gorm:"not null" json:"amountUsd"`
	AmountNative    float64    `gorm:"not null" json:"amountNative"`
	NativeCurrency  string     `gorm:"size:8" json:"nativeCurrency"`
	PaymentAddress  string     `gorm:"size:128" json:"paymentAddress"`
	UserWallet      string     `gorm:"size:128" json:"userWallet,omitempty"`
	Status          Status     `gorm:"size:32;index" json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	PaymentDeadline time.Time  `gorm:"index" json:"paymentDeadline"`
	TxHash          *string    `gorm:"size:128;uniqueIndex" json:"txHash,omitempty"`
	ActivatedAt     *time.Time `json:"activatedAt,omitempty"`
	ExpiresAt       *time.Time `gorm:"index" json:"expiresAt,omitempty"`
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&PromotionRequest{})
}
