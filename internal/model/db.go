package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentIntent is one purchase attempt, keyed by the processor-assigned
// track id. Rows are never deleted; terminal rows are immutable.
type PaymentIntent struct {
	TrackID   string          `gorm:"primaryKey;size:64;not null"` // oxapay track id
	OrderID   string          `gorm:"size:64;uniqueIndex;not null"`
	BuyerID   int64           `gorm:"index;not null"` // chat platform numeric user id
	PackageID string          `gorm:"size:64;index;not null"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Currency  string          `gorm:"size:8;not null"`
	Status    Status          `gorm:"size:16;index;not null"`
	// FailReason is set when the intent goes to failed (processor failure,
	// cancellation, amount mismatch).
	FailReason  string `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// FulfillmentRecord is written exactly once per delivered intent. The unique
// index on track_id is what makes delivery idempotent under concurrent
// webhook replay.
type FulfillmentRecord struct {
	ID          uint            `gorm:"primaryKey"`
	TrackID     string          `gorm:"size:64;uniqueIndex;not null"`
	BuyerID     int64           `gorm:"index;not null"`
	PackageID   string          `gorm:"size:64;index;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Currency    string          `gorm:"size:8;not null"`
	Credential  string          `gorm:"size:512;not null"` // invite link snapshot
	DeliveredAt time.Time
}
