// models/coin_lot.go
package models

import "time"

// LotStatus tracks the payment lifecycle of a purchase lot
type LotStatus string

const (
	LotStatusPending   LotStatus = "pending"
	LotStatusCompleted LotStatus = "completed"
	LotStatusFailed    LotStatus = "failed"
	LotStatusRefunded  LotStatus = "refunded"
	LotStatusFrozen    LotStatus = "frozen" // chargeback / fraud signal
)

// CoinLot records one completed coin purchase. Immutable except for
// RemainingCoins (decremented by FIFO spends) and Status.
// Invariant: 0 <= RemainingCoins <= TotalCoins, and
// TotalCoins - RemainingCoins == sum of usage records on this lot.
type CoinLot struct {
	ID                    string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID                string    `gorm:"type:uuid;not null;index" json:"user_id"`
	ProductRef            string    `gorm:"type:varchar(128);not null" json:"product_ref"`
	ExternalTransactionID string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"external_transaction_id"`
	TotalCoins            int64     `gorm:"not null" json:"total_coins"`
	RemainingCoins        int64     `gorm:"not null" json:"remaining_coins"`
	UnitPrice             float64   `gorm:"not null" json:"unit_price"` // minor currency units per coin
	Status                LotStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	FreezeReason          string    `gorm:"type:text" json:"freeze_reason,omitempty"`
	PurchasedAt           time.Time `gorm:"not null;index" json:"purchased_at"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (CoinLot) TableName() string {
	return "coin_lots"
}
