// models/wallet_balance.go
package models

import "time"

// WalletBalance is the per-user cached aggregate of spendable coins.
// Invariant: CoinBalance == TotalCharged + TotalReceived - TotalUsed, never negative.
// Written only inside the same transaction as the ledger event that changes it.
type WalletBalance struct {
	UserID        string    `gorm:"primaryKey;type:uuid;not null" json:"user_id"` // External user ID
	CoinBalance   int64     `gorm:"not null;default:0" json:"coin_balance"`
	TotalCharged  int64     `gorm:"not null;default:0" json:"total_charged"`
	TotalUsed     int64     `gorm:"not null;default:0" json:"total_used"`
	TotalReceived int64     `gorm:"not null;default:0" json:"total_received"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName overrides the default pluralization
func (WalletBalance) TableName() string {
	return "wallet_balances"
}
