// models/payout_coin.go
package models

import "time"

// PayoutCoinStatus is the maturity state machine of one payout entitlement
type PayoutCoinStatus string

const (
	PayoutCoinStatusPending PayoutCoinStatus = "pending"
	PayoutCoinStatusMatured PayoutCoinStatus = "matured"
	PayoutCoinStatusBlocked PayoutCoinStatus = "blocked"
	PayoutCoinStatusSettled PayoutCoinStatus = "settled"
)

// PayoutCoin is the streamer's entitlement created from one donation-linked
// usage record (1:1). It matures after the hold window unless its originating
// lot was frozen first.
// CoinValue = floor(CoinAmount * lot.UnitPrice), in minor currency units.
type PayoutCoin struct {
	ID                string           `gorm:"primaryKey;type:uuid" json:"id"`
	StreamerID        string           `gorm:"type:uuid;not null;index" json:"streamer_id"`
	DonationID        string           `gorm:"type:uuid;not null;index" json:"donation_id"`
	UsageID           string           `gorm:"type:uuid;not null;uniqueIndex" json:"usage_id"`
	LotID             string           `gorm:"type:uuid;not null;index" json:"lot_id"`
	CoinAmount        int64            `gorm:"not null" json:"coin_amount"`
	CoinValue         int64            `gorm:"not null" json:"coin_value"`
	DonatedAt         time.Time        `gorm:"not null" json:"donated_at"`
	SettlementReadyAt time.Time        `gorm:"not null;index" json:"settlement_ready_at"`
	Status            PayoutCoinStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	SettlementID      *string          `gorm:"type:uuid;index" json:"settlement_id,omitempty"`
	BlockReason       string           `gorm:"type:text" json:"block_reason,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (PayoutCoin) TableName() string {
	return "payout_coins"
}
