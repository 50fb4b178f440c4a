// models/donation.go
package models

import "time"

// Donation ties a donor's coin spend to a streamer. Immutable once created.
// CoinAmount always equals the sum of its linked usage records' UsedCoins.
// CoinValue is the display-only sum of the linked payout coins' values;
// settlement math never reads it.
type Donation struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	DonorID    string    `gorm:"type:uuid;not null;index" json:"donor_id"`
	StreamerID string    `gorm:"type:uuid;not null;index" json:"streamer_id"`
	CoinAmount int64     `gorm:"not null" json:"coin_amount"`
	CoinValue  int64     `gorm:"not null" json:"coin_value"`
	Message    string    `gorm:"type:text" json:"message,omitempty"`
	DonatedAt  time.Time `gorm:"not null;index" json:"donated_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Donation) TableName() string {
	return "donations"
}
