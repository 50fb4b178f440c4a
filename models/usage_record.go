// models/usage_record.go
package models

import "time"

// UsageRecord is one FIFO draw against exactly one lot. A single spend of N
// coins may produce several records when no single lot can cover it.
// Created once, never mutated.
type UsageRecord struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	LotID      string    `gorm:"type:uuid;not null;index" json:"lot_id"`
	UserID     string    `gorm:"type:uuid;not null;index" json:"user_id"` // denormalized from the lot for reconciliation scans
	UsedCoins  int64     `gorm:"not null" json:"used_coins"`
	DonationID *string   `gorm:"type:uuid;index" json:"donation_id,omitempty"`
	UsedAt     time.Time `gorm:"not null" json:"used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}
