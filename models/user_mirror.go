// models/user_mirror.go
package models

import "time"

// UserMirror mirrors user identity data from the identity service.
// Used only for denormalized display (dashboards, statements), never for
// ledger math. Kept fresh by the user sync worker.
// Table name: user_mirror
type UserMirror struct {
	UserID      string    `gorm:"primaryKey;type:uuid;not null" json:"user_id"` // External user ID
	DisplayName string    `gorm:"type:varchar(128);not null" json:"display_name"`
	Role        string    `gorm:"type:varchar(32);not null" json:"role"` // viewer | streamer | admin
	IsActive    bool      `gorm:"not null" json:"is_active"`
	SyncedAt    time.Time `gorm:"not null" json:"synced_at"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (UserMirror) TableName() string {
	return "user_mirror"
}
