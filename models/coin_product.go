// models/coin_product.go
package models

import "time"

// CoinProduct mirrors the purchasable coin packages from the catalog.
// Price is in minor currency units; TotalCoins = BaseCoins + BonusCoins.
type CoinProduct struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name       string    `gorm:"type:varchar(128);not null" json:"name"`
	Slug       string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"slug"`
	BaseCoins  int64     `gorm:"not null" json:"base_coins"`
	BonusCoins int64     `gorm:"not null;default:0" json:"bonus_coins"`
	TotalCoins int64     `gorm:"not null" json:"total_coins"`
	Price      int64     `gorm:"not null" json:"price"`
	Active     bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (CoinProduct) TableName() string {
	return "coin_products"
}
