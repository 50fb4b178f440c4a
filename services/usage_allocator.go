// services/usage_allocator.go
package services

import (
	"time"

	"stream-coin-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageAllocator consumes coins from a user's purchase lots in strict FIFO
// order. Every spend is paired with a wallet debit of the same amount in the
// same transaction.
type UsageAllocator struct {
	DB      *gorm.DB
	Wallets *WalletService
}

func NewUsageAllocator(db *gorm.DB, wallets *WalletService) *UsageAllocator {
	return &UsageAllocator{DB: db, Wallets: wallets}
}

// Spend debits the wallet and draws amount coins from the user's available
// lots oldest-first, creating one usage record per lot touched. All-or-nothing:
// when the lots cannot cover the full amount it returns ErrInsufficientCoins
// and the transaction is left with no writes from this call.
//
// Must run inside the caller's transaction. The selected lots are locked for
// the scan-then-decrement walk so a concurrent spend by the same user cannot
// interleave and double-spend a lot.
func (a *UsageAllocator) Spend(tx *gorm.DB, userID string, amount int64, now time.Time) ([]models.UsageRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if err := a.Wallets.Debit(tx, userID, amount); err != nil {
		return nil, err
	}

	var lots []models.CoinLot
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ? AND remaining_coins > 0", userID, models.LotStatusCompleted).
		Order("purchased_at asc, created_at asc, id asc").
		Find(&lots).Error; err != nil {
		return nil, err
	}

	var available int64
	for _, lot := range lots {
		available += lot.RemainingCoins
	}
	if available < amount {
		return nil, ErrInsufficientCoins
	}

	stillNeeded := amount
	usages := make([]models.UsageRecord, 0, 1)
	for i := range lots {
		if stillNeeded == 0 {
			break
		}
		draw := lots[i].RemainingCoins
		if draw > stillNeeded {
			draw = stillNeeded
		}

		if err := tx.Model(&lots[i]).
			Update("remaining_coins", gorm.Expr("remaining_coins - ?", draw)).Error; err != nil {
			return nil, err
		}

		usages = append(usages, models.UsageRecord{
			ID:        uuid.NewString(),
			LotID:     lots[i].ID,
			UserID:    userID,
			UsedCoins: draw,
			UsedAt:    now,
		})
		stillNeeded -= draw
	}

	if err := tx.Create(&usages).Error; err != nil {
		return nil, err
	}
	return usages, nil
}
