// services/wallet_service.go
package services

import (
	"errors"
	"log"

	"stream-coin-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletService owns the cached per-user balance aggregate. Every mutation
// runs inside the caller's transaction so the wallet and the ledger rows that
// justify it commit or abort together.
type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// Ensure returns the wallet row for userID, creating it if absent (idempotent).
func (s *WalletService) Ensure(tx *gorm.DB, userID string) (*models.WalletBalance, error) {
	var wallet models.WalletBalance
	err := tx.Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		wallet = models.WalletBalance{UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&wallet).Error; err != nil {
			return nil, err
		}
		// Re-read in case a concurrent insert won the conflict
		if err := tx.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			return nil, err
		}
		return &wallet, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// lockWallet ensures the row exists and takes a row lock on it for the
// remainder of the transaction.
func (s *WalletService) lockWallet(tx *gorm.DB, userID string) (*models.WalletBalance, error) {
	if _, err := s.Ensure(tx, userID); err != nil {
		return nil, err
	}
	var wallet models.WalletBalance
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Credit adds purchased coins: coin_balance and total_charged go up together.
func (s *WalletService) Credit(tx *gorm.DB, userID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	wallet, err := s.lockWallet(tx, userID)
	if err != nil {
		return err
	}
	return tx.Model(wallet).Updates(map[string]interface{}{
		"coin_balance":  gorm.Expr("coin_balance + ?", amount),
		"total_charged": gorm.Expr("total_charged + ?", amount),
	}).Error
}

// Debit removes spent coins. Fails with ErrInsufficientBalance rather than
// letting coin_balance go negative.
func (s *WalletService) Debit(tx *gorm.DB, userID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	wallet, err := s.lockWallet(tx, userID)
	if err != nil {
		return err
	}
	if wallet.CoinBalance < amount {
		return ErrInsufficientBalance
	}
	return tx.Model(wallet).Updates(map[string]interface{}{
		"coin_balance": gorm.Expr("coin_balance - ?", amount),
		"total_used":   gorm.Expr("total_used + ?", amount),
	}).Error
}

// CreditReceived records coins received as donations: coin_balance and
// total_received go up together, keeping the invariant
// coin_balance == total_charged + total_received - total_used.
func (s *WalletService) CreditReceived(tx *gorm.DB, userID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	wallet, err := s.lockWallet(tx, userID)
	if err != nil {
		return err
	}
	return tx.Model(wallet).Updates(map[string]interface{}{
		"coin_balance":   gorm.Expr("coin_balance + ?", amount),
		"total_received": gorm.Expr("total_received + ?", amount),
	}).Error
}

// Read returns the wallet, lazily creating it on first access.
func (s *WalletService) Read(userID string) (*models.WalletBalance, error) {
	return s.Ensure(s.DB, userID)
}

// ReconcileWallets recomputes every wallet from the underlying lots, usage
// records and donations and reports rows whose cached aggregate drifted.
// The cached wallet stays the source of truth; this is a consistency check.
func (s *WalletService) ReconcileWallets() (drifted int, err error) {
	var wallets []models.WalletBalance
	if err := s.DB.Find(&wallets).Error; err != nil {
		return 0, err
	}

	for _, w := range wallets {
		var charged, used, received int64
		if err := s.DB.Model(&models.CoinLot{}).
			Where("user_id = ? AND status IN ?", w.UserID, []models.LotStatus{models.LotStatusCompleted, models.LotStatusFrozen}).
			Select("COALESCE(SUM(total_coins), 0)").Scan(&charged).Error; err != nil {
			return drifted, err
		}
		if err := s.DB.Model(&models.UsageRecord{}).
			Where("user_id = ?", w.UserID).
			Select("COALESCE(SUM(used_coins), 0)").Scan(&used).Error; err != nil {
			return drifted, err
		}
		if err := s.DB.Model(&models.Donation{}).
			Where("streamer_id = ?", w.UserID).
			Select("COALESCE(SUM(coin_amount), 0)").Scan(&received).Error; err != nil {
			return drifted, err
		}

		if w.TotalCharged != charged || w.TotalUsed != used || w.TotalReceived != received ||
			w.CoinBalance != charged+received-used {
			drifted++
			log.Printf("⚠️ [RECONCILE] wallet %s drifted: cached(balance=%d charged=%d used=%d received=%d) computed(charged=%d used=%d received=%d)",
				w.UserID, w.CoinBalance, w.TotalCharged, w.TotalUsed, w.TotalReceived, charged, used, received)
		}
	}
	return drifted, nil
}

// --- Handlers ---

// GetWallet returns the authenticated user's balance and lifetime totals
func (s *WalletService) GetWallet(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	wallet, err := s.Read(userID)
	if err != nil {
		log.Printf("DB Error reading wallet for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read wallet"})
	}
	return c.JSON(wallet)
}
