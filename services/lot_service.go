// services/lot_service.go
package services

import (
	"errors"
	"log"
	"time"

	"stream-coin-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CoinLotService tracks purchase lots. Lots are created by the payment
// confirmation signal and mutated only by the FIFO allocator
// (remaining_coins) and freeze/unfreeze (status).
type CoinLotService struct {
	DB       *gorm.DB
	Wallets  *WalletService
	Products *ProductService
	Payouts  *PayoutService
}

func NewCoinLotService(db *gorm.DB, wallets *WalletService, products *ProductService, payouts *PayoutService) *CoinLotService {
	return &CoinLotService{DB: db, Wallets: wallets, Products: products, Payouts: payouts}
}

// CreateLot records a completed purchase and credits the buyer's wallet in
// one transaction. Idempotent on the external transaction id: a re-delivered
// payment confirmation returns the existing lot without a second credit.
func (s *CoinLotService) CreateLot(userID, productRef, externalTxID string, amountPaid int64) (*models.CoinLot, error) {
	product, err := s.Products.GetByRef(productRef)
	if err != nil {
		return nil, err
	}
	if amountPaid <= 0 {
		return nil, ErrInvalidAmount
	}

	lot := &models.CoinLot{
		ID:                    uuid.NewString(),
		UserID:                userID,
		ProductRef:            product.Slug,
		ExternalTransactionID: externalTxID,
		TotalCoins:            product.TotalCoins,
		RemainingCoins:        product.TotalCoins,
		UnitPrice:             float64(amountPaid) / float64(product.TotalCoins),
		Status:                models.LotStatusCompleted,
		PurchasedAt:           time.Now(),
	}

	err = withTxRetry(s.DB, func(tx *gorm.DB) error {
		var existing models.CoinLot
		err := tx.Where("external_transaction_id = ?", externalTxID).First(&existing).Error
		if err == nil {
			lot = &existing // duplicate confirmation, keep the first lot
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(lot).Error; err != nil {
			return err
		}
		return s.Wallets.Credit(tx, userID, lot.TotalCoins)
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// Freeze marks a lot frozen (chargeback / fraud signal) and synchronously
// blocks every pending or matured payout coin that originated from it.
func (s *CoinLotService) Freeze(lotID, reason string) (blockedCoins int64, err error) {
	err = withTxRetry(s.DB, func(tx *gorm.DB) error {
		var lot models.CoinLot
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", lotID).First(&lot).Error; err != nil {
			return err
		}
		if lot.Status == models.LotStatusFrozen {
			blockedCoins = 0 // already frozen, nothing left to cascade
			return nil
		}

		if err := tx.Model(&lot).Updates(map[string]interface{}{
			"status":        models.LotStatusFrozen,
			"freeze_reason": reason,
		}).Error; err != nil {
			return err
		}

		n, err := s.Payouts.BlockCoinsForLot(tx, lotID, reason)
		if err != nil {
			return err
		}
		blockedCoins = n
		return nil
	})
	return blockedCoins, err
}

// Unfreeze lifts a freeze once the dispute is resolved. Blocked payout coins
// stay blocked until an admin unblocks them individually.
func (s *CoinLotService) Unfreeze(lotID string) error {
	return withTxRetry(s.DB, func(tx *gorm.DB) error {
		res := tx.Model(&models.CoinLot{}).
			Where("id = ? AND status = ?", lotID, models.LotStatusFrozen).
			Updates(map[string]interface{}{
				"status":        models.LotStatusCompleted,
				"freeze_reason": "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidPayoutState
		}
		return nil
	})
}

// ListAvailable returns the user's spendable lots in FIFO order.
func (s *CoinLotService) ListAvailable(userID string) ([]models.CoinLot, error) {
	var lots []models.CoinLot
	err := s.DB.
		Where("user_id = ? AND status = ? AND remaining_coins > 0", userID, models.LotStatusCompleted).
		Order("purchased_at asc, created_at asc, id asc").
		Find(&lots).Error
	return lots, err
}

// --- Handlers ---

// HandlePaymentConfirmation consumes the "payment succeeded" signal from the
// payment gateway (via the platform gateway) and creates the lot.
func (s *CoinLotService) HandlePaymentConfirmation(c *fiber.Ctx) error {
	var req struct {
		ExternalTransactionID string `json:"external_transaction_id"`
		UserID                string `json:"user_id"`
		ProductID             string `json:"product_id"`
		AmountPaid            int64  `json:"amount_paid"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ExternalTransactionID == "" || req.UserID == "" || req.ProductID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "external_transaction_id, user_id and product_id are required"})
	}

	lot, err := s.CreateLot(req.UserID, req.ProductID, req.ExternalTransactionID, req.AmountPaid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown coin product"})
		}
		if errors.Is(err, ErrInvalidAmount) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount_paid must be positive"})
		}
		log.Printf("DB Error creating lot for tx %s: %v", req.ExternalTransactionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record purchase"})
	}
	return c.Status(fiber.StatusCreated).JSON(lot)
}

// GetPurchaseHistory lists the authenticated user's lots, newest first
func (s *CoinLotService) GetPurchaseHistory(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var lots []models.CoinLot
	if err := s.DB.Where("user_id = ?", userID).
		Order("purchased_at desc").
		Find(&lots).Error; err != nil {
		log.Printf("DB Error fetching lots for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch purchases"})
	}
	return c.JSON(lots)
}

// FreezeLot is the admin chargeback/fraud entry point
func (s *CoinLotService) FreezeLot(c *fiber.Ctx) error {
	lotID := c.Params("id")
	if _, err := uuid.Parse(lotID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lot ID"})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
	}

	blocked, err := s.Freeze(lotID, req.Reason)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Lot not found"})
		}
		log.Printf("DB Error freezing lot %s: %v", lotID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to freeze lot"})
	}

	log.Printf("🧊 [LEDGER] lot %s frozen (%s), %d payout coin(s) blocked", lotID, req.Reason, blocked)
	return c.JSON(fiber.Map{"message": "Lot frozen", "lot_id": lotID, "blocked_payout_coins": blocked})
}

// UnfreezeLot lifts a freeze (Admin only)
func (s *CoinLotService) UnfreezeLot(c *fiber.Ctx) error {
	lotID := c.Params("id")
	if _, err := uuid.Parse(lotID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lot ID"})
	}

	if err := s.Unfreeze(lotID); err != nil {
		if errors.Is(err, ErrInvalidPayoutState) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Lot is not frozen"})
		}
		log.Printf("DB Error unfreezing lot %s: %v", lotID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to unfreeze lot"})
	}
	return c.JSON(fiber.Map{"message": "Lot unfrozen", "lot_id": lotID})
}
