// services/donation_service.go
package services

import (
	"errors"
	"log"
	"math"
	"time"

	"stream-coin-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DonationService is the cross-cutting transaction that turns a donor's FIFO
// spend into a streamer's payout entitlement. Everything in Donate commits or
// aborts as one unit: no partial donation, no orphaned usage or payout rows.
type DonationService struct {
	DB         *gorm.DB
	Wallets    *WalletService
	Allocator  *UsageAllocator
	HoldPeriod time.Duration
}

func NewDonationService(db *gorm.DB, wallets *WalletService, allocator *UsageAllocator, holdPeriod time.Duration) *DonationService {
	return &DonationService{DB: db, Wallets: wallets, Allocator: allocator, HoldPeriod: holdPeriod}
}

// Donate spends amount coins from the donor's lots and creates the donation,
// its usage records and one pending payout coin per usage record.
// Each payout coin's value is floor(used_coins * lot.unit_price) in minor
// currency units and matures HoldPeriod after the donation.
func (s *DonationService) Donate(donorID, streamerID string, amount int64, msg string) (*models.Donation, error) {
	if donorID == streamerID {
		return nil, ErrSelfDonation
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var donation *models.Donation
	err := withTxRetry(s.DB, func(tx *gorm.DB) error {
		now := time.Now()

		// FIFO spend, wallet debit included. Fails the whole transaction on
		// insufficient balance or coins.
		usages, err := s.Allocator.Spend(tx, donorID, amount, now)
		if err != nil {
			return err
		}

		donation = &models.Donation{
			ID:         uuid.NewString(),
			DonorID:    donorID,
			StreamerID: streamerID,
			CoinAmount: amount,
			Message:    msg,
			DonatedAt:  now,
		}

		// Unit prices of the lots this spend touched
		lotIDs := make([]string, len(usages))
		usageIDs := make([]string, len(usages))
		for i, u := range usages {
			lotIDs[i] = u.LotID
			usageIDs[i] = u.ID
		}
		var lots []models.CoinLot
		if err := tx.Where("id IN ?", lotIDs).Find(&lots).Error; err != nil {
			return err
		}
		unitPrice := make(map[string]float64, len(lots))
		for _, lot := range lots {
			unitPrice[lot.ID] = lot.UnitPrice
		}

		readyAt := now.Add(s.HoldPeriod)
		coins := make([]models.PayoutCoin, len(usages))
		var totalValue int64
		for i, u := range usages {
			value := int64(math.Floor(float64(u.UsedCoins) * unitPrice[u.LotID]))
			totalValue += value
			coins[i] = models.PayoutCoin{
				ID:                uuid.NewString(),
				StreamerID:        streamerID,
				DonationID:        donation.ID,
				UsageID:           u.ID,
				LotID:             u.LotID,
				CoinAmount:        u.UsedCoins,
				CoinValue:         value,
				DonatedAt:         now,
				SettlementReadyAt: readyAt,
				Status:            models.PayoutCoinStatusPending,
			}
		}

		// Display-only approximation; settlement math reads the payout coins
		donation.CoinValue = totalValue

		if err := tx.Create(donation).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.UsageRecord{}).
			Where("id IN ?", usageIDs).
			Update("donation_id", donation.ID).Error; err != nil {
			return err
		}
		if err := tx.Create(&coins).Error; err != nil {
			return err
		}

		return s.Wallets.CreditReceived(tx, streamerID, amount)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("💝 [LEDGER] donation %s: %s → %s, %d coins (value %d)",
		donation.ID, donorID, streamerID, donation.CoinAmount, donation.CoinValue)
	return donation, nil
}

// --- Handlers ---

// CreateDonation handles the viewer-facing donation request
func (s *DonationService) CreateDonation(c *fiber.Ctx) error {
	donorID := c.Locals("user_id").(string)

	var req struct {
		StreamerID string `json:"streamer_id"`
		Amount     int64  `json:"amount"`
		Message    string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if _, err := uuid.Parse(req.StreamerID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid streamer_id"})
	}

	donation, err := s.Donate(donorID, req.StreamerID, req.Amount, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfDonation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot donate to yourself"})
		case errors.Is(err, ErrInvalidAmount):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Donation amount must be positive"})
		case errors.Is(err, ErrInsufficientBalance):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "Insufficient coin balance"})
		case errors.Is(err, ErrInsufficientCoins):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "Not enough coins available in purchase lots"})
		}
		log.Printf("DB Error creating donation %s → %s: %v", donorID, req.StreamerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create donation"})
	}
	return c.Status(fiber.StatusCreated).JSON(donation)
}

// GetSentDonations lists donations made by the authenticated user
func (s *DonationService) GetSentDonations(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	return s.listDonations(c, "donor_id = ?", userID)
}

// GetReceivedDonations lists donations received by the authenticated streamer
func (s *DonationService) GetReceivedDonations(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	return s.listDonations(c, "streamer_id = ?", userID)
}

func (s *DonationService) listDonations(c *fiber.Ctx, cond string, userID string) error {
	var donations []models.Donation
	if err := s.DB.Where(cond, userID).
		Order("donated_at desc").
		Limit(100).
		Find(&donations).Error; err != nil {
		log.Printf("DB Error fetching donations for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch donations"})
	}
	return c.JSON(donations)
}
