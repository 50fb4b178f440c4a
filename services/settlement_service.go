// services/settlement_service.go
package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"stream-coin-system/models"
	"stream-coin-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettlementService batches a streamer's matured payout coins into cash-out
// requests and drives the admin approval workflow:
//
//	PENDING → APPROVED → PAID
//	PENDING → REJECTED (coins roll back to MATURED)
type SettlementService struct {
	DB      *gorm.DB
	FeeRate float64
}

func NewSettlementService(db *gorm.DB, feeRate float64) *SettlementService {
	return &SettlementService{DB: db, FeeRate: feeRate}
}

// SettlementOptions carry the streamer's payout destination
type SettlementOptions struct {
	PayoutMethod  string
	PayoutAccount string
}

// CreateSettlement validates that every referenced coin exists, belongs to
// the streamer and is MATURED — rejecting the whole batch otherwise — then
// creates the pending settlement and flips the coins to SETTLED atomically.
// fee = floor(total * FeeRate), payout = total - fee, period = min/max
// donated_at across the batch.
func (s *SettlementService) CreateSettlement(streamerID string, coinIDs []string, opts SettlementOptions) (*models.Settlement, error) {
	if len(coinIDs) == 0 {
		return nil, ErrEmptySettlement
	}

	// Dedupe: a repeated id must not inflate the total
	seen := make(map[string]bool, len(coinIDs))
	ids := make([]string, 0, len(coinIDs))
	for _, id := range coinIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var settlement *models.Settlement
	err := withTxRetry(s.DB, func(tx *gorm.DB) error {
		var coins []models.PayoutCoin
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", ids).
			Find(&coins).Error; err != nil {
			return err
		}
		if len(coins) != len(ids) {
			return gorm.ErrRecordNotFound
		}

		now := time.Now()
		var totalValue int64
		periodStart, periodEnd := coins[0].DonatedAt, coins[0].DonatedAt
		for _, coin := range coins {
			if coin.StreamerID != streamerID || coin.Status != models.PayoutCoinStatusMatured {
				return ErrInvalidPayoutState
			}
			totalValue += coin.CoinValue
			if coin.DonatedAt.Before(periodStart) {
				periodStart = coin.DonatedAt
			}
			if coin.DonatedAt.After(periodEnd) {
				periodEnd = coin.DonatedAt
			}
		}

		feeAmount := int64(math.Floor(float64(totalValue) * s.FeeRate))
		settlement = &models.Settlement{
			ID:            uuid.NewString(),
			StreamerID:    streamerID,
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			TotalValue:    totalValue,
			FeeAmount:     feeAmount,
			PayoutAmount:  totalValue - feeAmount,
			Status:        models.SettlementStatusPending,
			PayoutMethod:  opts.PayoutMethod,
			PayoutAccount: opts.PayoutAccount,
			RequestedAt:   now,
		}
		if err := tx.Create(settlement).Error; err != nil {
			return err
		}

		// Conditional on MATURED so a racing settlement of the same coins
		// loses cleanly instead of double-settling
		res := tx.Model(&models.PayoutCoin{}).
			Where("id IN ? AND status = ?", ids, models.PayoutCoinStatusMatured).
			Updates(map[string]interface{}{
				"status":        models.PayoutCoinStatusSettled,
				"settlement_id": settlement.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return ErrInvalidPayoutState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🧾 [SETTLEMENT] %s requested by %s: %d coin(s), total=%d fee=%d payout=%d",
		settlement.ID, streamerID, len(ids), settlement.TotalValue, settlement.FeeAmount, settlement.PayoutAmount)
	return settlement, nil
}

// Approve moves a settlement PENDING → APPROVED
func (s *SettlementService) Approve(settlementID, adminMemo string) (*models.Settlement, error) {
	return s.transition(settlementID, models.SettlementStatusPending, models.SettlementStatusApproved,
		func(now time.Time, updates map[string]interface{}) {
			updates["approved_at"] = now
			if adminMemo != "" {
				updates["admin_memo"] = adminMemo
			}
		})
}

// MarkAsPaid moves a settlement APPROVED → PAID and exports its statement
func (s *SettlementService) MarkAsPaid(settlementID string) (*models.Settlement, error) {
	settlement, err := s.transition(settlementID, models.SettlementStatusApproved, models.SettlementStatusPaid,
		func(now time.Time, updates map[string]interface{}) {
			updates["paid_at"] = now
		})
	if err != nil {
		return nil, err
	}

	// Statement export is a side artifact — a failed upload never unwinds
	// the payment.
	if url, err := s.exportStatement(settlement); err != nil {
		log.Printf("⚠️ [SETTLEMENT] statement export failed for %s: %v", settlement.ID, err)
	} else if url != "" {
		if err := s.DB.Model(settlement).Update("statement_url", url).Error; err != nil {
			log.Printf("⚠️ [SETTLEMENT] failed to store statement URL for %s: %v", settlement.ID, err)
		} else {
			settlement.StatementURL = url
		}
	}
	return settlement, nil
}

// Reject moves a settlement PENDING → REJECTED and atomically returns every
// linked coin to MATURED with its settlement link cleared, restoring the
// coins to the settlement pool.
func (s *SettlementService) Reject(settlementID, reason string) (*models.Settlement, error) {
	var settlement models.Settlement
	err := withTxRetry(s.DB, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", settlementID).First(&settlement).Error; err != nil {
			return err
		}
		if settlement.Status != models.SettlementStatusPending {
			return ErrInvalidPayoutState
		}

		now := time.Now()
		if err := tx.Model(&settlement).Updates(map[string]interface{}{
			"status":        models.SettlementStatusRejected,
			"reject_reason": reason,
			"rejected_at":   now,
		}).Error; err != nil {
			return err
		}
		settlement.Status = models.SettlementStatusRejected
		settlement.RejectReason = reason
		settlement.RejectedAt = &now

		return tx.Model(&models.PayoutCoin{}).
			Where("settlement_id = ? AND status = ?", settlementID, models.PayoutCoinStatusSettled).
			Updates(map[string]interface{}{
				"status":        models.PayoutCoinStatusMatured,
				"settlement_id": nil,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (s *SettlementService) transition(settlementID string, from, to models.SettlementStatus,
	stamp func(now time.Time, updates map[string]interface{})) (*models.Settlement, error) {

	var settlement models.Settlement
	err := withTxRetry(s.DB, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", settlementID).First(&settlement).Error; err != nil {
			return err
		}
		if settlement.Status != from {
			return ErrInvalidPayoutState
		}

		now := time.Now()
		updates := map[string]interface{}{"status": to}
		stamp(now, updates)
		if err := tx.Model(&settlement).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", settlementID).First(&settlement).Error
	})
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

// exportStatement renders the paid settlement as CSV and uploads it to R2.
// Returns "" when the object store is not configured.
func (s *SettlementService) exportStatement(settlement *models.Settlement) (string, error) {
	if !utils.R2Enabled() {
		return "", nil
	}

	var coins []models.PayoutCoin
	if err := s.DB.Where("settlement_id = ?", settlement.ID).
		Order("donated_at asc").
		Find(&coins).Error; err != nil {
		return "", err
	}

	streamerName := settlement.StreamerID
	var mirror models.UserMirror
	if err := s.DB.Where("user_id = ?", settlement.StreamerID).First(&mirror).Error; err == nil {
		streamerName = mirror.DisplayName
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"settlement_id", "streamer", "period_start", "period_end"})
	_ = w.Write([]string{settlement.ID, streamerName,
		settlement.PeriodStart.Format(time.RFC3339), settlement.PeriodEnd.Format(time.RFC3339)})
	_ = w.Write(nil)
	_ = w.Write([]string{"payout_coin_id", "donation_id", "donated_at", "coins", "value"})
	for _, coin := range coins {
		_ = w.Write([]string{coin.ID, coin.DonationID, coin.DonatedAt.Format(time.RFC3339),
			fmt.Sprintf("%d", coin.CoinAmount), utils.FormatMinorUnits(coin.CoinValue)})
	}
	_ = w.Write(nil)
	_ = w.Write([]string{"total_value", utils.FormatMinorUnits(settlement.TotalValue)})
	_ = w.Write([]string{"fee_amount", utils.FormatMinorUnits(settlement.FeeAmount)})
	_ = w.Write([]string{"payout_amount", utils.FormatMinorUnits(settlement.PayoutAmount)})
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	key := "statements/" + settlement.ID + ".csv"
	return utils.UploadStatementToR2(key, buf.Bytes(), "text/csv")
}

// --- Streamer Handlers ---

// RequestSettlement creates a settlement over the streamer's chosen coins
func (s *SettlementService) RequestSettlement(c *fiber.Ctx) error {
	streamerID := c.Locals("user_id").(string)

	var req struct {
		PayoutCoinIDs []string `json:"payout_coin_ids"`
		PayoutMethod  string   `json:"payout_method"`
		PayoutAccount string   `json:"payout_account"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	settlement, err := s.CreateSettlement(streamerID, req.PayoutCoinIDs, SettlementOptions{
		PayoutMethod:  req.PayoutMethod,
		PayoutAccount: req.PayoutAccount,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptySettlement):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payout_coin_ids must not be empty"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "One or more payout coins not found"})
		case errors.Is(err, ErrInvalidPayoutState):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "All payout coins must be matured and owned by the requesting streamer"})
		}
		log.Printf("DB Error creating settlement for %s: %v", streamerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create settlement"})
	}
	return c.Status(fiber.StatusCreated).JSON(settlement)
}

// GetMySettlements lists the authenticated streamer's settlements
func (s *SettlementService) GetMySettlements(c *fiber.Ctx) error {
	streamerID := c.Locals("user_id").(string)

	var settlements []models.Settlement
	if err := s.DB.Where("streamer_id = ?", streamerID).
		Order("requested_at desc").
		Find(&settlements).Error; err != nil {
		log.Printf("DB Error fetching settlements for %s: %v", streamerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch settlements"})
	}
	return c.JSON(settlements)
}

// --- Admin Handlers ---

// GetAllSettlements lists settlements for the admin review queue,
// optionally filtered by status
func (s *SettlementService) GetAllSettlements(c *fiber.Ctx) error {
	query := s.DB.Order("requested_at desc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var settlements []models.Settlement
	if err := query.Find(&settlements).Error; err != nil {
		log.Printf("DB Error fetching settlements: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch settlements"})
	}
	return c.JSON(settlements)
}

// ApproveSettlement handles PENDING → APPROVED (Admin only)
func (s *SettlementService) ApproveSettlement(c *fiber.Ctx) error {
	var req struct {
		AdminMemo string `json:"admin_memo"`
	}
	_ = c.BodyParser(&req) // memo is optional

	return s.handleTransition(c, func(id string) (*models.Settlement, error) {
		return s.Approve(id, req.AdminMemo)
	}, "Settlement approved")
}

// PaySettlement handles APPROVED → PAID (Admin only)
func (s *SettlementService) PaySettlement(c *fiber.Ctx) error {
	return s.handleTransition(c, s.MarkAsPaid, "Settlement marked as paid")
}

// RejectSettlement handles PENDING → REJECTED (Admin only)
func (s *SettlementService) RejectSettlement(c *fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
	}

	return s.handleTransition(c, func(id string) (*models.Settlement, error) {
		return s.Reject(id, req.Reason)
	}, "Settlement rejected")
}

func (s *SettlementService) handleTransition(c *fiber.Ctx, fn func(id string) (*models.Settlement, error), okMsg string) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid settlement ID"})
	}

	settlement, err := fn(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Settlement not found"})
		}
		if errors.Is(err, ErrInvalidPayoutState) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Settlement is not in the required state"})
		}
		log.Printf("DB Error on settlement %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Settlement update failed"})
	}
	return c.JSON(fiber.Map{"message": okMsg, "settlement": settlement})
}
