// services/payout_service.go
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

// PayoutService owns the payout coin state machine:
//
//	PENDING → MATURED            hold window elapsed, lot not frozen
//	PENDING → BLOCKED            lot frozen before maturity
//	MATURED → BLOCKED            lot frozen after maturity
//	BLOCKED → MATURED | PENDING  manual unblock, by settlement_ready_at
//	MATURED → SETTLED            settlement engine only
type PayoutService struct {
	DB *gorm.DB
}

func NewPayoutService(db *gorm.DB) *PayoutService {
	return &PayoutService{DB: db}
}

// PayoutSummary is the per-streamer dashboard aggregate
type PayoutSummary struct {
	StreamerID string                `json:"streamer_id"`
	ByStatus   map[string]StatusLine `json:"by_status"`
}

type StatusLine struct {
	Count      int64 `json:"count"`
	TotalValue int64 `json:"total_value"`
}

// MaturePendingCoins transitions every due pending coin: BLOCKED when its
// originating lot froze during the hold, MATURED otherwise. Both transitions
// are bulk conditional updates keyed on the current status, so redundant
// scheduler instances running the sweep concurrently are harmless.
func (s *PayoutService) MaturePendingCoins(now time.Time) (matured, blocked int64, err error) {
	err = withTxRetry(s.DB, func(tx *gorm.DB) error {
		frozenLots := tx.Model(&models.CoinLot{}).Select("id").Where("status = ?", models.LotStatusFrozen)
		res := tx.Model(&models.PayoutCoin{}).
			Where("status = ? AND settlement_ready_at <= ?", models.PayoutCoinStatusPending, now).
			Where("lot_id IN (?)", frozenLots).
			Updates(map[string]interface{}{
				"status":       models.PayoutCoinStatusBlocked,
				"block_reason": "originating lot frozen before maturity",
			})
		if res.Error != nil {
			return res.Error
		}
		blocked = res.RowsAffected

		frozenLots = tx.Model(&models.CoinLot{}).Select("id").Where("status = ?", models.LotStatusFrozen)
		res = tx.Model(&models.PayoutCoin{}).
			Where("status = ? AND settlement_ready_at <= ?", models.PayoutCoinStatusPending, now).
			Where("lot_id NOT IN (?)", frozenLots).
			Update("status", models.PayoutCoinStatusMatured)
		if res.Error != nil {
			return res.Error
		}
		matured = res.RowsAffected
		return nil
	})
	return matured, blocked, err
}

// BlockCoinsForLot moves every pending or matured coin of the lot to BLOCKED
// in a single conditional update. Settled coins are already paid out and stay
// put. Runs inside the freeze transaction.
func (s *PayoutService) BlockCoinsForLot(tx *gorm.DB, lotID, reason string) (int64, error) {
	res := tx.Model(&models.PayoutCoin{}).
		Where("lot_id = ? AND status IN ?", lotID,
			[]models.PayoutCoinStatus{models.PayoutCoinStatusPending, models.PayoutCoinStatusMatured}).
		Updates(map[string]interface{}{
			"status":       models.PayoutCoinStatusBlocked,
			"block_reason": reason,
		})
	return res.RowsAffected, res.Error
}

// Unblock releases a blocked coin: to MATURED when its hold window has
// already passed, back to PENDING otherwise. Refused while the originating
// lot is still frozen.
func (s *PayoutService) Unblock(coinID string, now time.Time) (*models.PayoutCoin, error) {
	var coin models.PayoutCoin
	err := withTxRetry(s.DB, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", coinID).First(&coin).Error; err != nil {
			return err
		}
		if coin.Status != models.PayoutCoinStatusBlocked {
			return ErrInvalidPayoutState
		}

		var lot models.CoinLot
		if err := tx.Where("id = ?", coin.LotID).First(&lot).Error; err != nil {
			return err
		}
		if lot.Status == models.LotStatusFrozen {
			return ErrInvalidPayoutState
		}

		next := models.PayoutCoinStatusPending
		if !coin.SettlementReadyAt.After(now) {
			next = models.PayoutCoinStatusMatured
		}
		if err := tx.Model(&coin).Updates(map[string]interface{}{
			"status":       next,
			"block_reason": "",
		}).Error; err != nil {
			return err
		}
		coin.Status = next
		coin.BlockReason = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &coin, nil
}

// GetMaturedCoinsForSettlement returns the streamer's settlement pool,
// oldest donation first.
func (s *PayoutService) GetMaturedCoinsForSettlement(streamerID string) ([]models.PayoutCoin, error) {
	var coins []models.PayoutCoin
	err := s.DB.
		Where("streamer_id = ? AND status = ?", streamerID, models.PayoutCoinStatusMatured).
		Order("donated_at asc, id asc").
		Find(&coins).Error
	return coins, err
}

// GetPayoutSummary aggregates the streamer's coins per status
func (s *PayoutService) GetPayoutSummary(streamerID string) (*PayoutSummary, error) {
	var rows []struct {
		Status     string
		Count      int64
		TotalValue int64
	}
	err := s.DB.Model(&models.PayoutCoin{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(coin_value), 0) as total_value").
		Where("streamer_id = ?", streamerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := &PayoutSummary{StreamerID: streamerID, ByStatus: map[string]StatusLine{}}
	for _, status := range []models.PayoutCoinStatus{
		models.PayoutCoinStatusPending, models.PayoutCoinStatusMatured,
		models.PayoutCoinStatusBlocked, models.PayoutCoinStatusSettled,
	} {
		summary.ByStatus[string(status)] = StatusLine{}
	}
	for _, r := range rows {
		summary.ByStatus[r.Status] = StatusLine{Count: r.Count, TotalValue: r.TotalValue}
	}
	return summary, nil
}

// --- Handlers ---

// GetMaturedCoins feeds the streamer's "request settlement" screen
func (s *PayoutService) GetMaturedCoins(c *fiber.Ctx) error {
	streamerID := c.Locals("user_id").(string)

	coins, err := s.GetMaturedCoinsForSettlement(streamerID)
	if err != nil {
		log.Printf("DB Error fetching matured coins for %s: %v", streamerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch matured coins"})
	}

	var total int64
	for _, coin := range coins {
		total += coin.CoinValue
	}
	return c.JSON(fiber.Map{"coins": coins, "total_value": total})
}

// GetSummary is the streamer dashboard aggregate endpoint
func (s *PayoutService) GetSummary(c *fiber.Ctx) error {
	streamerID := c.Locals("user_id").(string)

	summary, err := s.GetPayoutSummary(streamerID)
	if err != nil {
		log.Printf("DB Error building payout summary for %s: %v", streamerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build payout summary"})
	}
	return c.JSON(summary)
}

// UnblockCoin is the admin release of a blocked payout coin
func (s *PayoutService) UnblockCoin(c *fiber.Ctx) error {
	coinID := c.Params("id")
	if _, err := uuid.Parse(coinID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payout coin ID"})
	}

	coin, err := s.Unblock(coinID, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout coin not found"})
		}
		if errors.Is(err, ErrInvalidPayoutState) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Coin is not blocked, or its lot is still frozen"})
		}
		log.Printf("DB Error unblocking coin %s: %v", coinID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to unblock coin"})
	}
	return c.JSON(fiber.Map{"message": "Coin unblocked", "coin": coin})
}

// RunMaturitySweep triggers the sweep on demand (Admin only; the scheduler
// runs the same thing on an interval)
func (s *PayoutService) RunMaturitySweep(c *fiber.Ctx) error {
	matured, blocked, err := s.MaturePendingCoins(time.Now())
	if err != nil {
		log.Printf("DB Error running maturity sweep: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Sweep failed"})
	}
	return c.JSON(fiber.Map{"matured": matured, "blocked": blocked})
}
