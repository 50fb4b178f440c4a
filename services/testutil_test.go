package services_test

import (
	"fmt"
	"testing"
	"time"

	"stream-coin-system/models"
	"stream-coin-system/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a per-test in-memory database with the full ledger schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // shared-cache in-memory DB, keep one connection

	require.NoError(t, db.AutoMigrate(
		&models.WalletBalance{},
		&models.CoinProduct{},
		&models.CoinLot{},
		&models.UsageRecord{},
		&models.Donation{},
		&models.PayoutCoin{},
		&models.Settlement{},
		&models.UserMirror{},
	))
	return db
}

// mintLot records a completed purchase directly and credits the wallet, the
// same shape CoinLotService.CreateLot produces, with full control over
// purchase time and unit price.
func mintLot(t *testing.T, db *gorm.DB, wallets *services.WalletService, userID string, coins int64, unitPrice float64, purchasedAt time.Time) *models.CoinLot {
	t.Helper()

	lot := &models.CoinLot{
		ID:                    uuid.NewString(),
		UserID:                userID,
		ProductRef:            "test-pack",
		ExternalTransactionID: "tx-" + uuid.NewString(),
		TotalCoins:            coins,
		RemainingCoins:        coins,
		UnitPrice:             unitPrice,
		Status:                models.LotStatusCompleted,
		PurchasedAt:           purchasedAt,
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(lot).Error; err != nil {
			return err
		}
		return wallets.Credit(tx, userID, coins)
	}))
	return lot
}

// mintMaturedCoin inserts a payout coin already past its hold window
func mintMaturedCoin(t *testing.T, db *gorm.DB, streamerID string, value int64, donatedAt time.Time) *models.PayoutCoin {
	t.Helper()

	coin := &models.PayoutCoin{
		ID:                uuid.NewString(),
		StreamerID:        streamerID,
		DonationID:        uuid.NewString(),
		UsageID:           uuid.NewString(),
		LotID:             uuid.NewString(),
		CoinAmount:        value, // 1:1 for settlement-only tests
		CoinValue:         value,
		DonatedAt:         donatedAt,
		SettlementReadyAt: donatedAt.Add(72 * time.Hour),
		Status:            models.PayoutCoinStatusMatured,
	}
	require.NoError(t, db.Create(coin).Error)
	return coin
}

func getWallet(t *testing.T, db *gorm.DB, userID string) models.WalletBalance {
	t.Helper()
	var w models.WalletBalance
	require.NoError(t, db.Where("user_id = ?", userID).First(&w).Error)
	return w
}

func getLot(t *testing.T, db *gorm.DB, lotID string) models.CoinLot {
	t.Helper()
	var lot models.CoinLot
	require.NoError(t, db.Where("id = ?", lotID).First(&lot).Error)
	return lot
}

func getCoin(t *testing.T, db *gorm.DB, coinID string) models.PayoutCoin {
	t.Helper()
	var coin models.PayoutCoin
	require.NoError(t, db.Where("id = ?", coinID).First(&coin).Error)
	return coin
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, cond string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if cond != "" {
		q = q.Where(cond, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
