package services_test

import (
	"testing"
	"time"

	"stream-coin-system/models"
	"stream-coin-system/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// donateAndGetCoins runs a real donation and returns its payout coins
func donateAndGetCoins(t *testing.T, db *gorm.DB, donor, streamer string, amount int64) []models.PayoutCoin {
	t.Helper()
	donations, wallets := newDonationService(db)
	mintLot(t, db, wallets, donor, amount, 10, time.Now().Add(-time.Hour))
	donation, err := donations.Donate(donor, streamer, amount, "")
	require.NoError(t, err)

	var coins []models.PayoutCoin
	require.NoError(t, db.Where("donation_id = ?", donation.ID).Find(&coins).Error)
	return coins
}

func forceReady(t *testing.T, db *gorm.DB, coinID string, readyAt time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&models.PayoutCoin{}).
		Where("id = ?", coinID).
		Update("settlement_ready_at", readyAt).Error)
}

func TestSweepMaturesOnlyDueCoins(t *testing.T) {
	db := newTestDB(t)
	payouts := services.NewPayoutService(db)

	coins := donateAndGetCoins(t, db, uuid.NewString(), uuid.NewString(), 30)
	require.Len(t, coins, 1)
	due := coins[0]

	notDue := donateAndGetCoins(t, db, uuid.NewString(), uuid.NewString(), 20)[0]

	now := time.Now()
	forceReady(t, db, due.ID, now.Add(-time.Minute))

	matured, blocked, err := payouts.MaturePendingCoins(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), matured)
	assert.Equal(t, int64(0), blocked)

	assert.Equal(t, models.PayoutCoinStatusMatured, getCoin(t, db, due.ID).Status)
	assert.Equal(t, models.PayoutCoinStatusPending, getCoin(t, db, notDue.ID).Status)

	// Re-running the sweep is a no-op
	matured, blocked, err = payouts.MaturePendingCoins(now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), matured)
	assert.Equal(t, int64(0), blocked)
}

func TestSweepBlocksCoinsOfFrozenLots(t *testing.T) {
	db := newTestDB(t)
	payouts := services.NewPayoutService(db)

	coin := donateAndGetCoins(t, db, uuid.NewString(), uuid.NewString(), 25)[0]
	now := time.Now()
	forceReady(t, db, coin.ID, now.Add(-time.Minute))
	require.NoError(t, db.Model(&models.CoinLot{}).
		Where("id = ?", coin.LotID).
		Update("status", models.LotStatusFrozen).Error)

	matured, blocked, err := payouts.MaturePendingCoins(now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), matured)
	assert.Equal(t, int64(1), blocked)

	got := getCoin(t, db, coin.ID)
	assert.Equal(t, models.PayoutCoinStatusBlocked, got.Status)
	assert.NotEmpty(t, got.BlockReason)
}

func TestFreezeCascadesToPendingAndMaturedCoins(t *testing.T) {
	db := newTestDB(t)
	wallets := services.NewWalletService(db)
	products := services.NewProductService(db)
	payouts := services.NewPayoutService(db)
	lots := services.NewCoinLotService(db, wallets, products, payouts)

	donor := uuid.NewString()
	streamer := uuid.NewString()
	donations, _ := newDonationService(db)
	mintLot(t, db, wallets, donor, 100, 10, time.Now().Add(-time.Hour))

	first, err := donations.Donate(donor, streamer, 40, "")
	require.NoError(t, err)
	second, err := donations.Donate(donor, streamer, 30, "")
	require.NoError(t, err)

	var coinA, coinB models.PayoutCoin
	require.NoError(t, db.Where("donation_id = ?", first.ID).First(&coinA).Error)
	require.NoError(t, db.Where("donation_id = ?", second.ID).First(&coinB).Error)
	require.Equal(t, coinA.LotID, coinB.LotID)

	// One already matured, one still pending: both must block
	require.NoError(t, db.Model(&models.PayoutCoin{}).
		Where("id = ?", coinA.ID).
		Update("status", models.PayoutCoinStatusMatured).Error)

	blocked, err := lots.Freeze(coinA.LotID, "chargeback received")
	require.NoError(t, err)
	assert.Equal(t, int64(2), blocked)

	assert.Equal(t, models.LotStatusFrozen, getLot(t, db, coinA.LotID).Status)
	for _, id := range []string{coinA.ID, coinB.ID} {
		got := getCoin(t, db, id)
		assert.Equal(t, models.PayoutCoinStatusBlocked, got.Status)
		assert.Equal(t, "chargeback received", got.BlockReason)
	}

	// Freezing again cascades nothing new
	blocked, err = lots.Freeze(coinA.LotID, "again")
	require.NoError(t, err)
	assert.Equal(t, int64(0), blocked)
}

func TestUnblockChoosesStateBySettlementReadyAt(t *testing.T) {
	db := newTestDB(t)
	wallets := services.NewWalletService(db)
	products := services.NewProductService(db)
	payouts := services.NewPayoutService(db)
	lots := services.NewCoinLotService(db, wallets, products, payouts)

	coins := donateAndGetCoins(t, db, uuid.NewString(), uuid.NewString(), 50)
	coin := coins[0]

	_, err := lots.Freeze(coin.LotID, "fraud review")
	require.NoError(t, err)
	require.Equal(t, models.PayoutCoinStatusBlocked, getCoin(t, db, coin.ID).Status)

	// Still frozen: unblock refused
	_, err = payouts.Unblock(coin.ID, time.Now())
	require.ErrorIs(t, err, services.ErrInvalidPayoutState)

	require.NoError(t, lots.Unfreeze(coin.LotID))

	// Hold window not yet over → back to pending
	released, err := payouts.Unblock(coin.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.PayoutCoinStatusPending, released.Status)
	assert.Empty(t, released.BlockReason)

	// Block again, then unblock after the window → matured
	_, err = lots.Freeze(coin.LotID, "second look")
	require.NoError(t, err)
	require.NoError(t, lots.Unfreeze(coin.LotID))

	released, err = payouts.Unblock(coin.ID, time.Now().Add(testHoldPeriod+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.PayoutCoinStatusMatured, released.Status)
}

func TestUnblockRequiresBlockedCoin(t *testing.T) {
	db := newTestDB(t)
	payouts := services.NewPayoutService(db)

	coin := donateAndGetCoins(t, db, uuid.NewString(), uuid.NewString(), 10)[0]

	_, err := payouts.Unblock(coin.ID, time.Now())
	assert.ErrorIs(t, err, services.ErrInvalidPayoutState)
}

func TestPayoutSummaryCountsPerStatus(t *testing.T) {
	db := newTestDB(t)
	payouts := services.NewPayoutService(db)
	streamer := uuid.NewString()

	donateAndGetCoins(t, db, uuid.NewString(), streamer, 30) // pending, value 300
	mintMaturedCoin(t, db, streamer, 500, time.Now().Add(-4*24*time.Hour))

	summary, err := payouts.GetPayoutSummary(streamer)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.ByStatus["pending"].Count)
	assert.Equal(t, int64(300), summary.ByStatus["pending"].TotalValue)
	assert.Equal(t, int64(1), summary.ByStatus["matured"].Count)
	assert.Equal(t, int64(500), summary.ByStatus["matured"].TotalValue)
	assert.Equal(t, int64(0), summary.ByStatus["blocked"].Count)
	assert.Equal(t, int64(0), summary.ByStatus["settled"].Count)
}

func TestGetMaturedCoinsForSettlementOrdersOldestFirst(t *testing.T) {
	db := newTestDB(t)
	payouts := services.NewPayoutService(db)
	streamer := uuid.NewString()

	newer := mintMaturedCoin(t, db, streamer, 100, time.Now().Add(-24*time.Hour))
	older := mintMaturedCoin(t, db, streamer, 200, time.Now().Add(-48*time.Hour))
	mintMaturedCoin(t, db, uuid.NewString(), 300, time.Now().Add(-24*time.Hour)) // other streamer

	coins, err := payouts.GetMaturedCoinsForSettlement(streamer)
	require.NoError(t, err)
	require.Len(t, coins, 2)
	assert.Equal(t, older.ID, coins[0].ID)
	assert.Equal(t, newer.ID, coins[1].ID)
}
