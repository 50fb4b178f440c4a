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

const testHoldPeriod = 72 * time.Hour

func newDonationService(db *gorm.DB) (*services.DonationService, *services.WalletService) {
	wallets := services.NewWalletService(db)
	allocator := services.NewUsageAllocator(db, wallets)
	return services.NewDonationService(db, wallets, allocator, testHoldPeriod), wallets
}

func TestDonateSpansLotsAndValuesPerLot(t *testing.T) {
	db := newTestDB(t)
	donations, wallets := newDonationService(db)

	donor := uuid.NewString()
	streamer := uuid.NewString()

	// 100 coins at unit price 10, then 50 at unit price 12
	lotA := mintLot(t, db, wallets, donor, 100, 10, time.Now().Add(-2*time.Hour))
	lotB := mintLot(t, db, wallets, donor, 50, 12, time.Now().Add(-1*time.Hour))

	donation, err := donations.Donate(donor, streamer, 120, "great stream!")
	require.NoError(t, err)
	assert.Equal(t, int64(120), donation.CoinAmount)

	// Usage: all 100 of lot A, 20 of lot B
	var usages []models.UsageRecord
	require.NoError(t, db.Where("donation_id = ?", donation.ID).Order("used_at asc, id asc").Find(&usages).Error)
	require.Len(t, usages, 2)
	usedByLot := map[string]int64{}
	for _, u := range usages {
		usedByLot[u.LotID] += u.UsedCoins
	}
	assert.Equal(t, int64(100), usedByLot[lotA.ID])
	assert.Equal(t, int64(20), usedByLot[lotB.ID])

	// Payout coins: floor(100*10)=1000 and floor(20*12)=240, both pending
	var coins []models.PayoutCoin
	require.NoError(t, db.Where("donation_id = ?", donation.ID).Find(&coins).Error)
	require.Len(t, coins, 2)
	valueByLot := map[string]int64{}
	var coinSum, valueSum int64
	for _, coin := range coins {
		valueByLot[coin.LotID] = coin.CoinValue
		coinSum += coin.CoinAmount
		valueSum += coin.CoinValue
		assert.Equal(t, models.PayoutCoinStatusPending, coin.Status)
		assert.Equal(t, streamer, coin.StreamerID)
		assert.WithinDuration(t, donation.DonatedAt.Add(testHoldPeriod), coin.SettlementReadyAt, time.Second)
	}
	assert.Equal(t, int64(1000), valueByLot[lotA.ID])
	assert.Equal(t, int64(240), valueByLot[lotB.ID])

	// donation.coin_amount == Σ usages == Σ payout coins
	assert.Equal(t, donation.CoinAmount, coinSum)
	assert.Equal(t, donation.CoinValue, valueSum)

	// Wallet effects on both sides
	donorWallet := getWallet(t, db, donor)
	assert.Equal(t, int64(120), donorWallet.TotalUsed)
	assert.Equal(t, int64(30), donorWallet.CoinBalance)
	streamerWallet := getWallet(t, db, streamer)
	assert.Equal(t, int64(120), streamerWallet.TotalReceived)
}

func TestDonateInsufficientBalanceLeavesNoRows(t *testing.T) {
	db := newTestDB(t)
	donations, wallets := newDonationService(db)

	donor := uuid.NewString()
	streamer := uuid.NewString()
	mintLot(t, db, wallets, donor, 50, 10, time.Now())

	_, err := donations.Donate(donor, streamer, 100, "")
	require.ErrorIs(t, err, services.ErrInsufficientBalance)

	assert.Equal(t, int64(0), countRows(t, db, &models.Donation{}, ""))
	assert.Equal(t, int64(0), countRows(t, db, &models.UsageRecord{}, ""))
	assert.Equal(t, int64(0), countRows(t, db, &models.PayoutCoin{}, ""))
	assert.Equal(t, int64(50), getWallet(t, db, donor).CoinBalance)
}

func TestDonateRejectsSelfDonation(t *testing.T) {
	db := newTestDB(t)
	donations, wallets := newDonationService(db)

	user := uuid.NewString()
	mintLot(t, db, wallets, user, 100, 10, time.Now())

	_, err := donations.Donate(user, user, 10, "")
	assert.ErrorIs(t, err, services.ErrSelfDonation)
	assert.Equal(t, int64(0), countRows(t, db, &models.Donation{}, ""))
}

func TestDonateRejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	donations, _ := newDonationService(db)

	_, err := donations.Donate(uuid.NewString(), uuid.NewString(), 0, "")
	assert.ErrorIs(t, err, services.ErrInvalidAmount)

	_, err = donations.Donate(uuid.NewString(), uuid.NewString(), -7, "")
	assert.ErrorIs(t, err, services.ErrInvalidAmount)
}

func TestDonateSingleLot(t *testing.T) {
	db := newTestDB(t)
	donations, wallets := newDonationService(db)

	donor := uuid.NewString()
	streamer := uuid.NewString()
	lot := mintLot(t, db, wallets, donor, 200, 5, time.Now())

	donation, err := donations.Donate(donor, streamer, 80, "hi")
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, db, &models.UsageRecord{}, "donation_id = ?", donation.ID))
	assert.Equal(t, int64(120), getLot(t, db, lot.ID).RemainingCoins)

	coin := models.PayoutCoin{}
	require.NoError(t, db.Where("donation_id = ?", donation.ID).First(&coin).Error)
	assert.Equal(t, int64(400), coin.CoinValue) // floor(80 * 5)
	assert.Equal(t, donation.CoinValue, coin.CoinValue)
}
