package services_test

import (
	"testing"
	"time"

	"stream-coin-system/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletEnsureIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	wallets := services.NewWalletService(db)
	userID := uuid.NewString()

	first, err := wallets.Ensure(db, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.CoinBalance)

	second, err := wallets.Ensure(db, userID)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, int64(1), countRows(t, db, first, "user_id = ?", userID))
}

func TestWalletCreditDebitKeepsInvariant(t *testing.T) {
	db := newTestDB(t)
	wallets := services.NewWalletService(db)
	userID := uuid.NewString()

	require.NoError(t, wallets.Credit(db, userID, 300))
	require.NoError(t, wallets.Debit(db, userID, 120))
	require.NoError(t, wallets.CreditReceived(db, userID, 40))

	w := getWallet(t, db, userID)
	assert.Equal(t, int64(300), w.TotalCharged)
	assert.Equal(t, int64(120), w.TotalUsed)
	assert.Equal(t, int64(40), w.TotalReceived)
	assert.Equal(t, w.TotalCharged+w.TotalReceived-w.TotalUsed, w.CoinBalance)
}

func TestWalletDebitNeverGoesNegative(t *testing.T) {
	db := newTestDB(t)
	wallets := services.NewWalletService(db)
	userID := uuid.NewString()

	require.NoError(t, wallets.Credit(db, userID, 50))

	err := wallets.Debit(db, userID, 51)
	require.ErrorIs(t, err, services.ErrInsufficientBalance)

	w := getWallet(t, db, userID)
	assert.Equal(t, int64(50), w.CoinBalance)
	assert.Equal(t, int64(0), w.TotalUsed)

	// Draining to exactly zero is fine
	require.NoError(t, wallets.Debit(db, userID, 50))
	assert.Equal(t, int64(0), getWallet(t, db, userID).CoinBalance)
}

func TestWalletRejectsNonPositiveAmounts(t *testing.T) {
	db := newTestDB(t)
	wallets := services.NewWalletService(db)
	userID := uuid.NewString()

	assert.ErrorIs(t, wallets.Credit(db, userID, 0), services.ErrInvalidAmount)
	assert.ErrorIs(t, wallets.Debit(db, userID, -5), services.ErrInvalidAmount)
	assert.ErrorIs(t, wallets.CreditReceived(db, userID, 0), services.ErrInvalidAmount)
}

func TestReconcileWalletsFlagsDrift(t *testing.T) {
	db := newTestDB(t)
	wallets := services.NewWalletService(db)

	clean := uuid.NewString()
	mintLot(t, db, wallets, clean, 100, 10, time.Now())

	drifted, err := wallets.ReconcileWallets()
	require.NoError(t, err)
	assert.Equal(t, 0, drifted)

	// Corrupt the cached aggregate behind the ledger's back
	w := getWallet(t, db, clean)
	require.NoError(t, db.Model(&w).Update("coin_balance", 999).Error)

	drifted, err = wallets.ReconcileWallets()
	require.NoError(t, err)
	assert.Equal(t, 1, drifted)
}
