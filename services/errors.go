// services/errors.go
package services

import (
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Ledger error kinds. All of these are validation failures surfaced
// synchronously to the caller and are never retried.
var (
	// ErrInsufficientBalance: a wallet debit would take the balance below zero.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	// ErrInsufficientCoins: the FIFO allocator cannot source the full amount
	// from the user's available lots.
	ErrInsufficientCoins = errors.New("insufficient coins in available lots")
	// ErrInvalidPayoutState: a payout coin or settlement is not in the state
	// the requested transition requires.
	ErrInvalidPayoutState = errors.New("payout entity is not in the required state")
	// ErrSelfDonation: donor and streamer are the same user.
	ErrSelfDonation = errors.New("self-donation is not allowed")
	// ErrInvalidAmount: zero or negative coin amount.
	ErrInvalidAmount = errors.New("coin amount must be positive")
	// ErrEmptySettlement: settlement request without payout coins.
	ErrEmptySettlement = errors.New("settlement requires at least one payout coin")
)

// withTxRetry runs fn inside a database transaction and retries it on
// serialization conflicts and deadlocks (SQLSTATE 40001 / 40P01). Ledger
// validation errors abort immediately — only transaction-level conflicts
// are worth a second attempt.
func withTxRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	const maxAttempts = 3

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = db.Transaction(fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		log.Printf("[LEDGER] transaction conflict (attempt %d/%d): %v", attempt, maxAttempts, err)
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	return err
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
