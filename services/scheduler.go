// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartMaturityScheduler runs the payout maturity sweep on an interval.
// The sweep is idempotent, so extra instances of this service running the
// same job are harmless.
func (s *PayoutService) StartMaturityScheduler(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			matured, blocked, err := s.MaturePendingCoins(time.Now())
			if err != nil {
				log.Printf("[Scheduler] maturity sweep failed: %v", err)
				return
			}
			if matured > 0 || blocked > 0 {
				log.Printf("✅ [Scheduler] maturity sweep: %d matured, %d blocked", matured, blocked)
			}
		}),
	)
}

// StartReconciliationScheduler periodically checks the cached wallet
// aggregates against the lots/usages/donations that back them.
// Drift is logged, never auto-corrected.
func (s *WalletService) StartReconciliationScheduler(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			drifted, err := s.ReconcileWallets()
			if err != nil {
				log.Printf("[Scheduler] wallet reconciliation failed: %v", err)
				return
			}
			if drifted > 0 {
				log.Printf("⚠️ [Scheduler] wallet reconciliation: %d wallet(s) drifted", drifted)
			}
		}),
	)
}
