// handlers/payout.go
package handlers

import (
	"stream-coin-system/middleware"
	"stream-coin-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPayoutRoutes(app *fiber.App, payouts *services.PayoutService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Streamer dashboard
	secured.Get("/payouts/summary", payouts.GetSummary)
	secured.Get("/payouts/matured", payouts.GetMaturedCoins)

	// 🛡️ Admin routes
	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/payout-coins/:id/unblock", payouts.UnblockCoin)
	admin.Post("/payouts/sweep", payouts.RunMaturitySweep)
}
