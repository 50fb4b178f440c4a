// handlers/settlement.go
package handlers

import (
	"stream-coin-system/middleware"
	"stream-coin-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSettlementRoutes(app *fiber.App, settlements *services.SettlementService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Streamer-facing
	secured.Post("/settlements", settlements.RequestSettlement)
	secured.Get("/settlements", settlements.GetMySettlements)

	// 🛡️ Admin approval workflow
	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Get("/settlements", settlements.GetAllSettlements)
	admin.Post("/settlements/:id/approve", settlements.ApproveSettlement)
	admin.Post("/settlements/:id/pay", settlements.PaySettlement)
	admin.Post("/settlements/:id/reject", settlements.RejectSettlement)
}
