// handlers/coin.go
package handlers

import (
	"stream-coin-system/middleware"
	"stream-coin-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCoinRoutes(app *fiber.App, wallets *services.WalletService, lots *services.CoinLotService, products *services.ProductService) {
	// 🔓 Gateway-internal routes — no user context needed
	// The payment gateway posts the "payment succeeded" signal here
	app.Post("/purchases/confirm", lots.HandlePaymentConfirmation)
	app.Get("/products", products.ListProducts)

	// 🔐 Secured routes — require user context from Gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/wallet", wallets.GetWallet)
	secured.Get("/purchases", lots.GetPurchaseHistory)

	// 🛡️ Admin routes
	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/lots/:id/freeze", lots.FreezeLot)
	admin.Post("/lots/:id/unfreeze", lots.UnfreezeLot)
	admin.Post("/products", products.CreateProduct)
	admin.Delete("/products/:id", products.DeactivateProduct)
}
