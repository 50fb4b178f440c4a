// handlers/donation.go
package handlers

import (
	"stream-coin-system/middleware"
	"stream-coin-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDonationRoutes(app *fiber.App, donations *services.DonationService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/donations", donations.CreateDonation)
	secured.Get("/donations/sent", donations.GetSentDonations)
	secured.Get("/donations/received", donations.GetReceivedDonations)
}
