package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stream-coin-system/handlers"
	"stream-coin-system/middleware"
	"stream-coin-system/models"
	"stream-coin-system/services"
	"stream-coin-system/utils"
	"stream-coin-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB — this service moves numbers, not files
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.WalletBalance{},
		&models.CoinProduct{},
		&models.CoinLot{},
		&models.UsageRecord{},
		&models.Donation{},
		&models.PayoutCoin{},
		&models.Settlement{},
		&models.UserMirror{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Statement export is optional — the ledger runs fine without R2
	if os.Getenv("R2_BUCKET_NAME") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	} else {
		log.Println("⚠️  R2_BUCKET_NAME not set — settlement statement export disabled")
	}

	holdPeriod := time.Duration(envInt("PAYOUT_HOLD_HOURS", 72)) * time.Hour
	feeRate := envFloat("SETTLEMENT_FEE_RATE", 0.10)
	sweepInterval := envDuration("MATURITY_SWEEP_INTERVAL", 1*time.Minute)
	reconcileInterval := envDuration("RECONCILE_INTERVAL", 1*time.Hour)

	walletService := services.NewWalletService(db)
	productService := services.NewProductService(db)
	payoutService := services.NewPayoutService(db)
	allocator := services.NewUsageAllocator(db, walletService)
	lotService := services.NewCoinLotService(db, walletService, productService, payoutService)
	donationService := services.NewDonationService(db, walletService, allocator, holdPeriod)
	settlementService := services.NewSettlementService(db, feeRate)

	if err := productService.SeedDefaults(); err != nil {
		log.Fatal("failed to seed coin products:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- User mirror sync (identity service → user_mirror) ---
	if os.Getenv("IDENTITY_SERVICE_URL") != "" {
		userSyncClient := workers.NewUserSyncClient(db)
		go workers.PollUsers(ctx, userSyncClient, 30*time.Second)
	} else {
		log.Println("⚠️  IDENTITY_SERVICE_URL not set — user mirror sync disabled")
	}

	payoutService.StartMaturityScheduler(sweepInterval)
	walletService.StartReconciliationScheduler(reconcileInterval)

	// ✅ Setup routes — all behind enforced Gateway auth
	handlers.SetupCoinRoutes(app, walletService, lotService, productService)
	handlers.SetupDonationRoutes(app, donationService)
	handlers.SetupPayoutRoutes(app, payoutService)
	handlers.SetupSettlementRoutes(app, settlementService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ Maturity sweep every %s, hold period %s", sweepInterval, holdPeriod)
	log.Printf("✅ Wallet reconciliation every %s", reconcileInterval)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, os.Getenv(key), def)
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("⚠️  Invalid %s=%q, using default %g", key, os.Getenv(key), def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, os.Getenv(key), def)
	}
	return def
}
