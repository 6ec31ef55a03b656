package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nft-gate/backend/internal/config"
	"github.com/nft-gate/backend/internal/http/handlers"
	"github.com/nft-gate/backend/internal/middleware"
	"github.com/nft-gate/backend/internal/rbac"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	verificationHandler *handlers.VerificationHandler,
	walletHandler *handlers.WalletHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", middleware.AuthMiddleware(cfg.JWTSecret, log))
	api.Use(middleware.RateLimitMiddleware(rdb, 120, time.Minute))

	// Verification
	api.Post("/verifications",
		middleware.RequirePermission(rbac.PermStartVerification), verificationHandler.Start)
	api.Get("/verifications/:userId/:index",
		middleware.RequirePermission(rbac.PermCheckVerification), verificationHandler.Check)

	// Wallets
	api.Get("/users/:userId/wallets",
		middleware.RequirePermission(rbac.PermReadWallets), walletHandler.List)
	api.Delete("/users/:userId/wallets/:address",
		middleware.RequirePermission(rbac.PermRemoveWallet), walletHandler.Remove)
	api.Post("/users/:userId/refresh",
		middleware.RequirePermission(rbac.PermRefreshHoldings), walletHandler.Refresh)

	// Admin
	api.Get("/admin/status",
		middleware.RequirePermission(rbac.PermViewStatus), adminHandler.Status)
	api.Post("/admin/storage/resync",
		middleware.RequirePermission(rbac.PermResyncStorage), adminHandler.Resync)
	api.Post("/admin/audit",
		middleware.RequirePermission(rbac.PermRunAudit), adminHandler.RunAudit)

	// WebSocket
	if wsHub != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(wsHub.HandleWS))
	}
}
