package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hlpay/paystream/internal/auth"
	"github.com/hlpay/paystream/internal/config"
	"github.com/hlpay/paystream/internal/identity"
	"github.com/hlpay/paystream/internal/ledger"
	"github.com/hlpay/paystream/internal/middleware"
	"github.com/hlpay/paystream/internal/notification"
	"github.com/hlpay/paystream/internal/stream"
	"github.com/hlpay/paystream/internal/tax"
	"github.com/hlpay/paystream/internal/treasury"
	"github.com/hlpay/paystream/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.Development() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	var ledgerBackend ledger.Ledger
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		_ = ledgerBackend.EnsureAccount(context.Background(), ledger.BankSuspenseAccountCode)
	}

	var walletRepo wallet.Repository
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
	} else {
		walletRepo = wallet.NewMemoryRepository()
	}
	walletSvc := wallet.NewService(walletRepo, ledgerBackend)
	notifier := notification.NewLoggerNotifier(d.Logger)

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	authHandler := auth.NewHandler(identitySvc, authSvc, walletSvc)

	treasurySvc, err := treasury.NewService(context.Background(), ledgerBackend, walletSvc, nil)
	if err != nil {
		return err
	}

	var streamRepo stream.Repository
	var recorder stream.Recorder
	var txr stream.TxRunner
	if d.DB != nil {
		streamRepo = stream.NewPostgresRepository(d.DB)
		recorder = stream.NewPostgresRecorder(d.DB)
		txr = stream.NewPostgresTxRunner(d.DB)
	} else {
		streamRepo = stream.NewMemoryRepository()
		recorder = stream.NewMemoryRecorder()
	}
	policy := tax.Policy{RateBasisPoints: d.Cfg.TaxRateBasisPoints, AccountCode: d.Cfg.TaxAccountCode}
	streamSvc, err := stream.NewService(context.Background(), streamRepo, ledgerBackend, txr, walletSvc, policy, recorder, notifier)
	if err != nil {
		return err
	}

	treasuryHandler := treasury.NewHandler(treasurySvc)
	streamHandler := stream.NewHandler(streamSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	identityHandler := identity.NewHandler(identitySvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identitySvc, walletSvc, d.Logger)
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Protected routes
	jwtmw := middleware.JWTAuth(d.Cfg, identityRepo)
	protected := api.Group("", jwtmw)
	protected.Get("/me", identityHandler.Me)
	RegisterWalletMeRoute(protected, walletSvc, identityRepo)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterTreasuryRoutes(protected, treasuryHandler)
	RegisterStreamRoutes(protected, streamHandler, middleware.RequireRole(identity.RoleHR))

	return nil
}
