package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lumopay/lumopay/internal/config"
	"github.com/lumopay/lumopay/internal/identity"
	"github.com/lumopay/lumopay/internal/ledger"
	"github.com/lumopay/lumopay/internal/middleware"
	"github.com/lumopay/lumopay/internal/notification"
	"github.com/lumopay/lumopay/internal/payment"
	"github.com/lumopay/lumopay/internal/rewards"
	"github.com/lumopay/lumopay/internal/transfer"
	"github.com/lumopay/lumopay/internal/wallet"
)

const (
	accessTokenTTL  = 24 * time.Hour
	transfersPerMin = 30
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Services bundles the wired domain services so background jobs in main can
// share the exact instances the routes use.
type Services struct {
	Wallets   *wallet.Service
	Identity  *identity.Service
	Transfers *transfer.Service
	Payments  *payment.Service
	Rewards   *rewards.Service
}

// Setup configures middlewares and all application routes, returning the
// wired services.
func Setup(app *fiber.App, d Deps) (Services, error) {
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Services{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	var entries ledger.Store
	if d.DB != nil {
		entries = ledger.NewPostgresStore(d.DB)
	} else {
		entries = ledger.NewMemoryStore()
	}

	var walletRepo wallet.Repository
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
	} else {
		walletRepo = wallet.NewMemoryRepository()
	}
	walletSvc := wallet.NewService(walletRepo, entries)

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo)

	var records transfer.Store
	if d.DB != nil {
		records = transfer.NewPostgresStore(d.DB)
	} else {
		records = transfer.NewMemoryStore()
	}

	var grants rewards.Store
	if d.DB != nil {
		grants = rewards.NewPostgresStore(d.DB)
	} else {
		grants = rewards.NewMemoryStore()
	}
	rewardsSvc := rewards.NewService(grants)

	notifier := notification.NewLoggerNotifier(d.Logger)
	transferSvc := transfer.NewService(walletSvc, records, entries, identitySvc, notifier, transfer.Options{
		Currency:      d.Cfg.Currency,
		MaxAmount:     d.Cfg.MaxTransfer,
		RetryBudget:   d.Cfg.RetryBudget,
		RequestExpiry: d.Cfg.RequestExpiry,
	})
	paymentSvc := payment.NewService(walletSvc, entries, payment.StaticProcessor{}, rewardsSvc, notifier,
		d.Cfg.ProcessorTimeout, d.Cfg.RetryBudget)

	signer := func(subject string) (string, error) {
		return middleware.IssueToken(d.Cfg.JWTSecret, subject, accessTokenTTL)
	}
	identityHandler := identity.NewHandler(identitySvc, walletSvc, signer)
	walletHandler := wallet.NewHandler(walletSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	paymentHandler := payment.NewHandler(paymentSvc)
	rewardsHandler := rewards.NewHandler(rewardsSvc)

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
	RegisterIdentityRoutes(api, identityHandler)

	// Protected routes
	protected := api.Group("", middleware.Auth(d.Cfg.JWTSecret))
	transferLimit := middleware.TransferRateLimit(d.Cache, transfersPerMin)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterTransferRoutes(protected, transferHandler, transferLimit)
	RegisterPaymentRoutes(protected, paymentHandler, transferLimit)
	RegisterRewardsRoutes(protected, rewardsHandler)
	RegisterOpsRoutes(protected, transferHandler)

	return Services{
		Wallets:   walletSvc,
		Identity:  identitySvc,
		Transfers: transferSvc,
		Payments:  paymentSvc,
		Rewards:   rewardsSvc,
	}, nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
