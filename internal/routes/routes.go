package routes

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/carewallet/carewallet/internal/audit"
	"github.com/carewallet/carewallet/internal/config"
	"github.com/carewallet/carewallet/internal/ledger"
	"github.com/carewallet/carewallet/internal/middleware"
	"github.com/carewallet/carewallet/internal/notification"
	"github.com/carewallet/carewallet/internal/onramp"
	"github.com/carewallet/carewallet/internal/payments"
	"github.com/carewallet/carewallet/internal/treasury"
	"github.com/carewallet/carewallet/internal/wallet"
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
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	// Services and handlers. The in-memory backends keep dev mode
	// runnable without Postgres; production wiring requires it.
	var ledgerBackend ledger.Ledger
	var walletRepo wallet.Repository
	var fees treasury.Store
	var auditor audit.Recorder
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		fees = treasury.NewPostgresStore(d.DB)
		auditor = audit.NewPostgresRecorder(d.DB)
	} else if isDev(d.Cfg.AppEnv) {
		ledgerBackend = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		fees = treasury.NewInMemory()
		auditor = audit.NewMemoryRecorder()
	} else {
		return fiber.NewError(http.StatusInternalServerError, "database is required outside development")
	}

	walletSvc := wallet.NewService(walletRepo, ledgerBackend, d.Cfg.PrimaryAsset, d.Cfg.ChainID)
	notifier := notification.NewLoggerNotifier(d.Logger)
	paymentSvc, err := payments.NewService(ledgerBackend, walletSvc, fees, notifier, auditor, d.Logger, d.Cfg.TransferFee, d.Cfg.ChainID)
	if err != nil {
		return err
	}
	provider := onramp.NewHMACProvider(d.Cfg.OnrampSecret, d.Cfg.OnrampWidgetURL)
	onrampSvc, err := onramp.NewService(ledgerBackend, walletSvc, provider, notifier, d.Cfg.ChainID)
	if err != nil {
		return err
	}

	walletHandler := wallet.NewHandler(walletSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	onrampHandler := onramp.NewHandler(onrampSvc)
	treasuryHandler := treasury.NewHandler(fees)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	rateLimiter := middleware.TransferRateLimit(d.Cache, 10)
	RegisterPaymentRoutes(api, paymentHandler, rateLimiter)
	RegisterOnrampRoutes(api, onrampHandler)
	RegisterTreasuryRoutes(api, treasuryHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
