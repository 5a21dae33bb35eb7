package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stratocard/stratocard/internal/alert"
	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/config"
	"github.com/stratocard/stratocard/internal/fees"
	"github.com/stratocard/stratocard/internal/ledger"
	"github.com/stratocard/stratocard/internal/logging"
	"github.com/stratocard/stratocard/internal/middleware"
	"github.com/stratocard/stratocard/internal/provider"
	"github.com/stratocard/stratocard/internal/reconcile"
	"github.com/stratocard/stratocard/internal/saga"
	"github.com/stratocard/stratocard/internal/transaction"
	"github.com/stratocard/stratocard/internal/wallet"
	"github.com/stratocard/stratocard/internal/webhook"
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
	if !d.Cfg.IsDevelopment() {
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
	app.Use(middleware.Audit(logging.Component(d.Logger, "http")))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Repositories: Postgres when a pool is present, in-memory otherwise.
	var (
		walletRepo wallet.Repository
		cardRepo   card.Repository
		txnRepo    transaction.Repository
		debtRepo   fees.DebtRepository
		recorder   ledger.Recorder
	)
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
		cardRepo = card.NewPostgresRepository(d.DB)
		txnRepo = transaction.NewPostgresRepository(d.DB)
		debtRepo = fees.NewPostgresDebtRepository(d.DB)
		recorder = ledger.NewPostgresRecorder(d.DB)
	} else {
		walletRepo = wallet.NewMemoryRepository()
		cardRepo = card.NewMemoryRepository()
		txnRepo = transaction.NewMemoryRepository()
		debtRepo = fees.NewMemoryDebtRepository()
		recorder = ledger.NewInMemory()
	}

	// Services
	notifier := alert.NewLoggerNotifier(logging.Component(d.Logger, "alert"))
	walletSvc := wallet.NewService(walletRepo)
	cardSvc := card.NewService(cardRepo)
	txnSvc := transaction.NewService(txnRepo)

	gateway := buildGateway(d.Cfg)

	collector := fees.NewCollector(cardSvc, walletSvc, txnSvc, recorder, debtRepo, notifier,
		logging.Component(d.Logger, "fees"), d.Cfg.DebtDueDays, d.Cfg.DebtDailyRate)

	sagaSvc := saga.NewService(walletSvc, cardSvc, txnSvc, recorder, gateway, collector,
		notifier, logging.Component(d.Logger, "saga"))

	reconcileSvc := reconcile.NewService(cardSvc, walletSvc, txnSvc, recorder, gateway,
		notifier, logging.Component(d.Logger, "reconcile"), d.Cfg.ReconcileWorkers, d.Cfg.ReconcileDriftAlert)

	// Webhook pipeline
	var (
		dedup   webhook.DedupStore
		limiter webhook.RateLimiter
	)
	if d.Cache != nil {
		dedup = webhook.NewRedisDedupStore(d.Cache)
		limiter = webhook.NewRedisRateLimiter(d.Cache, d.Cfg.WebhookRatePerMinute)
	} else {
		dedup = webhook.NewMemoryDedupStore()
	}
	validator := webhook.NewValidator(webhook.ValidatorConfig{
		Secret:        d.Cfg.WebhookSecret,
		MaxAge:        d.Cfg.WebhookMaxAge,
		ClockSkew:     d.Cfg.WebhookClockSkew,
		ReplayGuard:   d.Cfg.WebhookReplayGuard,
		DedupTTL:      d.Cfg.WebhookDedupTTL,
		AllowInsecure: d.Cfg.WebhookAllowInsecure,
	}, dedup, limiter, logging.Component(d.Logger, "webhook"))
	router := webhook.NewRouter(cardSvc, recorder, logging.Component(d.Logger, "webhook"))

	// Handlers
	walletHandler := wallet.NewHandler(walletSvc)
	sagaHandler := saga.NewHandler(sagaSvc, cardSvc)
	feesHandler := fees.NewHandler(collector)
	reconcileHandler := reconcile.NewHandler(reconcileSvc)
	webhookHandler := webhook.NewHandler(validator, router, logging.Component(d.Logger, "webhook"))

	// Webhooks sit outside the versioned API group: the provider signs the
	// raw path and sends no Idempotency-Key.
	app.Post("/webhooks", webhookHandler.Receive)

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
	RegisterCardRoutes(api, sagaHandler)
	RegisterFeeRoutes(api, feesHandler)
	RegisterReconcileRoutes(api, reconcileHandler)

	return nil
}

// buildGateway selects the provider backend. Without a base URL the static
// simulator confirms cards synchronously, which keeps development and tests
// off the network.
func buildGateway(cfg config.Config) provider.Gateway {
	if cfg.ProviderBaseURL == "" {
		return provider.NewStaticGateway()
	}
	var tokens provider.TokenSource
	if cfg.ProviderAuthMode == "password" {
		tokens = provider.NewPasswordGrantSource(cfg.ProviderBaseURL+"/oauth/token",
			cfg.ProviderClientID, cfg.ProviderClientSecret, nil)
	} else {
		tokens = provider.StaticToken(cfg.ProviderSecret)
	}
	return provider.NewHTTPGateway("default", cfg.ProviderBaseURL, tokens, cfg.ProviderTimeout)
}
