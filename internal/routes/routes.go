package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/paylink/offramp/internal/auth"
	"github.com/paylink/offramp/internal/chains"
	"github.com/paylink/offramp/internal/config"
	"github.com/paylink/offramp/internal/gateway"
	"github.com/paylink/offramp/internal/journal"
	"github.com/paylink/offramp/internal/metrics"
	"github.com/paylink/offramp/internal/middleware"
	"github.com/paylink/offramp/internal/notification"
	"github.com/paylink/offramp/internal/offramp"
	"github.com/paylink/offramp/internal/selection"
)

const selectionIdleTTL = 30 * time.Minute

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	// Gateway overrides the HTTP gateway client, mainly for tests.
	Gateway offramp.Gateway
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	// Health and metrics
	RegisterHealthRoutes(app, d)
	if d.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	// Services and handlers
	gw := d.Gateway
	if gw == nil {
		client, err := gateway.NewClient(gateway.Config{
			BaseURL: d.Cfg.GatewayBaseURL,
			APIKey:  d.Cfg.GatewayAPIKey,
			Timeout: d.Cfg.GatewayTimeout,
			RPS:     d.Cfg.GatewayRPS,
		}, d.Metrics, d.Logger)
		if err != nil {
			return err
		}
		gw = client
	}

	var journalRepo journal.Repository
	if d.DB != nil {
		pgRepo := journal.NewPostgresRepository(d.DB)
		if err := pgRepo.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		journalRepo = pgRepo
	} else {
		journalRepo = journal.NewMemoryRepository()
	}
	recorder := journal.NewRecorder(journalRepo, []byte(d.Cfg.FingerprintKey), d.Logger)

	table := chains.Default()
	poller := offramp.NewPoller(gw, d.Logger)
	poller.Interval = d.Cfg.ApprovalPollInterval
	poller.Metrics = d.Metrics
	offrampSvc := offramp.NewService(gw, table, offramp.Options{
		Notifier: d.Notifier,
		Journal:  recorder,
		Metrics:  d.Metrics,
		Logger:   d.Logger,
		Poller:   poller,
	})
	offrampHandler := offramp.NewHandler(offrampSvc, recorder, d.Cfg.ApprovalWaitTimeout)

	var prefs selection.PreferencesStore
	if d.Cache != nil {
		prefs = selection.NewRedisStore(d.Cache)
	} else {
		prefs = selection.NewMemoryStore()
	}
	selectionMgr := selection.NewManager(prefs, selection.NewStablecoinPrices(table), selectionIdleTTL, d.Metrics, d.Logger)
	selectionHandler := selection.NewHandler(selectionMgr)

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

	// Public lookups
	RegisterReferenceRoutes(api, offrampHandler)

	// Protected routes
	protected := api
	if d.Cfg.JWTSecret != "" {
		verifier := auth.NewVerifier([]byte(d.Cfg.JWTSecret), d.Cfg.JWTIssuer, d.Cfg.JWTAudience)
		protected = api.Group("", middleware.JWTAuth(verifier))
	} else {
		d.Logger.Warn("JWT_SECRET not set, api routes are unauthenticated")
	}
	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	validateLimit := middleware.RateLimit(d.Cache, "validate", d.Cfg.ValidateRatePerMin)

	RegisterOfframpRoutes(protected, offrampHandler, idempotency, validateLimit)
	RegisterSelectionRoutes(protected, selectionHandler)

	return nil
}
