package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tillstock/tillstock-backend/api/controllers"
	"github.com/tillstock/tillstock-backend/api/middleware"
	"github.com/tillstock/tillstock-backend/internal/drawers"
	"github.com/tillstock/tillstock-backend/internal/inventory"
	"github.com/tillstock/tillstock-backend/internal/sales"
	"github.com/tillstock/tillstock-backend/pkg/auth/session"
	"github.com/tillstock/tillstock-backend/pkg/config"
	"github.com/tillstock/tillstock-backend/pkg/db"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/redis"
)

// NewRouter mounts health, metrics and the ledger API. redisClient may be nil,
// which disables idempotent replay and write rate limiting.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions session.AccessSessionChecker,
	gatherer prometheus.Gatherer,
	inventoryService inventory.Service,
	salesService sales.Service,
	drawerService drawers.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	ready := map[string]controllers.Pinger{}
	if dbP != nil {
		ready["db"] = dbP
	}
	if redisClient != nil {
		ready["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		if redisClient != nil {
			policy := middleware.NewWriteRateLimitPolicy("ledger", cfg.HTTP.WriteRateWindow, cfg.HTTP.WriteRateLimit)
			r.Use(middleware.WriteRateLimit(policy, redisClient, logg))
			r.Use(middleware.Idempotency(redisClient, logg))
		}

		r.Route("/stock", func(r chi.Router) {
			r.Get("/movements", controllers.ListStockMovements(inventoryService, logg))
			r.Get("/balances", controllers.GetStockBalances(inventoryService, logg))
			r.With(middleware.RequireRoles(logg,
				enums.MemberRoleOwner,
				enums.MemberRoleAdmin,
				enums.MemberRoleManager,
				enums.MemberRoleStocker,
			)).Post("/movements", controllers.RecordStockMovement(inventoryService, logg))
		})

		r.Post("/sales", controllers.CreateSale(salesService, logg))
		r.Get("/sales/{saleId}", controllers.GetSale(salesService, logg))

		r.Route("/drawer", func(r chi.Router) {
			r.Get("/open", controllers.GetOpenDrawer(drawerService, logg))
			r.Get("/{registerId}/summary", controllers.GetDrawerSummary(drawerService, logg))
			r.Post("/open", controllers.OpenDrawer(drawerService, logg))
			r.Post("/close", controllers.CloseDrawer(drawerService, logg))
			r.Post("/movement", controllers.CreateDrawerMovement(drawerService, logg))
		})
	})

	return r
}
