package routes

import (
	"net/http"

	"github.com/angelmondragon/ordercore/api/controllers"
	ordercontrollers "github.com/angelmondragon/ordercore/api/controllers/orders"
	"github.com/angelmondragon/ordercore/api/middleware"
	"github.com/angelmondragon/ordercore/api/responses"
	"github.com/angelmondragon/ordercore/internal/inventory"
	"github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/internal/products"
	"github.com/angelmondragon/ordercore/internal/returns"
	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/angelmondragon/ordercore/pkg/db"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/redis"
	"github.com/go-chi/chi/v5"
)

// RedisStore is what the router needs from Redis: a health check and the
// idempotency key space.
type RedisStore interface {
	redis.Pinger
	redis.IdempotencyStore
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	ordersSvc orders.Service,
	returnsSvc returns.Service,
	catalog products.Catalog,
	stockChecker *inventory.Checker,
	metricsHandler http.Handler,
) http.Handler {
	responses.ExposeDiagnostics(cfg.App.IsDev())

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var idempotencyStore redis.IdempotencyStore
	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["db"] = dbP
	}
	if redisStore != nil {
		idempotencyStore = redisStore
		readiness["redis"] = redisStore
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))
			r.Post("/orders", ordercontrollers.Create(ordersSvc, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Get("/orders", ordercontrollers.List(ordersSvc, logg))
			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Get(ordersSvc, logg))
				r.Post("/cancel", ordercontrollers.Cancel(ordersSvc, logg))
				r.Get("/returns", ordercontrollers.ListReturns(returnsSvc, logg))
				r.Post("/returns", ordercontrollers.RequestReturn(returnsSvc, logg))
			})
			r.Post("/inventory/check", controllers.CheckStock(stockChecker, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin, enums.ActorRoleSystem))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Post("/bulk-status", ordercontrollers.AdminBulkTransition(ordersSvc, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Get(ordersSvc, logg))
				r.Post("/status", ordercontrollers.AdminTransition(ordersSvc, logg))
				r.Post("/split", ordercontrollers.AdminSplit(ordersSvc, logg))
				r.Post("/refunds", ordercontrollers.AdminRefund(returnsSvc, logg))
			})
		})
		r.Patch("/returns/{returnId}", ordercontrollers.AdminUpdateReturn(returnsSvc, logg))
		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateProduct(catalog, logg))
			r.Post("/{productId}/stock", controllers.AdminRestockProduct(catalog, logg))
		})
	})

	return r
}
