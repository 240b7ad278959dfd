package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/wholesale-backend/api/controllers"
	marketpricecontrollers "github.com/angelmondragon/wholesale-backend/api/controllers/marketprices"
	ordercontrollers "github.com/angelmondragon/wholesale-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/wholesale-backend/api/controllers/payments"
	settlementcontrollers "github.com/angelmondragon/wholesale-backend/api/controllers/settlements"
	"github.com/angelmondragon/wholesale-backend/api/middleware"
	"github.com/angelmondragon/wholesale-backend/internal/orders"
	"github.com/angelmondragon/wholesale-backend/internal/settlements"
	"github.com/angelmondragon/wholesale-backend/pkg/config"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/wholesale-backend/pkg/redis"
)

// RedisStore is what the router needs from redis: replay storage for the
// idempotency middleware and a ping for readiness.
type RedisStore interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Orders       orders.Service
	Settlements  settlements.Service
	Payments     paymentcontrollers.ConfirmService
	Callbacks    paymentcontrollers.CallbackService
	MarketPrices marketpricecontrollers.Service
}

// NewRouter builds the API handler. gatherer backs /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient RedisStore,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var redisPinger controllers.Pinger
	var idempotencyStore pkgredis.IdempotencyStore
	if redisClient != nil {
		redisPinger = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	// the gateway posts callbacks without credentials
	r.Post("/api/payments/callback", paymentcontrollers.Callback(svc.Callbacks, logg))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.With(middleware.RequireRole(logg, enums.MemberRoleRetailer, enums.MemberRoleAdmin)).
			Post("/payments/confirm", paymentcontrollers.Confirm(svc.Payments, logg))

		r.Route("/v1/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
			r.Post("/{orderId}/ship", ordercontrollers.Ship(svc.Orders, logg))
			r.Post("/{orderId}/complete", ordercontrollers.Complete(svc.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(svc.Orders, logg))
		})

		r.Route("/v1/settlements", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.MemberRoleWholesaler, enums.MemberRoleAdmin))
			r.Get("/", settlementcontrollers.List(svc.Settlements, logg))
		})

		r.Route("/v1/market-prices", func(r chi.Router) {
			r.Get("/", marketpricecontrollers.List(svc.MarketPrices, logg))
			r.Get("/summary", marketpricecontrollers.Summary(svc.MarketPrices, logg))
			r.Get("/trend", marketpricecontrollers.Trend(svc.MarketPrices, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/ping", controllers.AdminPing())
		r.Route("/v1/settlements", func(r chi.Router) {
			r.Get("/", settlementcontrollers.List(svc.Settlements, logg))
			r.Post("/{settlementId}/complete", settlementcontrollers.AdminComplete(svc.Settlements, logg))
		})
	})

	return r
}
