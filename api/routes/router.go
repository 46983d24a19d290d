package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/addismart/marketplace-backend/api/controllers"
	deliverycontrollers "github.com/addismart/marketplace-backend/api/controllers/deliveries"
	ordercontrollers "github.com/addismart/marketplace-backend/api/controllers/orders"
	webhookcontrollers "github.com/addismart/marketplace-backend/api/controllers/webhooks"
	"github.com/addismart/marketplace-backend/api/middleware"
	deliverysvc "github.com/addismart/marketplace-backend/internal/delivery"
	"github.com/addismart/marketplace-backend/internal/orders"
	"github.com/addismart/marketplace-backend/internal/payments"
	"github.com/addismart/marketplace-backend/pkg/config"
	"github.com/addismart/marketplace-backend/pkg/db"
	"github.com/addismart/marketplace-backend/pkg/enums"
	"github.com/addismart/marketplace-backend/pkg/logger"
	pkgredis "github.com/addismart/marketplace-backend/pkg/redis"
)

type redisPinger interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
}

type telebirrVerifier interface {
	VerifyNotification(fields map[string]string, signature string) bool
}

type stripeSigner interface {
	SigningSecret() string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisPinger,
	ordersSvc orders.Service,
	deliveriesSvc deliverysvc.Service,
	paymentsSvc payments.Service,
	stripeClient stripeSigner,
	telebirrClient telebirrVerifier,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentsWebhook(paymentsSvc, stripeClient, telebirrClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ordersSvc, paymentsSvc, logg))
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
			r.With(middleware.RequireRole(enums.MemberRoleSeller.String(), logg)).
				Post("/{orderId}/ship", ordercontrollers.Ship(ordersSvc, logg))
		})

		r.Route("/agent", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.MemberRoleAgent.String(), logg))
			r.Route("/deliveries", func(r chi.Router) {
				r.Get("/", deliverycontrollers.ListAssigned(deliveriesSvc, logg))
				r.Put("/{deliveryId}/status", deliverycontrollers.UpdateStatus(deliveriesSvc, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.MemberRoleAdmin.String(), logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Post("/deliveries", deliverycontrollers.Assign(deliveriesSvc, logg))
	})

	return r
}
