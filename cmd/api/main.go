package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/addismart/marketplace-backend/api/routes"
	"github.com/addismart/marketplace-backend/internal/cart"
	"github.com/addismart/marketplace-backend/internal/catalog"
	"github.com/addismart/marketplace-backend/internal/delivery"
	"github.com/addismart/marketplace-backend/internal/orders"
	"github.com/addismart/marketplace-backend/internal/payments"
	"github.com/addismart/marketplace-backend/internal/payments/telebirr"
	"github.com/addismart/marketplace-backend/pkg/config"
	"github.com/addismart/marketplace-backend/pkg/db"
	"github.com/addismart/marketplace-backend/pkg/logger"
	"github.com/addismart/marketplace-backend/pkg/migrate"
	"github.com/addismart/marketplace-backend/pkg/outbox"
	"github.com/addismart/marketplace-backend/pkg/redis"
	"github.com/addismart/marketplace-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())

	ordersSvc, err := orders.NewService(
		ordersRepo,
		cart.NewRepository(dbClient.DB()),
		catalog.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		cfg.Orders.ConfirmationCode.Length,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	deliveriesSvc, err := delivery.NewService(
		delivery.NewRepository(dbClient.DB()),
		ordersRepo,
		ordersSvc,
		dbClient,
		outboxSvc,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	telebirrClient, err := telebirr.NewClient(context.Background(), cfg.Telebirr, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create telebirr client", err)
		os.Exit(1)
	}

	mobileMoney, err := payments.NewMobileMoneyGateway(telebirrClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create mobile money gateway", err)
		os.Exit(1)
	}
	card, err := payments.NewCardGateway(payments.NewStripePaymentIntentClient(stripeClient))
	if err != nil {
		logg.Error(context.Background(), "failed to create card gateway", err)
		os.Exit(1)
	}
	registry, err := payments.NewRegistry(payments.NewCashGateway(), mobileMoney, card)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway registry", err)
		os.Exit(1)
	}
	paymentsSvc, err := payments.NewService(registry, ordersRepo, ordersSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ordersSvc,
			deliveriesSvc,
			paymentsSvc,
			stripeClient,
			telebirrClient,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
