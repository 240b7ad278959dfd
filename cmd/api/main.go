package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/wholesale-backend/api"
	"github.com/angelmondragon/wholesale-backend/api/routes"
	"github.com/angelmondragon/wholesale-backend/internal/marketprices"
	"github.com/angelmondragon/wholesale-backend/internal/orders"
	"github.com/angelmondragon/wholesale-backend/internal/payments"
	"github.com/angelmondragon/wholesale-backend/internal/settlements"
	tosswebhook "github.com/angelmondragon/wholesale-backend/internal/webhooks/toss"
	"github.com/angelmondragon/wholesale-backend/pkg/config"
	"github.com/angelmondragon/wholesale-backend/pkg/db"
	"github.com/angelmondragon/wholesale-backend/pkg/env"
	"github.com/angelmondragon/wholesale-backend/pkg/instance"
	"github.com/angelmondragon/wholesale-backend/pkg/logger"
	"github.com/angelmondragon/wholesale-backend/pkg/marketprice"
	"github.com/angelmondragon/wholesale-backend/pkg/metrics"
	"github.com/angelmondragon/wholesale-backend/pkg/migrate"
	"github.com/angelmondragon/wholesale-backend/pkg/outbox"
	"github.com/angelmondragon/wholesale-backend/pkg/redis"
	"github.com/angelmondragon/wholesale-backend/pkg/toss"
)

const shutdownTimeout = 10 * time.Second

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

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())
	settlementsRepo := settlements.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())

	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	settlementsService, err := settlements.NewService(settlementsRepo, dbClient, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlements service", err)
		os.Exit(1)
	}

	writer, err := payments.NewWriter(payments.WriterParams{
		TransactionRunner: dbClient,
		Orders:            ordersRepo,
		Settlements:       settlementsRepo,
		Payments:          paymentsRepo,
		Outbox:            outboxService,
		FeeRate:           decimal.NewFromFloat(cfg.Settlement.PlatformFeeRate),
		PayoutOffset:      cfg.Settlement.PayoutOffset,
		DefaultMethod:     cfg.Settlement.DefaultMethod,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement writer", err)
		os.Exit(1)
	}

	// a nil gateway keeps the API up; confirmations then fail with 500
	var gateway payments.Gateway
	if cfg.Toss.Configured() {
		tossClient, err := toss.NewClient(cfg.Toss.SecretKey,
			toss.WithBaseURL(cfg.Toss.BaseURL),
			toss.WithTimeout(cfg.Toss.Timeout),
			toss.WithObserver(paymentMetrics),
		)
		if err != nil {
			logg.Error(context.Background(), "failed to create toss client", err)
			os.Exit(1)
		}
		gateway = tossClient
	} else {
		logg.Warn(context.Background(), config.EnvTossSecretKey+" not set; payment confirmation disabled")
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Orders:      ordersRepo,
		Settlements: settlementsRepo,
		Payments:    paymentsRepo,
		Writer:      writer,
		Gateway:     gateway,
		Metrics:     paymentMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	guard, err := tosswebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}
	callbackService, err := tosswebhook.NewService(tosswebhook.ServiceParams{
		Payments: paymentsService,
		Guard:    guard,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create callback service", err)
		os.Exit(1)
	}

	services := routes.Services{
		Orders:      ordersService,
		Settlements: settlementsService,
		Payments:    paymentsService,
		Callbacks:   callbackService,
	}
	if cfg.MarketPrice.Configured() {
		priceClient, err := marketprice.NewClient(cfg.MarketPrice.CertKey, cfg.MarketPrice.CertID,
			marketprice.WithBaseURL(cfg.MarketPrice.BaseURL),
			marketprice.WithTimeout(cfg.MarketPrice.Timeout),
		)
		if err != nil {
			logg.Error(context.Background(), "failed to create market price client", err)
			os.Exit(1)
		}
		marketPriceService, err := marketprices.NewService(marketprices.ServiceParams{
			Source:   priceClient,
			Cache:    redisClient,
			CacheTTL: cfg.MarketPrice.CacheTTL,
			Logger:   logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create market price service", err)
			os.Exit(1)
		}
		services.MarketPrices = marketPriceService
	} else {
		logg.Warn(context.Background(), "market price credentials not set; market price endpoints disabled")
	}

	handler := routes.NewRouter(cfg, logg, dbClient, redisClient, prometheus.DefaultGatherer, services)
	server := api.NewServer(cfg, env.Get("PORT", cfg.App.Port), handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shut down gracefully")
}
