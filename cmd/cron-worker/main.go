package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simvoyage/esim-backend/internal/accounts"
	checkoutsvc "github.com/simvoyage/esim-backend/internal/checkout"
	"github.com/simvoyage/esim-backend/internal/cron"
	"github.com/simvoyage/esim-backend/internal/notifications"
	"github.com/simvoyage/esim-backend/internal/orders"
	"github.com/simvoyage/esim-backend/internal/promo"
	"github.com/simvoyage/esim-backend/internal/provisioning"
	"github.com/simvoyage/esim-backend/internal/settings"
	"github.com/simvoyage/esim-backend/internal/topup"
	"github.com/simvoyage/esim-backend/internal/wallet"
	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/db"
	"github.com/simvoyage/esim-backend/pkg/esimaccess"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/metrics"
	"github.com/simvoyage/esim-backend/pkg/migrate"
	"github.com/simvoyage/esim-backend/pkg/redis"
	pkgstripe "github.com/simvoyage/esim-backend/pkg/stripe"
)

const lockKeyFormat = "esim:maintenance:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	exitOnError(logg, "stripe client", err)

	supplierClient, err := esimaccess.NewClient(
		cfg.Supplier.AccessCode,
		esimaccess.WithBaseURL(cfg.Supplier.BaseURL),
		esimaccess.WithHTTPClient(&http.Client{Timeout: cfg.Supplier.Timeout}),
	)
	exitOnError(logg, "supplier client", err)

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	notifier := notifications.NewTelegramNotifier(cfg.Telegram, logg)

	accountsRepo := accounts.NewRepository(dbClient.DB())
	walletRepo := wallet.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	promoRepo := promo.NewRepository(dbClient.DB())
	settingsRepo := settings.NewRepository(dbClient.DB())

	walletSvc, err := wallet.NewService(dbClient, walletRepo)
	exitOnError(logg, "wallet service", err)

	ordersSvc, err := orders.NewService(dbClient, ordersRepo)
	exitOnError(logg, "orders service", err)

	settingsSvc, err := settings.NewService(settingsRepo)
	exitOnError(logg, "settings service", err)

	promoSvc, err := promo.NewService(promoRepo)
	exitOnError(logg, "promo service", err)

	provisioner, err := provisioning.NewService(supplierClient, cfg.Provisioning, logg, paymentMetrics)
	exitOnError(logg, "provisioning service", err)

	checkoutSvc, err := checkoutsvc.NewService(checkoutsvc.Config{
		Tx:              dbClient,
		Catalog:         supplierClient,
		Settings:        settingsSvc,
		Promos:          promoSvc,
		PromoCounter:    promoRepo,
		Wallet:          walletSvc,
		Orders:          ordersSvc,
		OrdersRepo:      ordersRepo,
		Provisioner:     provisioner,
		Accounts:        accountsRepo,
		Notifier:        notifier,
		Payments:        paymentMetrics,
		Logger:          logg,
		ReferencePrefix: cfg.Storefront.ReferencePrefix,
	})
	exitOnError(logg, "checkout service", err)

	topupSvc, err := topup.NewService(topup.Config{
		Wallet:          walletSvc,
		WalletRepo:      walletRepo,
		Stripe:          stripeClient,
		Bounds:          settingsSvc,
		Accounts:        accountsRepo,
		Notifier:        notifier,
		Payments:        paymentMetrics,
		Logger:          logg,
		ReferencePrefix: cfg.Storefront.ReferencePrefix,
	})
	exitOnError(logg, "topup service", err)

	topupExpiry, err := cron.NewTopupExpiryJob(cron.TopupExpiryJobParams{
		Logger:  logg,
		Entries: walletRepo,
		Topups:  topupSvc,
	})
	exitOnError(logg, "topup expiry job", err)

	provisioningSweep, err := cron.NewProvisioningSweepJob(cron.ProvisioningSweepJobParams{
		Logger:   logg,
		Orders:   ordersRepo,
		Checkout: checkoutSvc,
	})
	exitOnError(logg, "provisioning sweep job", err)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	exitOnError(logg, "maintenance lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(topupExpiry, provisioningSweep),
		Lock:     lock,
		Metrics:  jobMetrics,
	})
	exitOnError(logg, "maintenance service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting maintenance worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "maintenance worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func exitOnError(logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
