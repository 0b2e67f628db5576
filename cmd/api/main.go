package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simvoyage/esim-backend/api/routes"
	"github.com/simvoyage/esim-backend/internal/accounts"
	adminsvc "github.com/simvoyage/esim-backend/internal/admin"
	"github.com/simvoyage/esim-backend/internal/auth"
	checkoutsvc "github.com/simvoyage/esim-backend/internal/checkout"
	"github.com/simvoyage/esim-backend/internal/notifications"
	"github.com/simvoyage/esim-backend/internal/orders"
	"github.com/simvoyage/esim-backend/internal/promo"
	"github.com/simvoyage/esim-backend/internal/provisioning"
	"github.com/simvoyage/esim-backend/internal/settings"
	"github.com/simvoyage/esim-backend/internal/topup"
	"github.com/simvoyage/esim-backend/internal/wallet"
	paylanewebhook "github.com/simvoyage/esim-backend/internal/webhooks/paylane"
	stripewebhook "github.com/simvoyage/esim-backend/internal/webhooks/stripe"
	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/db"
	"github.com/simvoyage/esim-backend/pkg/esimaccess"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/metrics"
	"github.com/simvoyage/esim-backend/pkg/migrate"
	"github.com/simvoyage/esim-backend/pkg/paylane"
	"github.com/simvoyage/esim-backend/pkg/redis"
	pkgstripe "github.com/simvoyage/esim-backend/pkg/stripe"
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	paylaneClient, err := paylane.NewClient(cfg.PayLane)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap paylane", err)
		os.Exit(1)
	}

	supplierClient, err := esimaccess.NewClient(
		cfg.Supplier.AccessCode,
		esimaccess.WithBaseURL(cfg.Supplier.BaseURL),
		esimaccess.WithHTTPClient(&http.Client{Timeout: cfg.Supplier.Timeout}),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap supplier client", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
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

	authSvc, err := auth.NewService(auth.ServiceParams{
		Accounts:       accountsRepo,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	exitOnError(logg, "auth service", err)

	adminSvc, err := adminsvc.NewService(adminsvc.ServiceParams{
		Tx:              dbClient,
		Wallet:          walletSvc,
		Orders:          ordersSvc,
		Logger:          logg,
		ReferencePrefix: cfg.Storefront.ReferencePrefix,
	})
	exitOnError(logg, "admin service", err)

	stripeWebhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Topups: topupSvc,
		Logger: logg,
	})
	exitOnError(logg, "stripe webhook service", err)

	paylaneWebhookSvc, err := paylanewebhook.NewService(paylanewebhook.ServiceParams{
		Topups:     topupSvc,
		WalletRepo: walletRepo,
		Orders:     ordersSvc,
		OrdersRepo: ordersRepo,
		Logger:     logg,
	})
	exitOnError(logg, "paylane webhook service", err)

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, 24*time.Hour, "webhooks")
	exitOnError(logg, "webhook idempotency guard", err)

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
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Accounts:       accountsRepo,
			Auth:           authSvc,
			Checkout:       checkoutSvc,
			Orders:         ordersSvc,
			Wallet:         walletSvc,
			Topups:         topupSvc,
			Settings:       settingsSvc,
			Promos:         promoSvc,
			Admin:          adminSvc,
			StripeClient:   stripeClient,
			PayLaneClient:  paylaneClient,
			StripeWebhook:  stripeWebhookSvc,
			PayLaneWebhook: paylaneWebhookSvc,
			WebhookGuard:   webhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func exitOnError(logg *logger.Logger, what string, err error) {
	if err != nil {
		logg.Error(context.Background(), "failed to create "+what, err)
		os.Exit(1)
	}
}
