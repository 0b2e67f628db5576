package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simvoyage/esim-backend/api/controllers"
	webhookcontrollers "github.com/simvoyage/esim-backend/api/controllers/webhooks"
	"github.com/simvoyage/esim-backend/api/middleware"
	"github.com/simvoyage/esim-backend/internal/accounts"
	adminsvc "github.com/simvoyage/esim-backend/internal/admin"
	"github.com/simvoyage/esim-backend/internal/auth"
	checkoutsvc "github.com/simvoyage/esim-backend/internal/checkout"
	"github.com/simvoyage/esim-backend/internal/orders"
	"github.com/simvoyage/esim-backend/internal/promo"
	"github.com/simvoyage/esim-backend/internal/settings"
	"github.com/simvoyage/esim-backend/internal/topup"
	"github.com/simvoyage/esim-backend/internal/wallet"
	paylanewebhook "github.com/simvoyage/esim-backend/internal/webhooks/paylane"
	stripewebhook "github.com/simvoyage/esim-backend/internal/webhooks/stripe"
	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/db"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/paylane"
	"github.com/simvoyage/esim-backend/pkg/redis"
	pkgstripe "github.com/simvoyage/esim-backend/pkg/stripe"
)

// Deps collects everything the router mounts.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis *redis.Client

	Accounts *accounts.Repository

	Auth     auth.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Wallet   wallet.Service
	Topups   topup.Service
	Settings settings.Service
	Promos   promo.Service
	Admin    adminsvc.Service

	StripeClient  *pkgstripe.Client
	PayLaneClient *paylane.Client

	StripeWebhook  *stripewebhook.Service
	PayLaneWebhook *paylanewebhook.Service
	WebhookGuard   *stripewebhook.IdempotencyGuard
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Storefront.BaseURL),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, d.Redis))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(d.Auth, logg))
		r.Post("/login", controllers.AuthLogin(d.Auth, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhook, d.StripeClient, d.WebhookGuard, logg))
		r.Post("/paylane", webhookcontrollers.PayLaneWebhook(d.PayLaneWebhook, d.PayLaneClient, d.WebhookGuard, logg))
	})

	// The redirect target is public; the handler verifies the session
	// with Stripe before crediting anything.
	r.Get("/api/v1/wallet/topup/callback", controllers.WalletTopupCallback(d.Topups, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/checkout", controllers.Checkout(d.Checkout, logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(d.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(d.Orders, logg))
		})
		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletBalance(d.Wallet, logg))
			r.Post("/topup", controllers.WalletTopup(d.Topups, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", controllers.AdminSettingsGet(d.Settings, logg))
			r.Put("/", controllers.AdminSettingsUpdate(d.Settings, logg))
		})
		r.Route("/promo-codes", func(r chi.Router) {
			r.Get("/", controllers.AdminPromoList(d.Promos, logg))
			r.Post("/", controllers.AdminPromoCreate(d.Promos, logg))
			r.Put("/{promoId}", controllers.AdminPromoUpdate(d.Promos, logg))
			r.Delete("/{promoId}", controllers.AdminPromoDelete(d.Promos, logg))
		})
		r.Get("/accounts", controllers.AdminAccountList(d.Accounts, logg))
		r.Post("/accounts/{accountId}/adjust", controllers.AdminAccountAdjust(d.Admin, logg))
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Post("/refund", controllers.AdminOrderRefund(d.Admin, logg))
			r.Post("/reprovision", controllers.AdminOrderReprovision(d.Checkout, logg))
		})
	})

	return r
}
