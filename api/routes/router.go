package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harveywang/codedesk-backend/api/controllers"
	"github.com/harveywang/codedesk-backend/api/middleware"
	"github.com/harveywang/codedesk-backend/internal/accounts"
	"github.com/harveywang/codedesk-backend/internal/recovery"
	pkgauth "github.com/harveywang/codedesk-backend/pkg/auth"
	"github.com/harveywang/codedesk-backend/pkg/config"
	"github.com/harveywang/codedesk-backend/pkg/db"
	"github.com/harveywang/codedesk-backend/pkg/logger"
	pkgredis "github.com/harveywang/codedesk-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	registry *prometheus.Registry,
	recoveryService recovery.Service,
	accountsService accounts.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	// Typed nils must not reach the interface-valued parameters downstream.
	var cacheP pkgredis.Pinger
	var idempotencyStore pkgredis.IdempotencyStore
	if redisClient != nil {
		cacheP = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, cacheP, logg))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/admin/v1/account-recovery", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(pkgauth.AdminRole, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/banned-accounts", func(r chi.Router) {
			r.Get("/", controllers.BannedAccounts(accountsService, logg))
			r.Patch("/{accountId}/processed", controllers.MarkAccountProcessed(accountsService, logg))
			r.Get("/{accountId}/redeems", controllers.AccountRedeems(accountsService, logg))
		})

		r.Get("/one-click/preview", controllers.RecoveryPreview(recoveryService, logg))
		r.Post("/recover", controllers.RecoveryRecover(recoveryService, logg))
		r.Get("/logs", controllers.RecoveryLogs(recoveryService, logg))
	})

	return r
}
