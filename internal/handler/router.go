package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/observability"
	"github.com/acebanks/acebank-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessProbe reports whether the backing store is reachable.
// Nil means always ready (in-memory mode).
type ReadinessProbe func(ctx context.Context) error

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract the banking frontend expects.
func NewRouter(ledgerSvc *service.LedgerService, authSvc *service.AuthService, metrics *observability.Metrics, ready ReadinessProbe, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	accountH := NewAccountHandler(ledgerSvc, logger)
	authH := NewAuthHandler(authSvc, logger)

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(ready))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/ops/metrics", opsMetricsHandler(metrics))

	// --- Auth gateway ---
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authH.Signup)
		r.Post("/login", authH.Login)
		r.Post("/check-lockout", authH.CheckLockout)
		r.Post("/refresh", authH.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))
			r.Post("/logout", authH.Logout)
		})
	})

	// --- Banking (all bearer-protected) ---
	r.Route("/account", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(authSvc, logger))

		// Mutations carry the uid in the body; handlers check it against
		// the token subject.
		r.Post("/deposit", accountH.Deposit)
		r.Post("/withdraw", accountH.Withdraw)
		r.Post("/transfer", accountH.Transfer)
		r.Post("/user/email", accountH.LookupUserByEmail)

		// Reads are scoped by the {uid} path segment.
		r.Route("/{uid}", func(r chi.Router) {
			r.Use(RequireOwnUID(logger))
			r.Get("/accounts", accountH.ListAccounts)
			r.Get("/accounts/{accountId}/transactions", accountH.ListTransactions)
			r.Get("/accounts/{accountId}/reconcile", accountH.Reconcile)
			r.Get("/overview", accountH.Overview)
		})
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
		})
	}
}

func readyzHandler(ready ReadinessProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.HealthStatus{Status: "ok", Timestamp: time.Now().UTC()}

		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			health := domain.ServiceHealth{Name: "store", Healthy: true}
			if err := ready(ctx); err != nil {
				health.Healthy = false
				health.Message = err.Error()
				status.Status = "degraded"
			}
			status.Services = append(status.Services, health)
		}

		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

func opsMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetOpsSnapshot())
	}
}
