package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oj_sync/internal/api/handler"
	"oj_sync/internal/api/middleware"
	"oj_sync/internal/common"
	"oj_sync/internal/common/security"
)

type Services struct {
	Auth     handler.Authenticator
	Accounts handler.AccountManager
	Jobs     handler.JobManager
	Catalog  handler.Catalog
	// SyncTriggerRPM caps manual sync triggers per user per minute; 0 disables it.
	SyncTriggerRPM int
}

func NewRouter(s Services) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Puts the token from "Authorization: Bearer T" into the context.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Route("/auth", handler.NewAuthHandler(s.Auth).RegisterRoutes)
		v1.Group(handler.NewPlatformHandler(s.Catalog).RegisterRoutes)

		v1.Group(func(authed chi.Router) {
			authed.Use(middleware.Authenticator)
			authed.Route("/accounts", handler.NewAccountHandler(s.Accounts, s.Jobs, triggerLimiter(s.SyncTriggerRPM)).RegisterRoutes)
			authed.Route("/sync-jobs", handler.NewSyncJobHandler(s.Accounts, s.Jobs).RegisterRoutes)
		})
	})

	return r
}

// triggerLimiter keys on the caller so users behind one NAT do not share a
// budget.
func triggerLimiter(rpm int) func(http.Handler) http.Handler {
	if rpm <= 0 {
		return nil
	}
	return httprate.Limit(rpm, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if a, ok := middleware.ActorFromContext(r.Context()); ok {
				return a.UserID, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			common.RespondWithError(w, http.StatusTooManyRequests, "Too many sync requests, try again later")
		}),
	)
}
