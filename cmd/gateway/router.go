package main

import (
	"net/http"
	"time"

	"homework-gateway/logging"
	"homework-gateway/middleware/ratelimit"
	"homework-gateway/middleware/ratelimit/domain"
	"homework-gateway/middleware/ratelimit/infra"
	"homework-gateway/relay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type deps struct {
	cfg     config
	log     *zap.Logger
	limiter *infra.WindowStore
	stats   domain.StatsStore
	relay   *relay.Handler
}

// statsSnapshot é implementado por infra.MemoryStatsStore.
type statsSnapshot interface {
	Total() infra.Counters
	ByRoute() map[string]infra.Counters
}

func newRouter(d deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(d.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.cfg.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With", "X-Api-Version"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Window"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ratelimit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/debug/ratelimit", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{}
		if d.limiter != nil {
			out["limiter"] = map[string]any{
				"strategy":      d.limiter.Strategy(),
				"max":           d.limiter.Max(),
				"windowSeconds": int(d.limiter.Window().Seconds()),
				"liveKeys":      d.limiter.Len(),
			}
		}
		if snap, ok := d.stats.(statsSnapshot); ok {
			out["total"] = snap.Total()
			out["byRoute"] = snap.ByRoute()
		}
		ratelimit.WriteJSON(w, http.StatusOK, out)
	})

	r.Group(func(r chi.Router) {
		if d.cfg.rateEnabled && d.limiter != nil {
			r.Use(ratelimit.Middleware(ratelimit.Options{
				Limiter:             d.limiter,
				Stats:               d.stats,
				KeyHeader:           d.cfg.rateKeyHeader,
				TrustXForwardedFor:  d.cfg.trustXFF,
				AddRateLimitHeaders: d.cfg.addHeaders,
				Logger:              d.log,
			}))
		}
		r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            d.cfg.concurrencyMax,
			AcquireTimeout: d.cfg.concurrencyTimeout,
			Logger:         d.log,
		}))
		// folga sobre o timeout do upstream para o relay responder 504 sozinho
		r.Use(middleware.Timeout(d.cfg.upstreamTimeout + 5*time.Second))

		r.Post("/api/chat", d.relay.Chat)
		r.Post("/api/solve", d.relay.Solve)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ratelimit.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ratelimit.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})

	return r
}
