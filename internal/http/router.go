package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	Metrics        http.Handler // defaults to promhttp.Handler()
}

func NewRouter(cart *CartHandler, store Pinger, cfg RouterConfig, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}

	r.Get("/health", healthHandler(store, cfg.HealthTimeout, log))
	r.Handle("/metrics", cfg.Metrics)

	cart.Routes(r)

	return otelhttp.NewHandler(r, "cart-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func healthHandler(store Pinger, timeout time.Duration, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			log.WarnContext(ctx, "health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"store":  err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "ok"})
	}
}
