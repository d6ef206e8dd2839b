package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/observability"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// A nil tokens validator leaves /v1 unauthenticated; a nil svc answers 503 on /v1.
func NewRouter(svc *service.QuoteService, tokens *service.TokenValidator, quoteTimeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if svc == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "quote service unavailable")
			}))
			return
		}
		if tokens != nil {
			r.Use(BearerAuthMiddleware(tokens, logger))
		}

		// Quotes
		r.Post("/quotes/rates", quoteRatesHandler(svc, quoteTimeout, logger))
		r.Get("/quotes/history", quoteHistoryHandler(svc, logger))
		r.Post("/quotes/financials", financialsHandler(svc, logger))
		r.Post("/quotes/normalize", normalizeHandler(svc, logger))

		// Charges
		r.Post("/charges/classify", classifyChargesHandler(svc, logger))

		// Carriers
		r.Get("/carriers", listCarriersHandler(svc, logger))

		// Metrics
		r.Get("/metrics/quotes", quoteMetricsHandler(metrics))
	})

	return r
}

func healthzHandler(svc *service.QuoteService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "quote-bfa", Status: "healthy", LastChecked: now},
		}

		if svc != nil {
			start := time.Now()
			if _, err := svc.ListHistory(r.Context(), 1); err != nil {
				if _, disabled := err.(*domain.ErrServiceUnavailable); !disabled {
					services = append(services, domain.ServiceHealth{
						Name: "supabase", Status: "degraded",
						LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
					})
				}
			} else {
				services = append(services, domain.ServiceHealth{
					Name: "supabase", Status: "healthy",
					LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
				})
			}
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overall = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overall = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func quoteMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetQuoteSnapshot())
	}
}
