package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxHistoryLimit = 100

// ============================================================
// POST /v1/quotes/rates
// ============================================================

func quoteRatesHandler(svc *service.QuoteService, timeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/quotes/rates")
		defer span.End()

		var req domain.RateRequest
		if err := decodeAndValidate(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.PreferredTenant == "" {
			req.PreferredTenant = TenantFromContext(ctx)
		}
		span.SetAttributes(
			attribute.String("route.origin", req.Origin),
			attribute.String("route.destination", req.Destination),
			attribute.Int("combinations", len(req.Combinations())),
		)

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result, err := svc.Quote(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if result.Exhausted {
			w.Header().Set("Warning", `199 - "all rate sources unavailable, options are simulated"`)
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ============================================================
// GET /v1/quotes/history?limit=
// ============================================================

func quoteHistoryHandler(svc *service.QuoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/quotes/history")
		defer span.End()

		runs, err := svc.ListHistory(ctx, parseLimit(r, service.DefaultHistoryLimit, maxHistoryLimit))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.QuoteRun]{Data: runs, Total: len(runs)})
	}
}

// ============================================================
// POST /v1/quotes/financials
// ============================================================

func financialsHandler(svc *service.QuoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.FinancialsRequest
		if err := decodeAndValidate(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		f, err := svc.CalculateFinancials(&req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// ============================================================
// POST /v1/quotes/normalize
// ============================================================

type normalizeRequest struct {
	Kind          domain.SourceKind `json:"kind" validate:"required,oneof=legacy ai simulated"`
	Payload       map[string]any    `json:"payload" validate:"required"`
	MarginPercent *decimal.Decimal  `json:"margin_percent,omitempty"`
}

func normalizeHandler(svc *service.QuoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req normalizeRequest
		if err := decodeAndValidate(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		opt, err := svc.Normalize(domain.RawOption{Kind: req.Kind, Payload: req.Payload}, req.MarginPercent)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, opt)
	}
}
