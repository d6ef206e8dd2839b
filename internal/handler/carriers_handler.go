package handler

import (
	"net/http"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// GET /v1/carriers?preferred_tenant=
func listCarriersHandler(svc *service.QuoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/carriers")
		defer span.End()

		tenant := r.URL.Query().Get("preferred_tenant")
		if tenant == "" {
			tenant = TenantFromContext(ctx)
		}
		span.SetAttributes(attribute.String("tenant", tenant))

		carriers, err := svc.ListCarriers(ctx, tenant)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Carrier]{Data: carriers, Total: len(carriers)})
	}
}
