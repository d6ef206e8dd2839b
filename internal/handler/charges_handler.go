package handler

import (
	"net/http"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"go.uber.org/zap"
)

// POST /v1/charges/classify
func classifyChargesHandler(svc *service.QuoteService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.ClassifyRequest
		if err := decodeAndValidate(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, svc.ClassifyCharges(&req))
	}
}
