package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// ComplianceClient calls the shipment screening service.
type ComplianceClient struct {
	upstream
}

// NewComplianceClient creates a new ComplianceClient.
func NewComplianceClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ComplianceClient {
	return &ComplianceClient{upstream: newUpstream("compliance", httpClient, baseURL, cb, cfg)}
}

type screeningResponse struct {
	Status  string   `json:"status"`
	Flagged bool     `json:"flagged"`
	Reasons []string `json:"reasons"`
}

// Check screens the route and commodity.
func (c *ComplianceClient) Check(ctx context.Context, req *domain.ComplianceRequest) (*domain.ComplianceResult, error) {
	ctx, span := tracer.Start(ctx, "ComplianceClient.Check")
	defer span.End()

	var resp screeningResponse
	err := c.postJSON(ctx, "/v1/compliance/screen", req, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&resp)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	status := strings.ToLower(strings.TrimSpace(resp.Status))
	switch {
	case resp.Flagged, status == "flagged", status == "blocked", status == "hit":
		status = domain.ComplianceFlagged
	case status == "":
		status = domain.ComplianceClear
	}
	span.SetAttributes(attribute.String("compliance.status", status))

	return &domain.ComplianceResult{Status: status, Reasons: resp.Reasons}, nil
}
