package client

import (
	"context"
	"io"
	"net/http"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// LegacyRatesClient calls the legacy rate-quote engine.
type LegacyRatesClient struct {
	upstream
}

// NewLegacyRatesClient creates a new LegacyRatesClient.
func NewLegacyRatesClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *LegacyRatesClient {
	return &LegacyRatesClient{upstream: newUpstream("legacy-rates", httpClient, baseURL, cb, cfg)}
}

// FetchRates returns the raw options quoted for one combination.
func (c *LegacyRatesClient) FetchRates(ctx context.Context, req *domain.LegacyRateRequest) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "LegacyRatesClient.FetchRates")
	defer span.End()
	span.SetAttributes(
		attribute.String("route.origin", req.Origin),
		attribute.String("route.destination", req.Destination),
		attribute.String("container.type", req.ContainerType),
	)

	var options []map[string]any
	err := c.postJSON(ctx, "/v1/rates/quote", req, func(r io.Reader) error {
		var err error
		options, err = decodeOptions(r, "rates", "quotes", "data")
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("options", len(options)))
	return options, nil
}
