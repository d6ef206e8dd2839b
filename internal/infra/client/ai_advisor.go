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

// AIAdvisorClient calls the AI rate advisor service.
type AIAdvisorClient struct {
	upstream
}

// NewAIAdvisorClient creates a new AIAdvisorClient.
func NewAIAdvisorClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AIAdvisorClient {
	return &AIAdvisorClient{upstream: newUpstream("ai-advisor", httpClient, baseURL, cb, cfg)}
}

// SuggestRates asks the advisor for options across every requested combination.
func (c *AIAdvisorClient) SuggestRates(ctx context.Context, req *domain.AIRateRequest) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "AIAdvisorClient.SuggestRates")
	defer span.End()
	span.SetAttributes(
		attribute.String("route.origin", req.Origin),
		attribute.String("route.destination", req.Destination),
		attribute.Int("combinations", len(req.Containers)),
	)

	var options []map[string]any
	err := c.postJSON(ctx, "/v1/rates/suggest", req, func(r io.Reader) error {
		var err error
		options, err = decodeOptions(r, "options", "suggestions", "rates")
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return options, nil
}
