// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
)

// LegacyRateFetcher calls the legacy rate-quote engine for one combination.
type LegacyRateFetcher interface {
	FetchRates(ctx context.Context, req *domain.LegacyRateRequest) ([]map[string]any, error)
}

// AIRateAdvisor asks the AI rate advisor for options across all combinations.
type AIRateAdvisor interface {
	SuggestRates(ctx context.Context, req *domain.AIRateRequest) ([]map[string]any, error)
}

// ComplianceChecker screens a shipment (sanctions, restricted commodities).
type ComplianceChecker interface {
	Check(ctx context.Context, req *domain.ComplianceRequest) (*domain.ComplianceResult, error)
}

// RateSimulator generates local fallback options. It never fails.
type RateSimulator interface {
	Simulate(route domain.LegacyRateRequest) []map[string]any
}

// QuoteHistoryStore persists aggregation run summaries.
type QuoteHistoryStore interface {
	SaveQuoteRun(ctx context.Context, run *domain.QuoteRun) error
	ListQuoteRuns(ctx context.Context, limit int) ([]domain.QuoteRun, error)
}

// CarrierStore lists carrier reference records.
type CarrierStore interface {
	ListCarriers(ctx context.Context) ([]domain.Carrier, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
