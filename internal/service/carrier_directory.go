package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/observability"
	"github.com/boddenberg/freight-quote-bfa-go/internal/port"

	"go.uber.org/zap"
)

const carriersCacheKey = "carriers:all"

// DedupeCarriers collapses records sharing a case-insensitive trimmed name.
// On collision the record owned by preferredTenant wins, otherwise the first
// one seen. Output keeps first-seen order.
func DedupeCarriers(carriers []domain.Carrier, preferredTenant string) []domain.Carrier {
	out := make([]domain.Carrier, 0, len(carriers))
	index := make(map[string]int, len(carriers))
	for _, c := range carriers {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, c)
			continue
		}
		if preferredTenant != "" && c.TenantID == preferredTenant && out[i].TenantID != preferredTenant {
			out[i] = c
		}
	}
	return out
}

// CarrierDirectory serves carrier reference records from the store through a cache.
type CarrierDirectory struct {
	store   port.CarrierStore
	cache   port.Cache[[]domain.Carrier]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCarrierDirectory creates the directory.
func NewCarrierDirectory(store port.CarrierStore, cache port.Cache[[]domain.Carrier], metrics *observability.Metrics, logger *zap.Logger) *CarrierDirectory {
	return &CarrierDirectory{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// List returns the deduplicated carriers, preferring preferredTenant's records.
func (d *CarrierDirectory) List(ctx context.Context, preferredTenant string) ([]domain.Carrier, error) {
	ctx, span := tracer.Start(ctx, "CarrierDirectory.List")
	defer span.End()

	all, ok := d.cache.Get(carriersCacheKey)
	if ok {
		d.metrics.IncrCacheHit("carriers")
	} else {
		d.metrics.IncrCacheMiss("carriers")
		var err error
		all, err = d.store.ListCarriers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list carriers: %w", err)
		}
		d.cache.Set(carriersCacheKey, all)
		d.logger.Debug("carrier directory refreshed", zap.Int("records", len(all)))
	}

	return DedupeCarriers(all, preferredTenant), nil
}
