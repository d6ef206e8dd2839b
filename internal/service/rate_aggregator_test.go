package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAggregator() *service.Aggregator {
	return service.NewAggregator(service.NewNormalizer("en"), 4, zap.NewNop())
}

func fetchOK(opts ...map[string]any) domain.FetchFunc {
	return func(context.Context) ([]map[string]any, error) { return opts, nil }
}

func fetchErr(msg string) domain.FetchFunc {
	return func(context.Context) ([]map[string]any, error) { return nil, errors.New(msg) }
}

func legacyOpt(id, carrier string, price int, days int) map[string]any {
	return map[string]any{"quote_id": id, "carrier_name": carrier, "total_amount": price, "currency": "USD", "transit_days": days}
}

func aiOpts(carrier string, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{"id": fmt.Sprintf("%s-%d", carrier, i), "carrier": carrier, "price": 1000 + (n-i)*10})
	}
	return out
}

// simulateN returns n simulated payloads tagged with the combination key.
func simulateN(n int) domain.SimulateFunc {
	return func(c domain.Combination) []map[string]any {
		out := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, map[string]any{
				"id":      fmt.Sprintf("sim-%s-%d", c.Key(), i),
				"carrier": "SimLine",
				"price":   500 + i*100,
			})
		}
		return out
	}
}

func TestAggregate_PartialLegacyFailure(t *testing.T) {
	combo1 := domain.Combination{ContainerType: "20GP", CargoType: "general"}
	combo2 := domain.Combination{ContainerType: "40HC", CargoType: "general"}

	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{
		Legacy: []domain.LegacySource{
			{Combination: combo1, Fetch: fetchOK(
				legacyOpt("L1", "Maersk", 2000, 30),
				legacyOpt("L2", "MSC", 1800, 35),
				legacyOpt("L3", "ONE", 2500, 28),
			)},
			{Combination: combo2, Fetch: fetchErr("engine timeout")},
		},
		AI:            fetchOK(append(aiOpts("CarrierA", 3), aiOpts("CarrierB", 7)...)...),
		Simulate:      simulateN(3),
		MarginPercent: decimal.NewFromInt(15),
	})

	require.NoError(t, err)
	assert.False(t, res.Exhausted)

	perCombo := map[string]int{}
	perAICarrier := map[string]int{}
	for _, o := range res.Options {
		switch o.Source {
		case domain.SourceAI:
			perAICarrier[o.Carrier]++
		default:
			perCombo[o.Combination]++
		}
	}
	assert.Equal(t, map[string]int{combo1.Key(): 2, combo2.Key(): 2}, perCombo)
	assert.Equal(t, map[string]int{"CarrierA": 3, "CarrierB": 5}, perAICarrier)
	assert.Len(t, res.Options, 12)

	// Legacy-derived first, AI second.
	assert.Equal(t, "L2", res.Options[0].ID)
	assert.Equal(t, "L1", res.Options[1].ID)
	assert.Equal(t, domain.SourceSimulated, res.Options[2].Source)
	assert.Equal(t, combo2.Key(), res.Options[2].Combination)
	assert.Equal(t, domain.SourceAI, res.Options[4].Source)

	require.Len(t, res.Sources, 3)
	assert.True(t, res.Sources[1].FellBack)
	assert.Contains(t, res.Sources[1].Error, "engine timeout")
	assert.Empty(t, res.Diagnostic, "diagnostics are only surfaced on exhaustion")

	for _, o := range res.Options {
		assert.False(t, o.BuyPrice.IsZero(), "option %s has no financials", o.ID)
	}
}

func TestAggregate_TotalExhaustion(t *testing.T) {
	combo := domain.Combination{ContainerType: "40HC"}

	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{
		Legacy:   []domain.LegacySource{{Combination: combo, Fetch: fetchErr("legacy down")}},
		AI:       fetchErr("advisor down"),
		Simulate: func(domain.Combination) []map[string]any { return nil },
	})

	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	assert.Empty(t, res.Options)
	assert.Contains(t, res.Diagnostic, "legacy down")
	assert.Contains(t, res.Diagnostic, "advisor down")
	assert.True(t, strings.HasPrefix(res.Warning, "all rate sources unavailable"))
}

func TestAggregate_GlobalFallbackSimulatesPrimaryCombination(t *testing.T) {
	primary := domain.Combination{ContainerType: "20GP"}
	secondary := domain.Combination{ContainerType: "40HC"}

	calls := 0
	sim := func(c domain.Combination) []map[string]any {
		calls++
		// Only the unconditional final run produces options.
		if calls <= 2 {
			return nil
		}
		return simulateN(8)(c)
	}

	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{
		Legacy: []domain.LegacySource{
			{Combination: primary, Fetch: fetchOK()},
			{Combination: secondary, Fetch: fetchErr("boom")},
		},
		Simulate: sim,
	})

	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	require.Len(t, res.Options, service.MaxFallbackOptions)
	for i, o := range res.Options {
		assert.Equal(t, primary.Key(), o.Combination)
		if i > 0 {
			assert.True(t, res.Options[i-1].Price.LessThanOrEqual(o.Price))
		}
	}
	assert.Contains(t, res.Diagnostic, "returned no options")
	assert.Contains(t, res.Diagnostic, "boom")
}

func TestAggregate_SimulatorOnly(t *testing.T) {
	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{Simulate: simulateN(2)})

	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	assert.Len(t, res.Options, 2)
	assert.Equal(t, "no rate source returned options", res.Diagnostic)
}

func TestAggregate_NoSources(t *testing.T) {
	_, err := newAggregator().Aggregate(context.Background(), domain.RateSources{})
	assert.ErrorIs(t, err, domain.ErrNoRateSources)
}

func TestAggregate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newAggregator().Aggregate(ctx, domain.RateSources{Simulate: simulateN(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_HungSourceFallsBackBeforeCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	combo := domain.Combination{ContainerType: "40HC"}
	hung := func(ctx context.Context) ([]map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	res, err := newAggregator().Aggregate(ctx, domain.RateSources{
		Legacy:   []domain.LegacySource{{Combination: combo, Fetch: hung}},
		AI:       hung,
		Simulate: simulateN(3),
	})

	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "aggregation must finish inside the caller's deadline")
	assert.False(t, res.Exhausted)
	require.Len(t, res.Options, service.MaxOptionsPerCombination)
	for _, o := range res.Options {
		assert.Equal(t, domain.SourceSimulated, o.Source)
	}
	assert.True(t, res.Sources[0].FellBack)
	assert.Contains(t, res.Sources[0].Error, context.DeadlineExceeded.Error())
}

func TestAggregate_SourceTimeoutCapsSlowSource(t *testing.T) {
	agg := newAggregator().WithSourceTimeout(20 * time.Millisecond)

	start := time.Now()
	res, err := agg.Aggregate(context.Background(), domain.RateSources{
		Legacy: []domain.LegacySource{{Combination: domain.Combination{ContainerType: "20GP"}, Fetch: func(ctx context.Context) ([]map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}},
		Simulate: simulateN(2),
	})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, res.Options, 2)
	assert.True(t, res.Sources[0].FellBack)
}

func TestAggregate_CallerCancellationIsReturned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	_, err := newAggregator().Aggregate(ctx, domain.RateSources{
		Legacy: []domain.LegacySource{{Combination: domain.Combination{}, Fetch: func(ctx context.Context) ([]map[string]any, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}}},
		Simulate: simulateN(1),
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_TopNHoldsPerCombination(t *testing.T) {
	single := domain.Combination{ContainerType: "40HC", CargoType: "general", Quantity: 1}
	double := domain.Combination{ContainerType: "40HC", CargoType: "general", Quantity: 2}
	three := func(prefix string) domain.FetchFunc {
		return fetchOK(
			legacyOpt(prefix+"1", "Maersk", 1000, 30),
			legacyOpt(prefix+"2", "MSC", 1100, 30),
			legacyOpt(prefix+"3", "ONE", 1200, 30),
		)
	}

	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{
		Legacy: []domain.LegacySource{
			{Combination: single, Fetch: three("a")},
			{Combination: double, Fetch: three("b")},
			{Combination: single, Fetch: three("c")},
		},
		Simulate: simulateN(1),
	})

	require.NoError(t, err)
	assert.NotEqual(t, single.Key(), double.Key())

	perCombo := map[string]int{}
	for _, o := range res.Options {
		perCombo[o.Combination]++
	}
	assert.Equal(t, map[string]int{single.Key(): 2, double.Key(): 2}, perCombo)
	assert.Len(t, res.Sources, 3)
}

func TestAggregate_PanickingSourceIsIsolated(t *testing.T) {
	combo := domain.Combination{ContainerType: "20GP"}

	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{
		Legacy: []domain.LegacySource{{Combination: combo, Fetch: func(context.Context) ([]map[string]any, error) {
			panic("nil map")
		}}},
		Simulate: simulateN(3),
	})

	require.NoError(t, err)
	assert.False(t, res.Exhausted)
	assert.Len(t, res.Options, service.MaxOptionsPerCombination)
	assert.Contains(t, res.Sources[0].Error, "panicked")
}

func TestAggregate_RejectedOptionsAreCounted(t *testing.T) {
	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{
		Legacy: []domain.LegacySource{{Combination: domain.Combination{}, Fetch: fetchOK(
			legacyOpt("L1", "Maersk", 900, 20),
			map[string]any{"note": "garbage"},
		)}},
		Simulate: simulateN(1),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Len(t, res.Options, 1)
}

func TestAggregate_CompliancePendingDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{
		Legacy: []domain.LegacySource{{Combination: domain.Combination{}, Fetch: fetchOK(legacyOpt("L1", "MSC", 1000, 10))}},
		Compliance: func(ctx context.Context) (*domain.ComplianceResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return &domain.ComplianceResult{Status: domain.ComplianceClear}, nil
		},
		Simulate: simulateN(1),
	})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, res.Compliance)
	assert.Equal(t, domain.CompliancePending, res.Compliance.Status)
}

func TestAggregate_ComplianceErrorIsReported(t *testing.T) {
	legacyDone := make(chan struct{})
	res, err := newAggregator().Aggregate(context.Background(), domain.RateSources{
		Legacy: []domain.LegacySource{{Combination: domain.Combination{}, Fetch: func(context.Context) ([]map[string]any, error) {
			<-legacyDone
			return []map[string]any{legacyOpt("L1", "MSC", 1000, 10)}, nil
		}}},
		Compliance: func(context.Context) (*domain.ComplianceResult, error) {
			defer close(legacyDone)
			return nil, errors.New("screening offline")
		},
		Simulate: simulateN(1),
	})

	require.NoError(t, err)
	require.NotNil(t, res.Compliance)
	// The compliance goroutine may not have delivered yet even though it ran.
	assert.Contains(t, []string{domain.ComplianceError, domain.CompliancePending}, res.Compliance.Status)
}

func TestRankByPriceAndTransit(t *testing.T) {
	days := func(d int) *int { return &d }
	opts := []domain.RateOption{
		{ID: "a", Price: dec("100"), TransitDays: nil},
		{ID: "b", Price: dec("100"), TransitDays: days(20)},
		{ID: "c", Price: dec("90"), TransitDays: days(40)},
		{ID: "d", Price: dec("100"), TransitDays: days(15)},
	}

	ranked := service.RankByPriceAndTransit(opts)

	ids := make([]string, 0, len(ranked))
	for _, o := range ranked {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"c", "d", "b", "a"}, ids)
}

func TestRankAIOptions_BestValueFirstAndCapped(t *testing.T) {
	var opts []domain.RateOption
	for i := 0; i < 7; i++ {
		opts = append(opts, domain.RateOption{ID: fmt.Sprintf("x%d", i), Carrier: "X", Price: decimal.NewFromInt(int64(100 + i))})
	}
	opts = append(opts, domain.RateOption{ID: "bv", Carrier: "x ", Price: dec("500"), Tier: domain.TierBestValue})
	opts = append(opts, domain.RateOption{ID: "y0", Carrier: "Y", Price: dec("50")})

	ranked := service.RankAIOptions(opts)

	require.Len(t, ranked, service.MaxAIOptionsPerCarrier+1)
	assert.Equal(t, "bv", ranked[0].ID)
	assert.Equal(t, "x0", ranked[1].ID)
	assert.Equal(t, "y0", ranked[len(ranked)-1].ID)
}
