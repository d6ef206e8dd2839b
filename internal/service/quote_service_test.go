package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/cache"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/observability"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockLegacy struct {
	mu       sync.Mutex
	byType   map[string][]map[string]any
	errs     map[string]error
	requests []domain.LegacyRateRequest
}

func (m *mockLegacy) FetchRates(_ context.Context, req *domain.LegacyRateRequest) ([]map[string]any, error) {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()
	if err := m.errs[req.ContainerType]; err != nil {
		return nil, err
	}
	return m.byType[req.ContainerType], nil
}

type mockAI struct {
	options []map[string]any
	err     error
	called  bool
}

func (m *mockAI) SuggestRates(_ context.Context, _ *domain.AIRateRequest) ([]map[string]any, error) {
	m.called = true
	return m.options, m.err
}

type mockHistory struct {
	saved   []domain.QuoteRun
	saveErr error
	runs    []domain.QuoteRun
}

func (m *mockHistory) SaveQuoteRun(_ context.Context, run *domain.QuoteRun) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, *run)
	return nil
}

func (m *mockHistory) ListQuoteRuns(_ context.Context, limit int) ([]domain.QuoteRun, error) {
	if len(m.runs) > limit {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func newQuoteService(deps service.QuoteDeps, metrics *observability.Metrics) *service.QuoteService {
	if deps.Simulator == nil {
		deps.Simulator = service.NewRateSimulator(3)
	}
	normalizer := service.NewNormalizer("en")
	return service.NewQuoteService(deps, service.NewAggregator(normalizer, 4, zap.NewNop()), normalizer,
		decimal.NewFromInt(15), metrics, zap.NewNop())
}

func rateRequest() *domain.RateRequest {
	return &domain.RateRequest{
		Origin:      "CNSHA",
		Destination: "NLRTM",
		Mode:        "ocean",
		Containers:  []domain.ContainerRequirement{{Type: "20GP", Quantity: 1}, {Type: "40HC", Quantity: 2}},
	}
}

// --- Tests ---

func TestQuote_OneLegacyCallPerCombination(t *testing.T) {
	legacy := &mockLegacy{byType: map[string][]map[string]any{
		"20GP": {legacyOpt("A", "Maersk", 1500, 30)},
		"40HC": {legacyOpt("B", "MSC", 2500, 30)},
	}}
	history := &mockHistory{}
	metrics := observability.NewMetrics()
	svc := newQuoteService(service.QuoteDeps{Legacy: legacy, History: history}, metrics)

	res, err := svc.Quote(context.Background(), rateRequest())

	require.NoError(t, err)
	assert.Len(t, legacy.requests, 2)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Options, 2)
	assert.Equal(t, domain.ComplianceSkipped, res.Compliance.Status)

	require.Len(t, history.saved, 1)
	assert.Equal(t, res.RunID, history.saved[0].RunID)
	assert.True(t, history.saved[0].BestPrice.Equal(dec("1500")))
	assert.Equal(t, "USD", history.saved[0].Currency)

	snap := metrics.GetQuoteSnapshot()
	assert.Equal(t, int64(1), snap.TotalRuns)
	assert.Zero(t, snap.FallbackRate)
}

func TestQuote_RepeatedContainerLinesAreMerged(t *testing.T) {
	legacy := &mockLegacy{byType: map[string][]map[string]any{
		"40HC": {legacyOpt("B", "MSC", 2500, 30)},
	}}
	svc := newQuoteService(service.QuoteDeps{Legacy: legacy}, observability.NewMetrics())

	req := rateRequest()
	req.Containers = []domain.ContainerRequirement{{Type: "40HC", Quantity: 1}, {Type: "40hc ", Quantity: 2}}

	_, err := svc.Quote(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, legacy.requests, 1)
	assert.Equal(t, "40HC", legacy.requests[0].ContainerType)
	assert.Equal(t, 3, legacy.requests[0].Quantity)
}

func TestQuote_PreferredTenantSelectsCarrierRecords(t *testing.T) {
	legacy := &mockLegacy{byType: map[string][]map[string]any{
		"20GP": {legacyOpt("A", "Maersk", 1500, 30)},
		"40HC": {legacyOpt("B", "msc ", 2500, 30)},
	}}
	store := &mockCarrierStore{carriers: []domain.Carrier{
		{ID: "shared-maersk", Name: "Maersk", SCAC: "MAEU"},
		{ID: "shared-msc", Name: "MSC", SCAC: "MSCU"},
		{ID: "acme-msc", Name: "MSC", TenantID: "acme", SCAC: "MSCU"},
	}}
	c := cache.New[[]domain.Carrier](time.Minute)
	defer c.Close()
	metrics := observability.NewMetrics()
	history := &mockHistory{}
	svc := newQuoteService(service.QuoteDeps{
		Legacy:   legacy,
		History:  history,
		Carriers: service.NewCarrierDirectory(store, c, metrics, zap.NewNop()),
	}, metrics)

	req := rateRequest()
	req.PreferredTenant = "acme"
	res, err := svc.Quote(context.Background(), req)

	require.NoError(t, err)
	ids := map[string]string{}
	for _, o := range res.Options {
		ids[o.ID] = o.CarrierID
	}
	assert.Equal(t, map[string]string{"A": "shared-maersk", "B": "acme-msc"}, ids)
	assert.Equal(t, "acme", res.Tenant)
	require.Len(t, history.saved, 1)
	assert.Equal(t, "acme", history.saved[0].TenantID)
}

func TestQuote_CarrierDirectoryFailureLeavesOptionsUnmatched(t *testing.T) {
	legacy := &mockLegacy{byType: map[string][]map[string]any{"20GP": {legacyOpt("A", "Maersk", 1500, 30)}}}
	store := &mockCarrierStore{err: errors.New("supabase down")}
	c := cache.New[[]domain.Carrier](time.Minute)
	defer c.Close()
	metrics := observability.NewMetrics()
	svc := newQuoteService(service.QuoteDeps{
		Legacy:   legacy,
		Carriers: service.NewCarrierDirectory(store, c, metrics, zap.NewNop()),
	}, metrics)

	res, err := svc.Quote(context.Background(), rateRequest())

	require.NoError(t, err)
	for _, o := range res.Options {
		assert.Empty(t, o.CarrierID)
	}
}

func TestQuote_DegradedRunIsRecorded(t *testing.T) {
	legacy := &mockLegacy{
		byType: map[string][]map[string]any{"20GP": {legacyOpt("A", "Maersk", 1500, 30)}},
		errs:   map[string]error{"40HC": errors.New("timeout")},
	}
	metrics := observability.NewMetrics()
	svc := newQuoteService(service.QuoteDeps{Legacy: legacy}, metrics)

	res, err := svc.Quote(context.Background(), rateRequest())

	require.NoError(t, err)
	assert.False(t, res.Exhausted)
	assert.Equal(t, 1.0, metrics.GetQuoteSnapshot().FallbackRate)
}

func TestQuote_HistoryFailureIsNotFatal(t *testing.T) {
	history := &mockHistory{saveErr: errors.New("supabase down")}
	svc := newQuoteService(service.QuoteDeps{History: history}, observability.NewMetrics())

	res, err := svc.Quote(context.Background(), rateRequest())

	require.NoError(t, err)
	assert.True(t, res.Exhausted, "without upstream sources only the final simulation runs")
	assert.NotEmpty(t, res.Options)
}

func TestQuote_AIOnlyWhenRequested(t *testing.T) {
	ai := &mockAI{options: aiOpts("CarrierA", 2)}
	svc := newQuoteService(service.QuoteDeps{AI: ai}, observability.NewMetrics())

	_, err := svc.Quote(context.Background(), rateRequest())
	require.NoError(t, err)
	assert.False(t, ai.called)

	req := rateRequest()
	req.IncludeAI = true
	res, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ai.called)
	assert.Len(t, res.Options, 2)
}

func TestQuote_Validation(t *testing.T) {
	svc := newQuoteService(service.QuoteDeps{}, observability.NewMetrics())

	req := rateRequest()
	req.Origin = " "
	_, err := svc.Quote(context.Background(), req)
	var validation *domain.ErrValidation
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "origin", validation.Field)

	req = rateRequest()
	margin := decimal.NewFromInt(101)
	req.MarginPercent = &margin
	_, err = svc.Quote(context.Background(), req)
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "margin_percent", validation.Field)
}

func TestQuote_MarginOverride(t *testing.T) {
	legacy := &mockLegacy{byType: map[string][]map[string]any{"20GP": {legacyOpt("A", "Maersk", 1000, 30)}}}
	svc := newQuoteService(service.QuoteDeps{Legacy: legacy}, observability.NewMetrics())

	req := rateRequest()
	req.Containers = req.Containers[:1]
	margin := decimal.NewFromInt(20)
	req.MarginPercent = &margin

	res, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Options, 1)
	assert.True(t, res.Options[0].BuyPrice.Equal(dec("800")))
}

func TestListHistory(t *testing.T) {
	svc := newQuoteService(service.QuoteDeps{}, observability.NewMetrics())
	_, err := svc.ListHistory(context.Background(), 5)
	var unavailable *domain.ErrServiceUnavailable
	assert.True(t, errors.As(err, &unavailable))

	history := &mockHistory{runs: make([]domain.QuoteRun, 30)}
	svc = newQuoteService(service.QuoteDeps{History: history}, observability.NewMetrics())
	runs, err := svc.ListHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, service.DefaultHistoryLimit)
}

func TestNormalize_RejectAndDefaultMargin(t *testing.T) {
	metrics := observability.NewMetrics()
	svc := newQuoteService(service.QuoteDeps{}, metrics)

	_, err := svc.Normalize(domain.RawOption{Kind: domain.SourceAI, Payload: map[string]any{}}, nil)
	var reject *domain.ErrNormalizationReject
	require.True(t, errors.As(err, &reject))
	assert.Equal(t, int64(1), metrics.GetQuoteSnapshot().RejectedTotal)

	opt, err := svc.Normalize(domain.RawOption{Kind: domain.SourceAI, Payload: map[string]any{"carrier": "ONE", "price": 1000}}, nil)
	require.NoError(t, err)
	assert.True(t, opt.BuyPrice.Equal(dec("850")))
}

func TestClassifyCharges_FlattensLegCharges(t *testing.T) {
	svc := newQuoteService(service.QuoteDeps{}, observability.NewMetrics())
	legs := []domain.TransportLeg{{ID: "L1", Mode: "ocean", Sequence: 1, LegType: "main",
		Charges: []domain.Charge{{ID: "c1", Name: "Freight", Amount: usd(900), Currency: "USD", LegID: "L1"}}}}

	resp := svc.ClassifyCharges(&domain.ClassifyRequest{
		Legs:    legs,
		Charges: []domain.Charge{{ID: "c2", Name: "Docs", Amount: usd(40), Currency: "USD", LegID: "L9"}},
	})

	require.Len(t, resp.Charges, 2)
	assert.True(t, resp.Breakdown.ByLeg["L1"].Equal(domain.CurrencyTotals{"USD": usd(900)}))
	assert.True(t, resp.Breakdown.Unassigned.Equal(domain.CurrencyTotals{"USD": usd(40)}))
}

func TestCalculateFinancials_Validation(t *testing.T) {
	svc := newQuoteService(service.QuoteDeps{}, observability.NewMetrics())

	_, err := svc.CalculateFinancials(&domain.FinancialsRequest{Price: dec("-1"), MarginPercent: dec("10")})
	var validation *domain.ErrValidation
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "price", validation.Field)

	f, err := svc.CalculateFinancials(&domain.FinancialsRequest{Price: dec("1000"), MarginPercent: dec("15")})
	require.NoError(t, err)
	assert.True(t, f.MarkupPercent.Equal(dec("17.65")))
}
