package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/handler"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/cache"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/client"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/observability"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubCarrierStore struct {
	carriers []domain.Carrier
}

func (s *stubCarrierStore) ListCarriers(_ context.Context) ([]domain.Carrier, error) {
	return s.carriers, nil
}

type upstreams struct {
	legacy     *httptest.Server
	ai         *httptest.Server
	compliance *httptest.Server
}

func (u upstreams) Close() {
	u.legacy.Close()
	u.ai.Close()
	u.compliance.Close()
}

func newIntegrationRouter(t *testing.T, u upstreams, metrics *observability.Metrics) http.Handler {
	t.Helper()
	cfg := resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	httpClient := &http.Client{Timeout: 2 * time.Second}

	carrierCache := cache.New[[]domain.Carrier](time.Minute)
	t.Cleanup(carrierCache.Close)

	normalizer := service.NewNormalizer("en")
	svc := service.NewQuoteService(
		service.QuoteDeps{
			Legacy:     client.NewLegacyRatesClient(httpClient, u.legacy.URL, resilience.NewCircuitBreaker(t.Name()+"-legacy"), cfg),
			AI:         client.NewAIAdvisorClient(httpClient, u.ai.URL, resilience.NewCircuitBreaker(t.Name()+"-ai"), cfg),
			Compliance: client.NewComplianceClient(httpClient, u.compliance.URL, resilience.NewCircuitBreaker(t.Name()+"-compliance"), cfg),
			Simulator:  service.NewRateSimulator(4),
			Carriers: service.NewCarrierDirectory(&stubCarrierStore{carriers: []domain.Carrier{
				{ID: "c1", Name: "Maersk"},
				{ID: "c2", Name: "maersk ", TenantID: "tenant-a"},
				{ID: "c3", Name: "MSC"},
			}}, carrierCache, metrics, zap.NewNop()),
		},
		service.NewAggregator(normalizer, 4, zap.NewNop()),
		normalizer,
		decimal.NewFromInt(15),
		metrics,
		zap.NewNop(),
	)
	return handler.NewRouter(svc, nil, 5*time.Second, metrics, zap.NewNop())
}

func jsonServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func postQuote(t *testing.T, router http.Handler, body string) *domain.RateQuoteResult {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/quotes/rates", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.RateQuoteResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &result
}

// TestIntegration_HealthyUpstreams runs a quote with every upstream answering.
func TestIntegration_HealthyUpstreams(t *testing.T) {
	u := upstreams{
		legacy: jsonServer(http.StatusOK, `{"rates":[
			{"quote_id":"L1","carrier_name":"Maersk","total_amount":2100,"currency":"USD","transit_days":30},
			{"quote_id":"L2","carrier_name":"MSC","total_amount":1900,"currency":"USD","transit_days":34},
			{"quote_id":"L3","carrier_name":"ONE","total_amount":2500,"currency":"USD","transit_days":27}
		]}`),
		ai: jsonServer(http.StatusOK, `{"options":[
			{"id":"A1","carrier":"CMA CGM","price":2000,"currency":"USD","tier":"spot","transitTime":"29 days"}
		]}`),
		compliance: jsonServer(http.StatusOK, `{"status":"clear"}`),
	}
	defer u.Close()

	metrics := observability.NewMetrics()
	router := newIntegrationRouter(t, u, metrics)

	result := postQuote(t, router, `{"origin":"CNSHA","destination":"NLRTM","mode":"ocean",
		"containers":[{"type":"40HC","quantity":1}],"include_ai":true}`)

	if result.Exhausted {
		t.Fatal("did not expect exhaustion")
	}
	if result.RunID == "" {
		t.Error("expected a run id")
	}

	var legacy, ai int
	for _, o := range result.Options {
		switch o.Source {
		case domain.SourceLegacy:
			legacy++
		case domain.SourceAI:
			ai++
		}
	}
	if legacy != 2 {
		t.Errorf("expected top 2 legacy options, got %d", legacy)
	}
	if ai != 1 {
		t.Errorf("expected 1 AI option, got %d", ai)
	}
	if result.Options[0].ID != "L2" {
		t.Errorf("expected cheapest legacy option first, got %s", result.Options[0].ID)
	}
	if result.Compliance == nil {
		t.Fatal("expected a compliance status")
	}
	if s := result.Compliance.Status; s != domain.ComplianceClear && s != domain.CompliancePending {
		t.Errorf("unexpected compliance status %q", s)
	}

	snap := metrics.GetQuoteSnapshot()
	if snap.TotalRuns != 1 || snap.FallbackRate != 0 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

// TestIntegration_LegacyDownFallsBackToSimulation checks the per-combination fallback.
func TestIntegration_LegacyDownFallsBackToSimulation(t *testing.T) {
	u := upstreams{
		legacy:     jsonServer(http.StatusBadGateway, `{"error":"engine offline"}`),
		ai:         jsonServer(http.StatusOK, `[]`),
		compliance: jsonServer(http.StatusOK, `{"status":"clear"}`),
	}
	defer u.Close()

	router := newIntegrationRouter(t, u, observability.NewMetrics())
	result := postQuote(t, router, `{"origin":"CNSHA","destination":"NLRTM","mode":"ocean",
		"containers":[{"type":"20GP","quantity":2}]}`)

	if result.Exhausted {
		t.Fatal("a simulated legacy fallback is not exhaustion")
	}
	if len(result.Options) == 0 {
		t.Fatal("expected simulated options")
	}
	for _, o := range result.Options {
		if o.Source != domain.SourceSimulated {
			t.Errorf("expected simulated option, got %s", o.Source)
		}
	}

	fellBack := false
	for _, s := range result.Sources {
		if s.FellBack {
			fellBack = true
		}
	}
	if !fellBack {
		t.Error("expected a source report marked as fallen back")
	}
}

// TestIntegration_CarrierDirectory deduplicates by name with the tenant record preferred.
func TestIntegration_CarrierDirectory(t *testing.T) {
	u := upstreams{
		legacy:     jsonServer(http.StatusOK, `[]`),
		ai:         jsonServer(http.StatusOK, `[]`),
		compliance: jsonServer(http.StatusOK, `{}`),
	}
	defer u.Close()

	router := newIntegrationRouter(t, u, observability.NewMetrics())

	req := httptest.NewRequest(http.MethodGet, "/v1/carriers?preferred_tenant=tenant-a", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp domain.ListResponse[domain.Carrier]
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 carriers, got %d", resp.Total)
	}
	if resp.Data[0].ID != "c2" {
		t.Errorf("expected tenant record c2, got %s", resp.Data[0].ID)
	}
}

// TestIntegration_ClassifyCharges buckets a pickup charge onto the pickup leg.
func TestIntegration_ClassifyCharges(t *testing.T) {
	u := upstreams{
		legacy:     jsonServer(http.StatusOK, `[]`),
		ai:         jsonServer(http.StatusOK, `[]`),
		compliance: jsonServer(http.StatusOK, `{}`),
	}
	defer u.Close()

	router := newIntegrationRouter(t, u, observability.NewMetrics())

	body := `{
		"legs":[
			{"id":"leg-1","mode":"road","origin":"Factory","destination":"CNSHA","sequence":1,"leg_type":"pickup"},
			{"id":"leg-2","mode":"ocean","origin":"CNSHA","destination":"NLRTM","sequence":2,"leg_type":"main"}
		],
		"charges":[
			{"id":"ch-1","name":"Pickup fee","amount":120,"currency":"USD"},
			{"id":"ch-2","name":"Documentation","amount":45,"currency":"USD"}
		]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/charges/classify", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.ClassifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Charges) != 2 {
		t.Fatalf("expected 2 charges, got %d", len(resp.Charges))
	}
	pickup := resp.Charges[0]
	if pickup.AssignedLegID == nil || *pickup.AssignedLegID != "leg-1" {
		t.Errorf("expected pickup fee on leg-1, got %v", pickup.AssignedLegID)
	}
	if !resp.Charges[1].IsGlobal() {
		t.Error("expected documentation charge to stay global")
	}
}
