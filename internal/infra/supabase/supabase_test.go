package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/supabase"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newClient(t *testing.T, h http.HandlerFunc) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return supabase.NewClient(srv.Client(), srv.URL, "anon", "service", resilience.NewCircuitBreaker(t.Name()),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}, zap.NewNop())
}

func TestSaveQuoteRun_PostsRow(t *testing.T) {
	var got map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/quote_runs" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer service" {
			t.Error("missing supabase auth headers")
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.SaveQuoteRun(context.Background(), &domain.QuoteRun{
		RunID:     "run-1",
		Origin:    "CNSHA",
		BestPrice: decimal.RequireFromString("1500.50"),
		Currency:  "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["run_id"] != "run-1" || got["best_price"] != "1500.5" {
		t.Errorf("unexpected row %v", got)
	}
}

func TestListQuoteRuns_DecodesRows(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "limit=5") || !strings.Contains(r.URL.RawQuery, "order=created_at.desc") {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"run_id":"r2","option_count":3,"best_price":"900","currency":"EUR","exhausted":true,"created_at":"2026-01-02T10:00:00Z"}]`))
	})

	runs, err := c.ListQuoteRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "r2" || !runs[0].Exhausted || !runs[0].BestPrice.Equal(decimal.NewFromInt(900)) {
		t.Errorf("unexpected runs %+v", runs)
	}
}

func TestListCarriers_NullTenant(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"1","name":"Maersk","tenant_id":null},{"id":"2","name":"maersk","tenant_id":"t-1","modes":["ocean"]}]`))
	})

	carriers, err := c.ListCarriers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(carriers) != 2 || carriers[0].TenantID != "" || carriers[1].TenantID != "t-1" {
		t.Errorf("unexpected carriers %+v", carriers)
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"message":"relation does not exist"}`, http.StatusBadRequest)
	})

	_, err := c.ListCarriers(context.Background())
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
}
