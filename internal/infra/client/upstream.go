// Package client holds the HTTP adapters of the upstream rate sources.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("client")

// upstream is the shared transport of every source: bulkhead, breaker, then
// retry around a JSON POST.
type upstream struct {
	name       string
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
}

func newUpstream(name string, httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) upstream {
	return upstream{
		name:       name,
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
	}
}

// postJSON sends body to path and hands the 2xx response body to decode.
func (u *upstream) postJSON(ctx context.Context, path string, body any, decode func(io.Reader) error) error {
	if err := u.bulkhead.Acquire(ctx); err != nil {
		return u.mapError(err)
	}
	defer u.bulkhead.Release()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", u.name, err)
	}

	_, err = u.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, u.cfg, func() error {
			url := u.baseURL + path
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return resilience.Permanent(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "application/json")

			resp, err := u.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				return fmt.Errorf("%s returned status %d", u.name, resp.StatusCode)
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return resilience.Permanent(fmt.Errorf("%s returned status %d: %s", u.name, resp.StatusCode, bytes.TrimSpace(msg)))
			}

			if err := decode(resp.Body); err != nil {
				return resilience.Permanent(fmt.Errorf("%s: decode response: %w", u.name, err))
			}
			return nil
		})
	})
	return u.mapError(err)
}

func (u *upstream) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case resilience.IsBreakerRejection(err):
		return &domain.ErrCircuitOpen{Service: u.name}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: u.name}
	default:
		return &domain.ErrExternalService{Service: u.name, Err: err}
	}
}

// decodeOptions accepts a bare JSON array of options or an object wrapping it
// under one of keys. Numbers are kept as json.Number so money keeps its precision.
func decodeOptions(r io.Reader, keys ...string) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	switch v := raw.(type) {
	case []any:
		return asObjects(v), nil
	case map[string]any:
		for _, k := range keys {
			if items, ok := v[k].([]any); ok {
				return asObjects(items), nil
			}
		}
		return nil, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected payload type %T", raw)
}

func asObjects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
