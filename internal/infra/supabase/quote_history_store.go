package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/resilience"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const quoteRunsTable = "quote_runs"

// quoteRunRow maps the quote_runs table.
type quoteRunRow struct {
	RunID       string          `json:"run_id"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Mode        string          `json:"mode"`
	TenantID    string          `json:"tenant_id,omitempty"`
	OptionCount int             `json:"option_count"`
	BestPrice   decimal.Decimal `json:"best_price"`
	Currency    string          `json:"currency"`
	Exhausted   bool            `json:"exhausted"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SaveQuoteRun inserts one run summary (implements port.QuoteHistoryStore).
func (c *Client) SaveQuoteRun(ctx context.Context, run *domain.QuoteRun) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveQuoteRun")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", run.RunID))

	row := quoteRunRow(*run)
	return c.execute(ctx, "quote_runs", func() error {
		return c.doPost(ctx, quoteRunsTable, row)
	})
}

// ListQuoteRuns returns the latest runs, newest first.
func (c *Client) ListQuoteRuns(ctx context.Context, limit int) ([]domain.QuoteRun, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListQuoteRuns")
	defer span.End()

	var runs []domain.QuoteRun
	err := c.execute(ctx, "quote_runs", func() error {
		path := fmt.Sprintf("%s?select=*&order=created_at.desc&limit=%d", quoteRunsTable, limit)
		body, err := c.doRequest(ctx, path)
		if err != nil {
			return err
		}
		if body == nil {
			runs = []domain.QuoteRun{}
			return nil
		}

		var rows []quoteRunRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return resilience.Permanent(fmt.Errorf("failed to decode quote runs: %w", err))
		}
		runs = make([]domain.QuoteRun, 0, len(rows))
		for _, r := range rows {
			runs = append(runs, domain.QuoteRun(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}
