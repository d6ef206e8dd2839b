package supabase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/resilience"
)

// carrierRow maps the carriers table; tenant_id is null for shared records.
type carrierRow struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	TenantID *string  `json:"tenant_id"`
	SCAC     string   `json:"scac"`
	Modes    []string `json:"modes"`
}

// ListCarriers returns every carrier record (implements port.CarrierStore).
func (c *Client) ListCarriers(ctx context.Context) ([]domain.Carrier, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCarriers")
	defer span.End()

	var carriers []domain.Carrier
	err := c.execute(ctx, "carriers", func() error {
		body, err := c.doRequest(ctx, "carriers?select=id,name,tenant_id,scac,modes&order=name.asc")
		if err != nil {
			return err
		}

		var rows []carrierRow
		if body != nil {
			if err := json.Unmarshal(body, &rows); err != nil {
				return resilience.Permanent(fmt.Errorf("failed to decode carriers: %w", err))
			}
		}

		carriers = make([]domain.Carrier, 0, len(rows))
		for _, r := range rows {
			cr := domain.Carrier{ID: r.ID, Name: r.Name, SCAC: r.SCAC, Modes: r.Modes}
			if r.TenantID != nil {
				cr.TenantID = *r.TenantID
			}
			carriers = append(carriers, cr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return carriers, nil
}
