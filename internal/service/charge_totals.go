package service

import (
	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
)

// SummarizeCharges buckets classified charges per leg, role, global and
// unassigned scope. Every charge lands in exactly one of the leg, global or
// unassigned buckets, and always in the grand total.
func SummarizeCharges(charges []domain.BifurcatedCharge) domain.ChargeBreakdown {
	b := domain.ChargeBreakdown{
		ByLeg:      make(map[string]domain.CurrencyTotals),
		ByRole:     make(map[string]domain.CurrencyTotals),
		Global:     make(domain.CurrencyTotals),
		Unassigned: make(domain.CurrencyTotals),
		GrandTotal: make(domain.CurrencyTotals),
	}

	for _, ch := range charges {
		b.GrandTotal.Add(ch.Currency, ch.Amount)

		switch {
		case ch.Mismatched:
			b.Unassigned.Add(ch.Currency, ch.Amount)
			b.UnassignedCharges = append(b.UnassignedCharges, ch)
			continue
		case ch.AssignedLegID != nil:
			totals, ok := b.ByLeg[*ch.AssignedLegID]
			if !ok {
				totals = make(domain.CurrencyTotals)
				b.ByLeg[*ch.AssignedLegID] = totals
			}
			totals.Add(ch.Currency, ch.Amount)
		default:
			b.Global.Add(ch.Currency, ch.Amount)
		}

		role := ch.DisplayRole
		if role == "" {
			role = DisplayRole(ch.Role)
		}
		totals, ok := b.ByRole[role]
		if !ok {
			totals = make(domain.CurrencyTotals)
			b.ByRole[role] = totals
		}
		totals.Add(ch.Currency, ch.Amount)
	}
	return b
}
