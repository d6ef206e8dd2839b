package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ============================================================
// Charges & Legs
// ============================================================

// Leg roles as they appear on legs and charges.
const (
	RolePickup      = "pickup"
	RoleOrigin      = "origin"
	RoleMain        = "main"
	RoleDestination = "destination"
	RoleDelivery    = "delivery"
	RoleTransport   = "transport"
	RoleService     = "service"
)

// ModeNotApplicable is the assigned mode of charges with no leg.
const ModeNotApplicable = "N/A"

// Charge is a single monetary line item. Charges are treated as immutable.
type Charge struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Category      string           `json:"category,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	LegID         string           `json:"leg_id,omitempty"`
	Rate          *decimal.Decimal `json:"rate,omitempty"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Basis         string           `json:"basis,omitempty"` // flat, per_unit
	RateReference string           `json:"rate_reference,omitempty"`
}

// TransportLeg is one movement segment of a shipment.
type TransportLeg struct {
	ID          string   `json:"id"`
	Mode        string   `json:"mode"` // ocean, air, road, rail
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	From        string   `json:"from,omitempty"`
	To          string   `json:"to,omitempty"`
	Sequence    int      `json:"sequence"`
	LegType     string   `json:"leg_type,omitempty"`
	Charges     []Charge `json:"charges,omitempty"`
}

// SortLegs returns a copy of legs ordered by sequence. Equal sequences keep input order.
func SortLegs(legs []TransportLeg) []TransportLeg {
	out := make([]TransportLeg, len(legs))
	copy(out, legs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// RouteEndpoints returns the origin of the first leg and the destination of the last.
func RouteEndpoints(legs []TransportLeg) (origin, destination string) {
	if len(legs) == 0 {
		return "", ""
	}
	sorted := SortLegs(legs)
	return sorted[0].Origin, sorted[len(sorted)-1].Destination
}

// BifurcatedCharge is a Charge attributed to a leg (or left global).
//
// AssignedLegType only ever holds RoleTransport or RoleService. The granular
// role lives in Role and DisplayRole.
type BifurcatedCharge struct {
	Charge
	AssignedLegID   *string `json:"assignedLegId"`
	AssignedLegType string  `json:"assignedLegType"`
	AssignedMode    string  `json:"assignedMode"`
	Role            string  `json:"role,omitempty"`
	DisplayRole     string  `json:"displayRole,omitempty"`
	IsBifurcated    bool    `json:"isBifurcated"`
	Mismatched      bool    `json:"mismatched,omitempty"`
}

// IsGlobal reports whether the charge was left without a leg.
func (b BifurcatedCharge) IsGlobal() bool {
	return b.AssignedLegID == nil && !b.Mismatched
}

// ============================================================
// Currency totals
// ============================================================

// CurrencyTotals accumulates amounts per ISO currency code.
type CurrencyTotals map[string]decimal.Decimal

// Add accumulates amount under currency.
func (t CurrencyTotals) Add(currency string, amount decimal.Decimal) {
	t[currency] = t[currency].Add(amount)
}

// Merge adds every bucket of other into t.
func (t CurrencyTotals) Merge(other CurrencyTotals) {
	for cur, amt := range other {
		t.Add(cur, amt)
	}
}

// Equal reports whether both maps hold the same amount per currency.
// Missing buckets count as zero.
func (t CurrencyTotals) Equal(other CurrencyTotals) bool {
	for cur, amt := range t {
		if !amt.Equal(other[cur]) {
			return false
		}
	}
	for cur, amt := range other {
		if !amt.Equal(t[cur]) {
			return false
		}
	}
	return true
}

// Currencies returns the currency codes in t, sorted.
func (t CurrencyTotals) Currencies() []string {
	out := make([]string, 0, len(t))
	for cur := range t {
		out = append(out, cur)
	}
	sort.Strings(out)
	return out
}

// ChargeBreakdown groups classified charges per aggregation scope.
type ChargeBreakdown struct {
	ByLeg      map[string]CurrencyTotals `json:"byLeg"`
	ByRole     map[string]CurrencyTotals `json:"byRole"`
	Global     CurrencyTotals            `json:"global"`
	Unassigned CurrencyTotals            `json:"unassigned"`
	GrandTotal CurrencyTotals            `json:"grandTotal"`

	// UnassignedCharges lists the charges pointing at unknown legs so they can
	// be rendered apart and corrected upstream.
	UnassignedCharges []BifurcatedCharge `json:"unassignedCharges,omitempty"`
}
