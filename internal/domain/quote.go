package domain

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Rate options
// ============================================================

// SourceKind tags which engine produced a raw option.
type SourceKind string

const (
	SourceLegacy    SourceKind = "legacy"
	SourceAI        SourceKind = "ai"
	SourceSimulated SourceKind = "simulated"
)

// Tiers used for ranking and badges.
const (
	TierContract  = "contract"
	TierSpot      = "spot"
	TierBestValue = "best_value"
	TierCheapest  = "cheapest"
	TierFastest   = "fastest"
	TierGreenest  = "greenest"
	TierReliable  = "reliable"
)

// RawOption is an upstream rate option before normalization.
type RawOption struct {
	Kind    SourceKind     `json:"kind"`
	Payload map[string]any `json:"payload"`
}

// RateOption is the canonical quote candidate.
type RateOption struct {
	ID                string           `json:"id"`
	Carrier           string           `json:"carrier"`
	CarrierID         string           `json:"carrierId,omitempty"`
	CarrierSCAC       string           `json:"carrierScac,omitempty"`
	Tier              string           `json:"tier,omitempty"`
	Price             decimal.Decimal  `json:"price"`
	TotalAmount       decimal.Decimal  `json:"total_amount"`
	Currency          string           `json:"currency"`
	TransitTime       string           `json:"transitTime,omitempty"`
	TransitDays       *int             `json:"transitDays,omitempty"`
	Legs              []TransportLeg   `json:"legs,omitempty"`
	Charges           []Charge         `json:"charges,omitempty"`
	Breakdown         *ChargeBreakdown `json:"breakdown,omitempty"`
	SourceAttribution string           `json:"source_attribution"`
	Source            SourceKind       `json:"source"`
	Reliability       *decimal.Decimal `json:"reliability,omitempty"`
	CO2Kg             *decimal.Decimal `json:"co2_kg,omitempty"`
	ChargesReconciled bool             `json:"chargesReconciled"`
	Manual            bool             `json:"manual,omitempty"`
	Combination       string           `json:"combination,omitempty"`

	BuyPrice      decimal.Decimal `json:"buyPrice"`
	MarginAmount  decimal.Decimal `json:"marginAmount"`
	MarkupPercent decimal.Decimal `json:"markupPercent"`
}

// Financials is the output of the margin calculator.
//
// MarginPercent is margin over sell price (an input policy). MarkupPercent is
// margin over buy price (a derived figure). They are different numbers.
type Financials struct {
	SellPrice     decimal.Decimal `json:"sellPrice"`
	BuyPrice      decimal.Decimal `json:"buyPrice"`
	MarginAmount  decimal.Decimal `json:"marginAmount"`
	MarginPercent decimal.Decimal `json:"marginPercent"`
	MarkupPercent decimal.Decimal `json:"markupPercent"`
}

// ============================================================
// Aggregation
// ============================================================

// Combination is one container/cargo combination requested by the user.
type Combination struct {
	ContainerType string `json:"container_type,omitempty"`
	CargoType     string `json:"cargo_type,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
}

// Key identifies the combination in logs, metrics and results. Quantities
// above one are part of the key ("2x40HC/general").
func (c Combination) Key() string {
	ct := c.ContainerType
	if ct == "" {
		ct = "any"
	}
	cargo := c.CargoType
	if cargo == "" {
		cargo = "general"
	}
	if c.Quantity > 1 {
		ct = strconv.Itoa(c.Quantity) + "x" + ct
	}
	return ct + "/" + cargo
}

// FetchFunc calls one upstream rate source.
type FetchFunc func(ctx context.Context) ([]map[string]any, error)

// SimulateFunc generates local options for a combination. It must not fail.
type SimulateFunc func(c Combination) []map[string]any

// ComplianceFunc runs the compliance screening that accompanies a quote.
type ComplianceFunc func(ctx context.Context) (*ComplianceResult, error)

// LegacySource is one legacy engine call for a single combination.
type LegacySource struct {
	Combination Combination
	Fetch       FetchFunc
}

// RateSources is the input of one aggregation run.
type RateSources struct {
	Legacy        []LegacySource
	AI            FetchFunc
	Compliance    ComplianceFunc
	Simulate      SimulateFunc
	MarginPercent decimal.Decimal
}

// Compliance states.
const (
	ComplianceClear   = "clear"
	ComplianceFlagged = "flagged"
	ComplianceError   = "error"
	CompliancePending = "pending"
	ComplianceSkipped = "skipped"
)

// ComplianceResult is the outcome of the compliance screening.
type ComplianceResult struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

// SourceReport records how one source behaved in a run.
type SourceReport struct {
	Source      SourceKind `json:"source"`
	Combination string     `json:"combination,omitempty"`
	Options     int        `json:"options"`
	FellBack    bool       `json:"fellBack,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// AggregationResult is the final, ranked option list of one run.
type AggregationResult struct {
	Options    []RateOption      `json:"options"`
	Exhausted  bool              `json:"exhausted"`
	Warning    string            `json:"warning,omitempty"`
	Diagnostic string            `json:"diagnostic,omitempty"`
	Rejected   int               `json:"rejected"`
	Sources    []SourceReport    `json:"sources"`
	Compliance *ComplianceResult `json:"compliance,omitempty"`
}

// ============================================================
// API contracts
// ============================================================

// ContainerRequirement is one container line of a rate request.
type ContainerRequirement struct {
	Type     string `json:"type" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

// RateRequest is the body of POST /v1/quotes/rates.
type RateRequest struct {
	Origin         string                 `json:"origin" validate:"required"`
	Destination    string                 `json:"destination" validate:"required"`
	Mode           string                 `json:"mode" validate:"required,oneof=ocean air road rail"`
	CargoType      string                 `json:"cargo_type,omitempty"`
	Commodity      string                 `json:"commodity,omitempty"`
	WeightKg       float64                `json:"weight_kg,omitempty" validate:"gte=0"`
	VolumeCbm      float64                `json:"volume_cbm,omitempty" validate:"gte=0"`
	Containers     []ContainerRequirement `json:"containers,omitempty" validate:"dive"`
	MarginPercent  *decimal.Decimal       `json:"margin_percent,omitempty"`
	IncludeAI      bool                   `json:"include_ai"`
	SkipCompliance bool                   `json:"skip_compliance,omitempty"`

	// PreferredTenant picks the tenant's own carrier records over shared ones
	// when options are matched to the carrier directory.
	PreferredTenant string `json:"preferred_tenant,omitempty"`
}

// Combinations expands the request into one combination per container type.
// Repeated lines of the same type are merged and their quantities summed.
func (r RateRequest) Combinations() []Combination {
	if len(r.Containers) == 0 {
		return []Combination{{CargoType: r.CargoType, Quantity: 1}}
	}
	out := make([]Combination, 0, len(r.Containers))
	index := make(map[string]int, len(r.Containers))
	for _, c := range r.Containers {
		ct := strings.ToUpper(strings.TrimSpace(c.Type))
		if i, ok := index[ct]; ok {
			out[i].Quantity += c.Quantity
			continue
		}
		index[ct] = len(out)
		out = append(out, Combination{ContainerType: ct, CargoType: r.CargoType, Quantity: c.Quantity})
	}
	return out
}

// RateQuoteResult is the response of POST /v1/quotes/rates.
type RateQuoteResult struct {
	RunID       string            `json:"runId"`
	Origin      string            `json:"origin"`
	Destination string            `json:"destination"`
	Mode        string            `json:"mode"`
	Tenant      string            `json:"tenant,omitempty"`
	Options     []RateOption      `json:"options"`
	Exhausted   bool              `json:"exhausted"`
	Warning     string            `json:"warning,omitempty"`
	Diagnostic  string            `json:"diagnostic,omitempty"`
	Sources     []SourceReport    `json:"sources"`
	Compliance  *ComplianceResult `json:"compliance,omitempty"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// QuoteRun is the persisted summary of one aggregation run.
type QuoteRun struct {
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

// AIRateRequest is the payload sent to the AI rate advisor.
type AIRateRequest struct {
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`
	Mode        string        `json:"mode"`
	Commodity   string        `json:"commodity,omitempty"`
	WeightKg    float64       `json:"weight_kg,omitempty"`
	VolumeCbm   float64       `json:"volume_cbm,omitempty"`
	Containers  []Combination `json:"containers,omitempty"`
}

// LegacyRateRequest is the payload sent to the legacy rate engine for one combination.
type LegacyRateRequest struct {
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
	Mode          string  `json:"mode"`
	ContainerType string  `json:"container_type,omitempty"`
	CargoType     string  `json:"cargo_type,omitempty"`
	Quantity      int     `json:"quantity,omitempty"`
	WeightKg      float64 `json:"weight_kg,omitempty"`
	VolumeCbm     float64 `json:"volume_cbm,omitempty"`
}

// ComplianceRequest is the payload sent to the compliance screening service.
type ComplianceRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Commodity   string `json:"commodity,omitempty"`
}

// ClassifyRequest is the body of POST /v1/charges/classify.
type ClassifyRequest struct {
	Charges []Charge       `json:"charges"`
	Legs    []TransportLeg `json:"legs"`
}

// ClassifyResponse is returned by POST /v1/charges/classify.
type ClassifyResponse struct {
	Charges   []BifurcatedCharge `json:"charges"`
	Breakdown ChargeBreakdown    `json:"breakdown"`
}

// FinancialsRequest is the body of POST /v1/quotes/financials.
type FinancialsRequest struct {
	Price           decimal.Decimal `json:"price"`
	MarginPercent   decimal.Decimal `json:"margin_percent"`
	IsBuyPriceKnown bool            `json:"is_buy_price_known"`
}
