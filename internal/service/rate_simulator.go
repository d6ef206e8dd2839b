package service

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

var simulatedCarriers = map[string][]string{
	"ocean": {"Maersk", "MSC", "CMA CGM", "Hapag-Lloyd", "ONE", "Evergreen"},
	"air":   {"Lufthansa Cargo", "Emirates SkyCargo", "Qatar Airways Cargo", "Cathay Cargo"},
	"road":  {"DHL Freight", "DB Schenker", "Kuehne+Nagel Road", "DSV Road"},
	"rail":  {"DB Cargo", "China Railway Express", "RZD Logistics"},
}

var simulatedBase = map[string]struct {
	price   int64
	transit int
	co2     int64
}{
	"ocean": {price: 1800, transit: 28, co2: 900},
	"air":   {price: 4200, transit: 3, co2: 5200},
	"road":  {price: 900, transit: 5, co2: 1400},
	"rail":  {price: 2400, transit: 18, co2: 600},
}

// RateSimulator generates plausible local options when upstream engines are
// unavailable. Output depends only on the request, so repeated runs match.
type RateSimulator struct {
	options int
}

// NewRateSimulator creates a simulator producing options per call (minimum 1).
func NewRateSimulator(options int) *RateSimulator {
	if options < 1 {
		options = 1
	}
	return &RateSimulator{options: options}
}

// Simulate returns simulator payloads for one route and combination. It always
// returns at least one option, whatever the input.
func (s *RateSimulator) Simulate(route domain.LegacyRateRequest) []map[string]any {
	mode := strings.ToLower(route.Mode)
	carriers, ok := simulatedCarriers[mode]
	if !ok {
		mode = "ocean"
		carriers = simulatedCarriers[mode]
	}
	base := simulatedBase[mode]

	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d", route.Origin, route.Destination, mode, route.ContainerType, route.CargoType, route.Quantity)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	qty := route.Quantity
	if qty < 1 {
		qty = 1
	}
	factor := containerFactor(route.ContainerType, route.CargoType)
	offset := rng.Intn(len(carriers))

	type draft struct {
		carrier string
		price   decimal.Decimal
		days    int
		co2     decimal.Decimal
	}
	drafts := make([]draft, 0, s.options)
	for i := 0; i < s.options; i++ {
		jitter := decimal.NewFromFloat(0.85 + rng.Float64()*0.35).Round(4)
		price := decimal.NewFromInt(base.price).Mul(factor).Mul(jitter).Mul(decimal.NewFromInt(int64(qty))).Round(0)
		days := base.transit + rng.Intn(base.transit/3+2)
		co2 := decimal.NewFromInt(base.co2).Mul(decimal.NewFromInt(int64(qty))).Mul(decimal.NewFromFloat(0.8 + rng.Float64()*0.4)).Round(0)
		drafts = append(drafts, draft{
			carrier: carriers[(offset+i)%len(carriers)],
			price:   price,
			days:    days,
			co2:     co2,
		})
	}

	cheapest, fastest := 0, 0
	for i, d := range drafts {
		if d.price.LessThan(drafts[cheapest].price) {
			cheapest = i
		}
		if d.days < drafts[fastest].days {
			fastest = i
		}
	}

	out := make([]map[string]any, 0, len(drafts))
	for i, d := range drafts {
		tier := domain.TierSpot
		switch {
		case i == cheapest:
			tier = domain.TierCheapest
		case i == fastest:
			tier = domain.TierFastest
		case i == len(drafts)-1:
			tier = domain.TierBestValue
		}
		out = append(out, map[string]any{
			"carrier":            d.carrier,
			"price":              d.price.String(),
			"currency":           "USD",
			"transitTime":        fmt.Sprintf("%d days", d.days),
			"tier":               tier,
			"reliability":        decimal.NewFromFloat(6 + rng.Float64()*3.5).Round(1).String(),
			"co2_kg":             d.co2.String(),
			"source_attribution": "Simulation",
			"legs":               simulatedLegs(route, mode, d.price),
		})
	}
	return out
}

// simulatedLegs splits price across pickup, main and delivery legs so the
// leg charges add up to it exactly.
func simulatedLegs(route domain.LegacyRateRequest, mode string, price decimal.Decimal) []any {
	pickup := price.Mul(decimal.NewFromFloat(0.12)).Round(0)
	delivery := price.Mul(decimal.NewFromFloat(0.10)).Round(0)
	main := price.Sub(pickup).Sub(delivery)

	origin, destination := route.Origin, route.Destination
	charge := func(id, name, category string, amount decimal.Decimal) map[string]any {
		return map[string]any{"id": id, "name": name, "category": category, "amount": amount.String(), "currency": "USD"}
	}
	return []any{
		map[string]any{
			"id": "leg-1", "sequence": 1, "mode": "road", "leg_type": domain.RolePickup,
			"from": origin + " (door)", "to": origin,
			"charges": []any{charge("leg-1-pickup", "Pickup Trucking", "Origin Pickup", pickup)},
		},
		map[string]any{
			"id": "leg-2", "sequence": 2, "mode": mode, "leg_type": domain.RoleMain,
			"from": origin, "to": destination,
			"charges": []any{charge("leg-2-freight", "Main Freight", "Freight", main)},
		},
		map[string]any{
			"id": "leg-3", "sequence": 3, "mode": "road", "leg_type": domain.RoleDelivery,
			"from": destination, "to": destination + " (door)",
			"charges": []any{charge("leg-3-delivery", "Final Delivery", "Destination Delivery", delivery)},
		},
	}
}

func containerFactor(containerType, cargoType string) decimal.Decimal {
	ct := strings.ToUpper(containerType)
	f := decimal.NewFromInt(1)
	switch {
	case strings.HasPrefix(ct, "45"):
		f = decimal.NewFromFloat(1.8)
	case strings.HasPrefix(ct, "40"):
		f = decimal.NewFromFloat(1.6)
	}
	if strings.Contains(ct, "RF") || strings.Contains(ct, "REEFER") || strings.EqualFold(cargoType, "reefer") {
		f = f.Mul(decimal.NewFromFloat(1.4))
	}
	if strings.EqualFold(cargoType, "hazardous") || strings.EqualFold(cargoType, "dg") {
		f = f.Mul(decimal.NewFromFloat(1.25))
	}
	return f
}
