package service

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// optionNamespace seeds the deterministic ids of options that arrive without one.
var optionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("freight-quote-bfa/rate-option"))

var firstInteger = regexp.MustCompile(`\d+`)

// payloadFields lists, per source, the keys checked for each concept in order
// of preference.
type payloadFields struct {
	id                 []string
	carrier            []string
	price              []string
	currency           []string
	transit            []string
	transitDays        []string
	tier               []string
	attribution        []string
	reliability        []string
	co2                []string
	charges            []string
	defaultAttribution string
}

var fieldsByKind = map[domain.SourceKind]payloadFields{
	domain.SourceLegacy: {
		id:                 []string{"quote_id", "rate_id", "id"},
		carrier:            []string{"carrier_name", "carrier", "carrierName"},
		price:              []string{"total_amount", "totalAmount", "price", "total", "amount"},
		currency:           []string{"currency", "currency_code"},
		transit:            []string{"transit_time", "transitTime"},
		transitDays:        []string{"transit_days", "transitDays"},
		tier:               []string{"service_level", "tier"},
		attribution:        []string{"source_attribution", "source"},
		reliability:        []string{"reliability", "reliability_score"},
		co2:                []string{"co2_kg", "co2"},
		charges:            []string{"charges", "global_charges"},
		defaultAttribution: "Legacy Rate Engine",
	},
	domain.SourceAI: {
		id:                 []string{"id", "option_id"},
		carrier:            []string{"carrier", "carrier_name", "carrierName"},
		price:              []string{"price", "total_amount", "totalAmount", "total"},
		currency:           []string{"currency"},
		transit:            []string{"transitTime", "transit_time"},
		transitDays:        []string{"transit_days", "transitDays"},
		tier:               []string{"tier", "category"},
		attribution:        []string{"source_attribution", "source"},
		reliability:        []string{"reliability", "reliability_score"},
		co2:                []string{"co2_kg", "co2Kg", "co2", "emissions_kg"},
		charges:            []string{"charges", "global_charges"},
		defaultAttribution: "AI Rate Advisor",
	},
	domain.SourceSimulated: {
		id:                 []string{"id"},
		carrier:            []string{"carrier"},
		price:              []string{"price", "total_amount"},
		currency:           []string{"currency"},
		transit:            []string{"transitTime", "transit_time"},
		transitDays:        []string{"transit_days"},
		tier:               []string{"tier"},
		attribution:        []string{"source_attribution"},
		reliability:        []string{"reliability"},
		co2:                []string{"co2_kg"},
		charges:            []string{"charges"},
		defaultAttribution: "Simulation",
	},
}

// Normalizer maps raw options from every source onto domain.RateOption.
// It is safe for concurrent use.
type Normalizer struct {
	labels    language.Tag
	sanitizer *bluemonday.Policy
}

// NewNormalizer creates a normalizer whose manual quotation labels use locale.
func NewNormalizer(locale string) *Normalizer {
	return &Normalizer{
		labels:    labelLanguage(locale),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Normalize returns nil when raw cannot be identified (no id, no carrier and
// no price) or its kind is unknown.
func (n *Normalizer) Normalize(raw domain.RawOption) *domain.RateOption {
	f, ok := fieldsByKind[raw.Kind]
	if !ok || raw.Payload == nil {
		return nil
	}
	p := raw.Payload
	clean := func(s string) string { return n.clean(raw.Kind, s) }

	id := clean(stringField(p, f.id...))
	rawCarrier := clean(stringField(p, f.carrier...))
	price, hasPrice := decimalField(p, f.price...)
	if id == "" && rawCarrier == "" && !hasPrice {
		return nil
	}

	attribution := clean(stringField(p, f.attribution...))
	if attribution == "" {
		attribution = f.defaultAttribution
	}

	currency := strings.ToUpper(stringField(p, f.currency...))
	legs := n.legs(raw.Kind, sliceField(p, "legs", "segments"), currency)
	charges := n.charges(raw.Kind, sliceField(p, f.charges...), currency, "")
	if currency == "" {
		currency = firstCurrency(legs, charges)
		fillCurrency(legs, charges, currency)
	}

	opt := &domain.RateOption{
		Carrier:           rawCarrier,
		Tier:              normalizeTier(clean(stringField(p, f.tier...))),
		Currency:          currency,
		Legs:              legs,
		Charges:           charges,
		SourceAttribution: attribution,
		Source:            raw.Kind,
		Reliability:       clampReliability(decimalField(p, f.reliability...)),
		CO2Kg:             decimalPtr(decimalField(p, f.co2...)),
	}

	if isManualCarrier(rawCarrier, attribution) {
		opt.Manual = true
		opt.Carrier = manualLabel(n.labels, rawCarrier)
	}

	opt.TransitTime, opt.TransitDays = transit(clean(stringField(p, f.transit...)), p, f.transitDays)

	// Leg and global charges must add up to the stated total; if they don't,
	// the stated total is kept as is.
	sum := domain.CurrencyTotals{}
	if flat := FlattenLegCharges(legs, charges); len(flat) > 0 {
		breakdown := SummarizeCharges(ClassifyCharges(flat, legs))
		opt.Breakdown = &breakdown
		sum = breakdown.GrandTotal
	}
	switch {
	case hasPrice:
		opt.Price = price
		opt.ChargesReconciled = len(sum) == 0 || sum.Equal(domain.CurrencyTotals{currency: price})
	case len(sum) == 1 && sum[currency].IsPositive():
		opt.Price = sum[currency]
		opt.ChargesReconciled = true
	default:
		opt.Price = decimal.Zero
	}
	opt.TotalAmount = opt.Price

	opt.ID = id
	if opt.ID == "" {
		key := fmt.Sprintf("%s|%s|%s", opt.Carrier, opt.Price.String(), raw.Kind)
		opt.ID = uuid.NewSHA1(optionNamespace, []byte(key)).String()
	}
	return opt
}

func (n *Normalizer) clean(kind domain.SourceKind, s string) string {
	if kind != domain.SourceAI || s == "" {
		return s
	}
	return strings.TrimSpace(html.UnescapeString(n.sanitizer.Sanitize(s)))
}

// legs accepts both from/to and origin/destination and fills both on output.
func (n *Normalizer) legs(kind domain.SourceKind, items []map[string]any, currency string) []domain.TransportLeg {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.TransportLeg, 0, len(items))
	for i, it := range items {
		leg := domain.TransportLeg{
			ID:          n.clean(kind, stringField(it, "id", "leg_id")),
			Mode:        strings.ToLower(n.clean(kind, stringField(it, "mode", "transport_mode"))),
			Origin:      n.clean(kind, stringField(it, "origin", "from")),
			Destination: n.clean(kind, stringField(it, "destination", "to")),
			LegType:     strings.ToLower(n.clean(kind, stringField(it, "leg_type", "legType", "role", "type"))),
		}
		if leg.ID == "" {
			leg.ID = "leg-" + strconv.Itoa(i+1)
		}
		leg.From, leg.To = leg.Origin, leg.Destination
		if seq, ok := intField(it, "sequence", "seq", "order"); ok {
			leg.Sequence = seq
		} else {
			leg.Sequence = i + 1
		}
		leg.Charges = n.charges(kind, sliceField(it, "charges"), currency, leg.ID)
		out = append(out, leg)
	}
	return domain.SortLegs(out)
}

func (n *Normalizer) charges(kind domain.SourceKind, items []map[string]any, currency, legID string) []domain.Charge {
	if len(items) == 0 {
		return nil
	}
	prefix := "chg"
	if legID != "" {
		prefix = legID + "-chg"
	}
	out := make([]domain.Charge, 0, len(items))
	for i, it := range items {
		amount, _ := decimalField(it, "amount", "total", "value")
		ch := domain.Charge{
			ID:            n.clean(kind, stringField(it, "id", "charge_id")),
			Name:          n.clean(kind, stringField(it, "name", "charge_name", "description")),
			Description:   n.clean(kind, stringField(it, "description")),
			Category:      n.clean(kind, stringField(it, "category", "charge_code")),
			Amount:        amount,
			Currency:      strings.ToUpper(stringField(it, "currency")),
			LegID:         stringField(it, "leg_id", "legId"),
			Rate:          decimalPtr(decimalField(it, "rate")),
			Quantity:      decimalPtr(decimalField(it, "quantity", "qty")),
			Basis:         stringField(it, "basis"),
			RateReference: stringField(it, "rate_reference", "rateReference"),
		}
		if ch.ID == "" {
			ch.ID = prefix + "-" + strconv.Itoa(i+1)
		}
		if ch.Currency == "" {
			ch.Currency = currency
		}
		if ch.LegID == "" {
			ch.LegID = legID
		}
		out = append(out, ch)
	}
	return out
}

func firstCurrency(legs []domain.TransportLeg, charges []domain.Charge) string {
	for _, ch := range FlattenLegCharges(legs, charges) {
		if ch.Currency != "" {
			return ch.Currency
		}
	}
	return "USD"
}

func fillCurrency(legs []domain.TransportLeg, charges []domain.Charge, currency string) {
	for i := range legs {
		for j := range legs[i].Charges {
			if legs[i].Charges[j].Currency == "" {
				legs[i].Charges[j].Currency = currency
			}
		}
	}
	for i := range charges {
		if charges[i].Currency == "" {
			charges[i].Currency = currency
		}
	}
}

func transit(text string, p map[string]any, daysKeys []string) (string, *int) {
	if text != "" {
		return text, ParseTransitDays(text)
	}
	if days, ok := intField(p, daysKeys...); ok {
		return fmt.Sprintf("%d days", days), &days
	}
	return "", nil
}

// ParseTransitDays extracts the first integer of a transit-time string.
func ParseTransitDays(s string) *int {
	m := firstInteger.FindString(s)
	if m == "" {
		return nil
	}
	d, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &d
}

func normalizeTier(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(t)
}

func clampReliability(d decimal.Decimal, ok bool) *decimal.Decimal {
	if !ok {
		return nil
	}
	ten := decimal.NewFromInt(10)
	switch {
	case d.LessThan(decimal.Zero):
		d = decimal.Zero
	case d.GreaterThan(ten):
		d = ten
	}
	return &d
}
