package service

import (
	"strings"
	"unicode"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
)

// RoleRule maps a keyword family found in a charge's category or name to a leg role.
type RoleRule struct {
	// Name identifies the rule in tests and logs.
	Name string

	// Role is the granular role assigned when the rule matches.
	Role string

	// Keywords match as a prefix of any word of the lower-cased text,
	// so "air" matches "AirFreight" but not "Repair".
	Keywords []string

	// LegTypes are the leg_type values a matching charge may be attributed to.
	LegTypes []string

	// Modes lets a matching charge attach to a leg without leg_type when the
	// charge names that leg's mode ("AirFreight" on an untyped air leg).
	Modes []string
}

func (r RoleRule) matches(words []string) bool {
	for _, w := range words {
		for _, kw := range r.Keywords {
			if strings.HasPrefix(w, kw) {
				return true
			}
		}
	}
	return false
}

func (r RoleRule) accepts(legType string) bool {
	legType = strings.ToLower(strings.TrimSpace(legType))
	for _, lt := range r.LegTypes {
		if lt == legType {
			return true
		}
	}
	return false
}

// untypedLegByMode returns the first leg without leg_type whose mode is one of
// the rule's modes and is named in the charge text.
func (r RoleRule) untypedLegByMode(words []string, legs []domain.TransportLeg) (domain.TransportLeg, bool) {
	for _, leg := range legs {
		if strings.TrimSpace(leg.LegType) != "" {
			continue
		}
		mode := strings.ToLower(strings.TrimSpace(leg.Mode))
		if mode == "" {
			continue
		}
		known := false
		for _, m := range r.Modes {
			if m == mode {
				known = true
				break
			}
		}
		if !known {
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, mode) {
				return leg, true
			}
		}
	}
	return domain.TransportLeg{}, false
}

// DefaultRoleRules is the shared rule table. Earlier rules win.
func DefaultRoleRules() []RoleRule {
	return []RoleRule{
		{Name: "pickup", Role: domain.RolePickup, Keywords: []string{"pickup", "collection"}, LegTypes: []string{domain.RolePickup}},
		{Name: "origin", Role: domain.RoleOrigin, Keywords: []string{"origin"}, LegTypes: []string{domain.RoleOrigin}},
		{Name: "delivery", Role: domain.RoleDelivery, Keywords: []string{"delivery", "deliver"}, LegTypes: []string{domain.RoleDelivery}},
		{Name: "destination", Role: domain.RoleDestination, Keywords: []string{"destination"}, LegTypes: []string{domain.RoleDestination}},
		{Name: "main", Role: domain.RoleMain, Keywords: []string{"freight", "main", "ocean", "air", "linehaul"}, LegTypes: []string{domain.RoleMain, domain.RoleTransport},
			Modes: []string{"ocean", "air", "rail", "road"}},
	}
}

// StrictLegType collapses any role into the two values accepted by the
// persisted schema: "transport" or "service".
func StrictLegType(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), domain.RoleService) {
		return domain.RoleService
	}
	return domain.RoleTransport
}

// DisplayRole returns the label shown next to a charge.
func DisplayRole(role string) string {
	if role == "" {
		return "GLOBAL"
	}
	return strings.ToUpper(role)
}

// ChargeClassifier assigns charges to legs and roles.
type ChargeClassifier struct {
	rules []RoleRule
}

// NewChargeClassifier creates a classifier with the default rule table.
func NewChargeClassifier() *ChargeClassifier {
	return &ChargeClassifier{rules: DefaultRoleRules()}
}

// NewChargeClassifierWithRules creates a classifier with a custom rule table.
func NewChargeClassifierWithRules(rules []RoleRule) *ChargeClassifier {
	return &ChargeClassifier{rules: rules}
}

var defaultClassifier = NewChargeClassifier()

// ClassifyCharges classifies charges against legs with the default rule table.
func ClassifyCharges(charges []domain.Charge, legs []domain.TransportLeg) []domain.BifurcatedCharge {
	return defaultClassifier.Classify(charges, legs)
}

// Classify returns one BifurcatedCharge per input charge, in input order.
// It never panics: a charge that cannot be classified is left global.
func (c *ChargeClassifier) Classify(charges []domain.Charge, legs []domain.TransportLeg) []domain.BifurcatedCharge {
	sorted := domain.SortLegs(legs)
	byID := make(map[string]domain.TransportLeg, len(sorted))
	for _, leg := range sorted {
		if _, dup := byID[leg.ID]; !dup && leg.ID != "" {
			byID[leg.ID] = leg
		}
	}

	out := make([]domain.BifurcatedCharge, 0, len(charges))
	for _, ch := range charges {
		out = append(out, c.classifyOne(ch, byID, sorted))
	}
	return out
}

// RoleFor returns the first rule matching the charge text.
func (c *ChargeClassifier) RoleFor(ch domain.Charge) (RoleRule, bool) {
	return c.match(chargeWords(ch))
}

func (c *ChargeClassifier) match(words []string) (RoleRule, bool) {
	for _, rule := range c.rules {
		if rule.matches(words) {
			return rule, true
		}
	}
	return RoleRule{}, false
}

func (c *ChargeClassifier) classifyOne(ch domain.Charge, byID map[string]domain.TransportLeg, sorted []domain.TransportLeg) (out domain.BifurcatedCharge) {
	defer func() {
		if r := recover(); r != nil {
			out = globalCharge(ch, "")
		}
	}()

	legID := strings.TrimSpace(ch.LegID)
	if legID != "" {
		leg, ok := byID[legID]
		if !ok {
			// Unknown leg: keep it out of every leg bucket so it can be corrected upstream.
			out = globalCharge(ch, "")
			out.Mismatched = true
			if rule, ok := c.RoleFor(ch); ok {
				out.Role = rule.Role
				out.DisplayRole = DisplayRole(rule.Role)
			}
			return out
		}
		role := strings.ToLower(strings.TrimSpace(leg.LegType))
		if role == "" {
			role = domain.RoleTransport
		}
		return assigned(ch, leg, role, false)
	}

	words := chargeWords(ch)
	rule, ok := c.match(words)
	if !ok {
		out = globalCharge(ch, "")
		out.IsBifurcated = true
		return out
	}
	for _, leg := range sorted {
		if rule.accepts(leg.LegType) {
			return assigned(ch, leg, rule.Role, true)
		}
	}
	if leg, ok := rule.untypedLegByMode(words, sorted); ok {
		return assigned(ch, leg, rule.Role, true)
	}
	out = globalCharge(ch, rule.Role)
	out.IsBifurcated = true
	return out
}

func assigned(ch domain.Charge, leg domain.TransportLeg, role string, inferred bool) domain.BifurcatedCharge {
	id := leg.ID
	mode := leg.Mode
	if mode == "" {
		mode = domain.ModeNotApplicable
	}
	return domain.BifurcatedCharge{
		Charge:          ch,
		AssignedLegID:   &id,
		AssignedLegType: StrictLegType(role),
		AssignedMode:    mode,
		Role:            role,
		DisplayRole:     DisplayRole(role),
		IsBifurcated:    inferred,
	}
}

func globalCharge(ch domain.Charge, role string) domain.BifurcatedCharge {
	return domain.BifurcatedCharge{
		Charge:          ch,
		AssignedLegType: StrictLegType(role),
		AssignedMode:    domain.ModeNotApplicable,
		Role:            role,
		DisplayRole:     DisplayRole(role),
	}
}

func chargeWords(ch domain.Charge) []string {
	text := strings.ToLower(ch.Category + " " + ch.Name + " " + ch.Description)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// FlattenLegCharges returns the charges attached to legs (with leg_id filled
// from the owning leg when missing) followed by the global charges.
func FlattenLegCharges(legs []domain.TransportLeg, global []domain.Charge) []domain.Charge {
	var out []domain.Charge
	for _, leg := range domain.SortLegs(legs) {
		for _, ch := range leg.Charges {
			if ch.LegID == "" {
				ch.LegID = leg.ID
			}
			out = append(out, ch)
		}
	}
	return append(out, global...)
}
