package service

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	manualLabelNumbered = "Manual Quotation %s"
	manualLabelPlain    = "Manual Quotation"
)

func init() {
	for tag, pair := range map[language.Tag][2]string{
		language.English:             {"Manual Quotation %s", "Manual Quotation"},
		language.BrazilianPortuguese: {"Cotação Manual %s", "Cotação Manual"},
		language.Spanish:             {"Cotización Manual %s", "Cotización Manual"},
	} {
		_ = message.SetString(tag, manualLabelNumbered, pair[0])
		_ = message.SetString(tag, manualLabelPlain, pair[1])
	}
}

var labelLanguages = []language.Tag{language.English, language.BrazilianPortuguese, language.Spanish}

var labelMatcher = language.NewMatcher(labelLanguages)

var trailingNumber = regexp.MustCompile(`(\d+)\s*$`)

// isManualCarrier reports whether the option was entered by hand: tagged as
// manual by its source, prefixed "manual", or carrying no carrier at all.
func isManualCarrier(carrier, attribution string) bool {
	c := strings.ToLower(strings.TrimSpace(carrier))
	if c == "" || strings.HasPrefix(c, "manual") {
		return true
	}
	return strings.Contains(strings.ToLower(attribution), "manual")
}

// manualLabel builds the localized label, keeping the trailing number of the
// original carrier string so several manual entries stay distinct.
func manualLabel(tag language.Tag, carrier string) string {
	p := message.NewPrinter(tag)
	// The number is passed as text so it is kept as written, without
	// locale digit grouping.
	if m := trailingNumber.FindStringSubmatch(carrier); m != nil {
		return p.Sprintf(manualLabelNumbered, m[1])
	}
	return p.Sprintf(manualLabelPlain)
}

// labelLanguage picks the supported label language closest to locale.
func labelLanguage(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, idx, _ := labelMatcher.Match(tag)
	return labelLanguages[idx]
}
