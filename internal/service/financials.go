package service

import (
	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// moneyPlaces is the rounding precision of every monetary figure.
const moneyPlaces = 2

// CalculateFinancials derives buy price and margin from a price and a
// margin-over-sell percentage.
//
// When isBuyPriceKnown is false, price is the sell price and
// buy = sell * (1 - marginPercent/100). When it is true, price is the cost and
// the sell price is derived so that the margin over sell equals marginPercent;
// a marginPercent of 100 or more cannot be honoured and yields a zero margin.
func CalculateFinancials(price, marginPercent decimal.Decimal, isBuyPriceKnown bool) domain.Financials {
	var sell, buy decimal.Decimal
	ratio := one.Sub(marginPercent.Div(hundred))

	if isBuyPriceKnown {
		buy = price.Round(moneyPlaces)
		if ratio.LessThanOrEqual(decimal.Zero) {
			sell = buy
			marginPercent = decimal.Zero
		} else {
			sell = price.Div(ratio).Round(moneyPlaces)
		}
	} else {
		sell = price.Round(moneyPlaces)
		buy = price.Mul(ratio).Round(moneyPlaces)
	}

	margin := sell.Sub(buy)
	return domain.Financials{
		SellPrice:     sell,
		BuyPrice:      buy,
		MarginAmount:  margin,
		MarginPercent: marginPercent,
		MarkupPercent: MarkupPercent(margin, buy),
	}
}

// MarkupPercent returns margin over cost, rounded to two decimals.
// A zero or negative buy price reports zero.
func MarkupPercent(marginAmount, buyPrice decimal.Decimal) decimal.Decimal {
	if buyPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return marginAmount.Div(buyPrice).Mul(hundred).Round(2)
}

// ApplyFinancials sets the margin economics of opt from its sell price.
func ApplyFinancials(opt *domain.RateOption, marginPercent decimal.Decimal) {
	f := CalculateFinancials(opt.Price, marginPercent, false)
	opt.BuyPrice = f.BuyPrice
	opt.MarginAmount = f.MarginAmount
	opt.MarkupPercent = f.MarkupPercent
}
