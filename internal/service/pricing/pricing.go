// Package pricing computes the money fields of a booking. Service prices
// are tax inclusive: the tax amount is the portion of the total that is
// tax, never a surcharge.
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Rates struct {
	Platform decimal.Decimal
	Salon    decimal.Decimal
	Tax      decimal.Decimal
}

// DefaultRates: 10% platform, 40% salon, 13% IVA
func DefaultRates() Rates {
	return Rates{
		Platform: decimal.RequireFromString("0.10"),
		Salon:    decimal.RequireFromString("0.40"),
		Tax:      decimal.RequireFromString("0.13"),
	}
}

type Quote struct {
	ServicePrice decimal.Decimal `json:"service_price"`
	Discount     decimal.Decimal `json:"discount"`
	// Total is the reservation price after discount
	Total decimal.Decimal `json:"total"`
	Tip   decimal.Decimal `json:"tip"`
	// Charge is what the card is charged: Total plus Tip
	Charge   decimal.Decimal `json:"charge"`
	Tax      decimal.Decimal `json:"tax"`
	Platform decimal.Decimal `json:"platform"`
	Salon    decimal.Decimal `json:"salon"`
	Stylist  decimal.Decimal `json:"stylist"`
}

// Calculate splits a booking. Platform and salon shares are rounded to
// cents from Total, the stylist gets the remainder plus the whole tip, so
// Platform + Salon + Stylist == Charge exactly. Without a stylist the salon
// keeps the stylist share.
func Calculate(rates Rates, price, discount, tip decimal.Decimal, hasStylist bool) Quote {
	price = price.Round(2)
	discount = decimal.Min(decimal.Max(discount, decimal.Zero), price).Round(2)
	tip = decimal.Max(tip, decimal.Zero).Round(2)

	total := price.Sub(discount)
	charge := total.Add(tip)

	q := Quote{
		ServicePrice: price,
		Discount:     discount,
		Total:        total,
		Tip:          tip,
		Charge:       charge,
		Tax:          TaxPortion(charge, rates.Tax),
		Platform:     total.Mul(rates.Platform).Round(2),
		Salon:        total.Mul(rates.Salon).Round(2),
	}
	q.Stylist = charge.Sub(q.Platform).Sub(q.Salon)

	if !hasStylist {
		q.Salon = q.Salon.Add(q.Stylist)
		q.Stylist = decimal.Zero
	}
	return q
}

// TaxPortion returns the tax contained in a tax inclusive amount
func TaxPortion(amount, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(rate).Div(decimal.NewFromInt(1).Add(rate)).Round(2)
}

// Cents converts an amount to the smallest currency unit
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents is the inverse of Cents
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
