// Package score computes the ranking score of a deal.
package score

import (
	"time"

	"github.com/shopspring/decimal"

	"winedeals/internal/model"
)

const (
	freshBonus  = 50
	recentBonus = 25
	day         = 24 * time.Hour
)

var discountWeight = decimal.NewFromInt(1000)

// Compute returns the score of a deal as of now: the discount fraction scaled
// by 1000 plus a freshness bonus of 50 within one day of scraping or 25
// within three days, rounded to the nearest integer.
func Compute(d *model.DealRecord, now time.Time) int64 {
	total := decimal.Zero

	if d.DiscountedPrice.Valid && d.OriginalPrice.IsPositive() {
		fraction := d.OriginalPrice.Sub(d.DiscountedPrice.Decimal).Div(d.OriginalPrice)
		total = total.Add(fraction.Mul(discountWeight))
	}

	age := now.Sub(d.ScrapedAt)
	switch {
	case age <= day:
		total = total.Add(decimal.NewFromInt(freshBonus))
	case age <= 3*day:
		total = total.Add(decimal.NewFromInt(recentBonus))
	}

	return total.Round(0).IntPart()
}
