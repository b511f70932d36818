package fetcher

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"winedeals/internal/model"
)

// Static serves a fixed listing per shop name. It backs demo deployments and
// stands in for real retailers in tests.
type Static struct {
	listings map[string][]model.RawTuple
}

// NewStatic creates a Static fetcher over listings keyed by shop name.
func NewStatic(listings map[string][]model.RawTuple) *Static {
	return &Static{listings: listings}
}

// Fetch implements Fetcher. Unknown shops list nothing.
func (s *Static) Fetch(ctx context.Context, shop model.ShopConfig) ([]model.RawTuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(s.listings[shop.Name]), nil
}

var (
	wineLibrary = model.ShopLocation{State: model.StateNJ, City: "Springfield", Address: "586 Morris Ave", Zip: "07081"}
	astorWines  = model.ShopLocation{State: model.StateNY, City: "New York", Address: "399 Lafayette St", Zip: "10003"}
	sherry      = model.ShopLocation{State: model.StateNY, City: "New York", Address: "505 Park Ave", Zip: "10022"}
)

// DefaultShops is the built-in NY/NJ shop catalog. Every shop is served by
// the static fixture until a SHOPS_FILE points it at a live source.
func DefaultShops() []model.ShopConfig {
	return []model.ShopConfig{
		{
			Name:     "Wine Library",
			Website:  "https://winelibrary.com",
			Location: model.ShopLocation{State: model.StateNJ, City: "Springfield"},
			Source:   SourceStatic,
			Selectors: model.ShopSelectors{
				Container:     ".product-item",
				Name:          ".product-name",
				Price:         ".price",
				OriginalPrice: ".old-price",
				Link:          ".product-name a",
			},
		},
		{
			Name:     "Astor Wines & Spirits",
			Website:  "https://astorwines.com",
			Location: model.ShopLocation{State: model.StateNY, City: "New York"},
			Source:   SourceStatic,
			Selectors: model.ShopSelectors{
				Container:     ".product",
				Name:          ".product-title",
				Price:         ".price-current",
				OriginalPrice: ".price-original",
				Link:          ".product-link",
			},
		},
		{
			Name:     "Sherry-Lehmann",
			Website:  "https://sherry-lehmann.com",
			Location: model.ShopLocation{State: model.StateNY, City: "New York"},
			Source:   SourceStatic,
			Selectors: model.ShopSelectors{
				Container:     ".wine-item",
				Name:          ".wine-name",
				Price:         ".wine-price",
				OriginalPrice: ".wine-original-price",
				Link:          ".wine-link",
			},
		},
	}
}

// DemoListings returns the demo deals keyed by shop name.
func DemoListings() map[string][]model.RawTuple {
	pct := func(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromInt(v)) }
	return map[string][]model.RawTuple{
		"Wine Library": {
			{
				Name: "Château Margaux 2015", PriceText: "$750.00", OriginalPriceText: "$850.00",
				DiscountPercentage: pct(12), DealType: model.DealDiscount, Location: &wineLibrary,
				Details: model.WineDetails{Varietal: "Bordeaux Blend", Region: "Bordeaux, France", Vintage: "2015", Producer: "Château Margaux"},
			},
			{
				Name: "Dom Pérignon 2012", PriceText: "$250.00", OriginalPriceText: "$280.00",
				DiscountPercentage: pct(11), DealType: model.DealDiscount, Location: &wineLibrary,
				Details: model.WineDetails{Varietal: "Champagne", Region: "Champagne, France", Vintage: "2012", Producer: "Moët & Chandon"},
			},
		},
		"Astor Wines & Spirits": {
			{
				Name: "Opus One 2018", PriceText: "$380.00", OriginalPriceText: "$450.00",
				DiscountPercentage: pct(16), DealType: model.DealDiscount, Location: &astorWines,
				Details: model.WineDetails{Varietal: "Bordeaux Blend", Region: "Napa Valley, California", Vintage: "2018", Producer: "Opus One"},
			},
			{
				Name: "Caymus Cabernet Sauvignon 2020", PriceText: "$160.00", OriginalPriceText: "$180.00",
				DiscountPercentage: pct(11), DealType: model.DealDiscount, Location: &astorWines,
				Details: model.WineDetails{Varietal: "Cabernet Sauvignon", Region: "Napa Valley, California", Vintage: "2020", Producer: "Caymus Vineyards"},
			},
		},
		"Sherry-Lehmann": {
			{
				Name: "Sassicaia 2019", PriceText: "$320.00", OriginalPriceText: "$350.00",
				DiscountPercentage: pct(9), DealType: model.DealDiscount, Location: &sherry,
				Details: model.WineDetails{Varietal: "Cabernet Sauvignon", Region: "Tuscany, Italy", Vintage: "2019", Producer: "Tenuta San Guido"},
			},
		},
	}
}
