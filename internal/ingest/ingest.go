// Package ingest pulls raw observations from every configured shop,
// normalizes them and upserts them into the deal store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"winedeals/internal/fetcher"
	"winedeals/internal/model"
	"winedeals/internal/storage"
)

const (
	defaultConcurrency = 2
	defaultShopTimeout = 30 * time.Second
)

var hundred = decimal.NewFromInt(100)

// Upserter is the write path of the deal store.
type Upserter interface {
	Upsert(ctx context.Context, candidate model.DealRecord) (storage.UpsertResult, error)
}

// ShopSummary counts what happened to one shop's listing.
type ShopSummary struct {
	Shop     string
	Seen     int
	Accepted int
	Created  int
	Merged   int
	Rejected int
	Dropped  int
	Err      error
}

// Summary is the outcome of one ingestion run.
type Summary struct {
	Seen     int
	Accepted int
	Created  int
	Merged   int
	Rejected int
	Dropped  int
	// Shops has one entry per configured shop, in configuration order.
	Shops       []ShopSummary
	FailedShops []string
}

func (s *Summary) add(ss ShopSummary) {
	s.Shops = append(s.Shops, ss)
	s.Seen += ss.Seen
	s.Accepted += ss.Accepted
	s.Created += ss.Created
	s.Merged += ss.Merged
	s.Rejected += ss.Rejected
	s.Dropped += ss.Dropped
	if ss.Err != nil {
		s.FailedShops = append(s.FailedShops, ss.Shop)
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency bounds how many shops are fetched at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithShopTimeout bounds the time spent on a single shop.
func WithShopTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.shopTimeout = d
		}
	}
}

// Pipeline ingests deals from a fixed shop list.
type Pipeline struct {
	fetcher     fetcher.Fetcher
	store       Upserter
	shops       []model.ShopConfig
	concurrency int
	shopTimeout time.Duration
	log         *slog.Logger
}

// New creates a Pipeline.
func New(f fetcher.Fetcher, store Upserter, shops []model.ShopConfig, log *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:     f,
		store:       store,
		shops:       shops,
		concurrency: defaultConcurrency,
		shopTimeout: defaultShopTimeout,
		log:         log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Shops returns the configured shop list.
func (p *Pipeline) Shops() []model.ShopConfig {
	return p.shops
}

// Run ingests every shop. A failing shop is logged and recorded in the
// summary; only a store failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	results := make([]ShopSummary, len(p.shops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, shop := range p.shops {
		g.Go(func() error {
			ss, err := p.ingestShop(gctx, shop)
			results[i] = ss
			return err
		})
	}
	err := g.Wait()

	var sum Summary
	for _, ss := range results {
		if ss.Shop == "" {
			continue
		}
		sum.add(ss)
	}
	if err != nil {
		return sum, fmt.Errorf("ingest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("ingest: %w", err)
	}

	p.log.Info("ingestion finished",
		"shops", len(p.shops),
		"seen", sum.Seen,
		"created", sum.Created,
		"merged", sum.Merged,
		"rejected", sum.Rejected,
		"dropped", sum.Dropped,
		"failed_shops", len(sum.FailedShops),
	)
	return sum, nil
}

func (p *Pipeline) ingestShop(ctx context.Context, shop model.ShopConfig) (ShopSummary, error) {
	ss := ShopSummary{Shop: shop.Name}
	if ctx.Err() != nil {
		ss.Err = ctx.Err()
		return ss, nil
	}

	fctx, cancel := context.WithTimeout(ctx, p.shopTimeout)
	defer cancel()

	p.log.Debug("fetching shop", "shop", shop.Name, "source", shop.Source)
	tuples, err := p.fetcher.Fetch(fctx, shop)
	if err != nil {
		p.log.Error("fetch shop", "shop", shop.Name, "error", err)
		ss.Err = err
		return ss, nil
	}

	for _, t := range tuples {
		ss.Seen++
		candidate, ok := Normalize(shop, t)
		if !ok {
			p.log.Debug("drop tuple without price", "shop", shop.Name, "name", t.Name, "price_text", t.PriceText)
			ss.Dropped++
			continue
		}

		res, err := p.store.Upsert(ctx, candidate)
		switch {
		case err == nil:
			ss.Accepted++
			if res.Created {
				ss.Created++
			} else {
				ss.Merged++
			}
		case model.IsValidation(err):
			p.log.Warn("reject deal", "shop", shop.Name, "wine_name", candidate.WineName, "error", err)
			ss.Rejected++
		case errors.Is(err, model.ErrStoreUnavailable):
			ss.Err = err
			return ss, fmt.Errorf("shop %q: %w", shop.Name, err)
		default:
			p.log.Error("upsert deal", "shop", shop.Name, "wine_name", candidate.WineName, "error", err)
			ss.Err = err
			return ss, nil
		}
	}

	p.log.Info("shop ingested", "shop", shop.Name, "seen", ss.Seen, "accepted", ss.Accepted, "rejected", ss.Rejected)
	return ss, nil
}

// Normalize turns a raw tuple into a deal candidate for shop. ok is false
// when the tuple carries no parseable price.
//
// The listed price is the original price unless a separate original price is
// given, in which case the listed price is the discounted one. The discount
// percentage is recomputed whenever both prices are known; a fetcher supplied
// percentage is kept only when there is no discounted price.
func Normalize(shop model.ShopConfig, t model.RawTuple) (model.DealRecord, bool) {
	price, ok := fetcher.ParsePrice(t.PriceText)
	if !ok {
		return model.DealRecord{}, false
	}

	d := model.DealRecord{
		WineName:      strings.TrimSpace(t.Name),
		OriginalPrice: price,
		ShopName:      shop.Name,
		ShopWebsite:   shop.Website,
		ShopLocation:  shop.Location,
		WineDetails:   t.Details,
		DealType:      t.DealType,
		ProductURL:    t.Link,
	}
	if t.Location != nil {
		loc := *t.Location
		if loc.State == "" {
			loc.State = shop.Location.State
		}
		if loc.City == "" {
			loc.City = shop.Location.City
		}
		d.ShopLocation = loc
	}

	if original, ok := fetcher.ParsePrice(t.OriginalPriceText); ok && t.OriginalPriceText != "" && !original.Equal(price) {
		d.OriginalPrice = original
		d.DiscountedPrice = decimal.NewNullDecimal(price)
	}

	switch {
	case d.DiscountedPrice.Valid:
		d.DiscountPercentage = decimal.NewNullDecimal(DiscountPercentage(d.OriginalPrice, d.DiscountedPrice.Decimal))
	case t.DiscountPercentage.Valid:
		d.DiscountPercentage = t.DiscountPercentage
	}
	return d, true
}

// DiscountPercentage returns round((original - discounted) / original * 100).
func DiscountPercentage(original, discounted decimal.Decimal) decimal.Decimal {
	if !original.IsPositive() {
		return decimal.Zero
	}
	return original.Sub(discounted).Div(original).Mul(hundred).Round(0)
}
