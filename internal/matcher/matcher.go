// Package matcher turns a user's wine preferences into ranked deal lists.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"winedeals/internal/model"
	"winedeals/internal/storage"
)

// DefaultLimit is the number of deals kept per preference.
const DefaultLimit = 10

// DealFinder is the read path of the deal store the matcher needs.
type DealFinder interface {
	FindActiveByName(ctx context.Context, q storage.DealQuery) (model.Page, error)
}

// Skip records a preference that was not matched because it is malformed.
type Skip struct {
	Index      int
	Preference model.WinePreference
	Err        error
}

// Result is the outcome of matching one user's preferences.
type Result struct {
	// Matches has exactly one entry per well-formed preference, in input order.
	Matches []model.MatchResult
	Skipped []Skip
}

// TotalDeals returns the number of deals across all matches.
func (r Result) TotalDeals() int {
	n := 0
	for _, m := range r.Matches {
		n += len(m.Deals)
	}
	return n
}

// Matcher ranks active deals against wine preferences.
type Matcher struct {
	store DealFinder
	limit int
	log   *slog.Logger
}

// New creates a Matcher returning at most limit deals per preference.
// A non-positive limit selects DefaultLimit.
func New(store DealFinder, limit int, log *slog.Logger) *Matcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Matcher{store: store, limit: limit, log: log}
}

// Match finds the top deals for every preference. Malformed preferences are
// skipped and reported in Result.Skipped. An error is returned only when the
// store cannot be queried.
func (m *Matcher) Match(ctx context.Context, prefs []model.WinePreference) (Result, error) {
	res := Result{Matches: make([]model.MatchResult, 0, len(prefs))}

	for i, pref := range prefs {
		if err := Validate(pref); err != nil {
			m.log.Warn("skip preference", "index", i, "wine_name", pref.WineName, "error", err)
			res.Skipped = append(res.Skipped, Skip{Index: i, Preference: pref, Err: err})
			continue
		}

		deals, err := m.matchOne(ctx, pref)
		if err != nil {
			if model.IsValidation(err) {
				m.log.Warn("skip preference", "index", i, "wine_name", pref.WineName, "error", err)
				res.Skipped = append(res.Skipped, Skip{Index: i, Preference: pref, Err: err})
				continue
			}
			return Result{}, fmt.Errorf("match %q: %w", pref.WineName, err)
		}

		res.Matches = append(res.Matches, model.MatchResult{
			PreferenceName: strings.TrimSpace(pref.WineName),
			Deals:          deals,
		})
	}
	return res, nil
}

func (m *Matcher) matchOne(ctx context.Context, pref model.WinePreference) ([]model.DealRecord, error) {
	q := storage.DealQuery{
		NamePattern: pref.WineName,
		PriceMin:    pref.PriceRange.Min,
		PriceMax:    pref.PriceRange.Max,
		SortKey:     "score",
		SortOrder:   storage.SortDesc,
	}

	// Pages are capped by the store, so a larger limit is read page by page.
	var found []model.DealRecord
	for len(found) < m.limit {
		q.Limit = min(m.limit-len(found), storage.MaxPageSize)
		q.Offset = len(found)
		page, err := m.store.FindActiveByName(ctx, q)
		if err != nil {
			return nil, err
		}
		found = append(found, page.Deals...)
		if !page.HasNext || len(page.Deals) == 0 {
			break
		}
	}

	key := model.NormalizeName(pref.WineName)
	deals := make([]model.DealRecord, 0, len(found))
	for _, d := range found {
		if !d.Active || !strings.Contains(model.NormalizeName(d.WineName), key) {
			continue
		}
		if !InRange(&d, pref.PriceRange) {
			continue
		}
		deals = append(deals, d)
	}

	slices.SortStableFunc(deals, Rank)
	if len(deals) > m.limit {
		deals = deals[:m.limit]
	}
	return deals, nil
}

// Validate reports why a preference cannot be matched, if it cannot.
func Validate(pref model.WinePreference) error {
	if strings.TrimSpace(pref.WineName) == "" {
		return &model.ValidationError{Field: "wineName", Reason: "is required"}
	}
	r := pref.PriceRange
	if r.Min != nil && r.Max != nil && r.Min.GreaterThan(*r.Max) {
		return &model.ValidationError{Field: "priceRange", Reason: "min must not exceed max"}
	}
	if (r.Min != nil && r.Min.IsNegative()) || (r.Max != nil && r.Max.IsNegative()) {
		return &model.ValidationError{Field: "priceRange", Reason: "bounds must not be negative"}
	}
	return nil
}

// InRange reports whether any of the deal's prices falls within r.
func InRange(d *model.DealRecord, r model.PriceRange) bool {
	if r.IsZero() {
		return true
	}
	if r.Contains(d.OriginalPrice) {
		return true
	}
	return d.DiscountedPrice.Valid && r.Contains(d.DiscountedPrice.Decimal)
}

// Rank orders deals by score descending, then by scrape time descending.
func Rank(a, b model.DealRecord) int {
	switch {
	case a.Score != b.Score:
		if a.Score > b.Score {
			return -1
		}
		return 1
	case !a.ScrapedAt.Equal(b.ScrapedAt):
		if a.ScrapedAt.After(b.ScrapedAt) {
			return -1
		}
		return 1
	}
	return 0
}
