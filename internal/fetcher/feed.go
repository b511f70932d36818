package fetcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"winedeals/internal/model"
)

// Feed reads deals from a shop's RSS or Atom feed. Each item is one deal:
// the title is the wine name, the first dollar amount in the description is
// the current price and a second one, if present, the pre-sale price.
type Feed struct {
	client  HTTPClient
	timeout time.Duration
}

// NewFeed creates a Feed fetcher. A non-positive timeout selects the default.
func NewFeed(client HTTPClient, timeout time.Duration) *Feed {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Feed{client: client, timeout: timeout}
}

var dollarRe = regexp.MustCompile(`\$\s*[\d,]+(?:\.\d+)?`)

// Fetch implements Fetcher.
func (f *Feed) Fetch(ctx context.Context, shop model.ShopConfig) ([]model.RawTuple, error) {
	body, err := download(ctx, f.client, f.timeout, shopURL(shop))
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	tuples := make([]model.RawTuple, 0, len(feed.Items))
	for _, item := range feed.Items {
		if t, ok := itemTuple(item); ok {
			tuples = append(tuples, t)
		}
	}
	return tuples, nil
}

func itemTuple(item *gofeed.Item) (model.RawTuple, bool) {
	name := strings.TrimSpace(item.Title)
	prices := dollarRe.FindAllString(plainText(item.Description), 2)
	if name == "" || len(prices) == 0 {
		return model.RawTuple{}, false
	}

	t := model.RawTuple{Name: name, PriceText: prices[0], Link: item.Link}
	if len(prices) > 1 {
		t.OriginalPriceText = prices[1]
	}
	for _, c := range item.Categories {
		if dt := model.DealType(strings.ToLower(strings.TrimSpace(c))); dt.Valid() {
			t.DealType = dt
			break
		}
	}
	return t, true
}

// plainText strips markup from feed descriptions.
func plainText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
