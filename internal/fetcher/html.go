package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"winedeals/internal/model"
)

// HTML scrapes a shop's listing page with the CSS selectors in its config.
type HTML struct {
	client  HTTPClient
	timeout time.Duration
}

// NewHTML creates an HTML fetcher. A non-positive timeout selects the default.
func NewHTML(client HTTPClient, timeout time.Duration) *HTML {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTML{client: client, timeout: timeout}
}

// Fetch implements Fetcher.
func (h *HTML) Fetch(ctx context.Context, shop model.ShopConfig) ([]model.RawTuple, error) {
	sel := shop.Selectors
	if sel.Container == "" || sel.Name == "" || sel.Price == "" {
		return nil, fmt.Errorf("shop %q: container, name and price selectors are required", shop.Name)
	}

	target := shopURL(shop)
	body, err := h.download(ctx, target)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var tuples []model.RawTuple
	doc.Find(sel.Container).Each(func(_ int, item *goquery.Selection) {
		name := text(item, sel.Name)
		price := text(item, sel.Price)
		if name == "" || price == "" {
			return
		}
		t := model.RawTuple{Name: name, PriceText: price}
		if sel.OriginalPrice != "" {
			t.OriginalPriceText = text(item, sel.OriginalPrice)
		}
		if sel.Link != "" {
			if href, ok := item.Find(sel.Link).First().Attr("href"); ok {
				t.Link = resolve(target, href)
			}
		}
		tuples = append(tuples, t)
	})
	return tuples, nil
}

func (h *HTML) download(ctx context.Context, target string) ([]byte, error) {
	return download(ctx, h.client, h.timeout, target)
}

func text(s *goquery.Selection, selector string) string {
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func resolve(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}
