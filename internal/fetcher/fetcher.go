// Package fetcher pulls raw deal observations from wine retailers.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"winedeals/internal/model"
)

// Shop sources understood by Registry.
const (
	SourceHTML   = "html"
	SourceFeed   = "feed"
	SourceStatic = "static"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 5 * 1024 * 1024
	userAgent      = "Mozilla/5.0 (compatible; WineDealsAgent/1.0)"
)

// Fetcher returns the raw deal tuples a shop currently lists. An empty
// listing is not an error; only hard transport failures are.
type Fetcher interface {
	Fetch(ctx context.Context, shop model.ShopConfig) ([]model.RawTuple, error)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Registry dispatches a shop to the fetcher registered for its source.
type Registry map[string]Fetcher

// Fetch implements Fetcher.
func (r Registry) Fetch(ctx context.Context, shop model.ShopConfig) ([]model.RawTuple, error) {
	source := shop.Source
	if source == "" {
		source = SourceStatic
	}
	f, ok := r[source]
	if !ok {
		return nil, fmt.Errorf("shop %q: unknown source %q", shop.Name, source)
	}
	return f.Fetch(ctx, shop)
}

// download GETs url and returns the body, capped at maxBodySize.
func download(ctx context.Context, client HTTPClient, timeout time.Duration, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &model.TransportError{Target: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.TransportError{Target: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &model.TransportError{Target: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func shopURL(shop model.ShopConfig) string {
	if shop.URL != "" {
		return shop.URL
	}
	return shop.Website
}

var priceRe = regexp.MustCompile(`[\d,]+\.?\d*`)

// ParsePrice extracts the first numeric-looking substring of text, with
// thousands separators removed. ok is false when text holds no price.
func ParsePrice(text string) (price decimal.Decimal, ok bool) {
	for _, m := range priceRe.FindAllString(text, -1) {
		m = strings.TrimRight(strings.ReplaceAll(m, ",", ""), ".")
		if m == "" {
			continue
		}
		d, err := decimal.NewFromString(m)
		if err != nil {
			continue
		}
		return d, true
	}
	return decimal.Decimal{}, false
}
