package fetcher

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"winedeals/internal/model"
)

// LoadShops reads a JSON array of shop configs. An empty path returns
// DefaultShops.
func LoadShops(path string) ([]model.ShopConfig, error) {
	if path == "" {
		return DefaultShops(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read shops file: %w", err)
	}

	var shops []model.ShopConfig
	if err := json.Unmarshal(data, &shops); err != nil {
		return nil, fmt.Errorf("decode shops file: %w", err)
	}

	seen := make(map[string]bool, len(shops))
	for i := range shops {
		s := &shops[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Location.State = model.State(strings.ToUpper(string(s.Location.State)))
		switch {
		case s.Name == "":
			return nil, fmt.Errorf("shop #%d: name is required", i+1)
		case seen[s.Name]:
			return nil, fmt.Errorf("shop %q: duplicate name", s.Name)
		case s.Website == "":
			return nil, fmt.Errorf("shop %q: website is required", s.Name)
		}
		switch s.Source {
		case "":
			s.Source = SourceStatic
		case SourceHTML, SourceFeed, SourceStatic:
		default:
			return nil, fmt.Errorf("shop %q: unknown source %q", s.Name, s.Source)
		}
		seen[s.Name] = true
	}
	return shops, nil
}
