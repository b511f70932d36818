package email

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"winedeals/internal/model"
)

var day = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func deal(name, vintage, original, discounted, pct string) model.DealRecord {
	d := model.DealRecord{
		WineName:      name,
		OriginalPrice: decimal.RequireFromString(original),
		ShopName:      "Sherry-Lehmann",
		ShopWebsite:   "https://sherry-lehmann.com",
		ShopLocation:  model.ShopLocation{State: model.StateNY, City: "New York"},
		WineDetails:   model.WineDetails{Vintage: vintage},
	}
	if discounted != "" {
		d.DiscountedPrice = decimal.NewNullDecimal(decimal.RequireFromString(discounted))
	}
	if pct != "" {
		d.DiscountPercentage = decimal.NewNullDecimal(decimal.RequireFromString(pct))
	}
	return d
}

func TestBuild(t *testing.T) {
	b := NewBuilder("https://wine.example.com/")
	user := model.User{Email: "ada@example.com", FirstName: "Ada"}

	matches := []model.MatchResult{
		{PreferenceName: "Sassicaia", Deals: []model.DealRecord{
			deal("Sassicaia 2019", "2019", "350", "320", "9"),
			deal("Sassicaia 2017", "", "410", "", ""),
		}},
		{PreferenceName: "Petrus", Deals: []model.DealRecord{}},
		{PreferenceName: "Opus One", Deals: []model.DealRecord{
			deal("Opus One 2018", "2018", "450", "380", ""),
		}},
	}

	p, err := b.Build(user, matches, day)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if diff := cmp.Diff("Your Daily Wine Deals - Mar 10, 2026", p.Subject); diff != "" {
		t.Errorf("subject mismatch (-want +got):\n%s", diff)
	}

	checks := []struct {
		name  string
		count int
		token string
	}{
		{name: "one section per preference", token: `class="section"`, count: 3},
		{name: "one row per deal", token: `class="deal"`, count: 3},
		{name: "empty preference placeholder", token: "No deals found for Petrus today.", count: 1},
		{name: "greeting", token: "Hello Ada!", count: 1},
		{name: "original prices", token: "$350.00", count: 1},
		{name: "discounted price", token: "$320.00", count: 1},
		{name: "stored percentage", token: "(9% off)", count: 1},
		{name: "computed percentage", token: "(16% off)", count: 1},
		{name: "missing discount", token: "N/A", count: 1},
		{name: "location", token: "New York, NY", count: 3},
		{name: "manage link", token: `href="https://wine.example.com/dashboard"`, count: 1},
		{name: "no global placeholder", token: "No deals found for your wine preferences", count: 0},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if got := strings.Count(p.HTML, c.token); got != c.count {
				t.Errorf("count(%q) = %d, want %d", c.token, got, c.count)
			}
		})
	}

	order := []string{"Sassicaia 2019", "Sassicaia 2017", "Petrus", "Opus One 2018"}
	last := -1
	for _, s := range order {
		i := strings.Index(p.HTML, s)
		if i <= last {
			t.Errorf("%q rendered out of order", s)
		}
		last = i
	}
}

func TestBuildWithoutPreferences(t *testing.T) {
	p, err := NewBuilder("http://localhost:3000").Build(model.User{}, nil, day)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(p.HTML, "No deals found for your wine preferences today.") {
		t.Error("expected the global no-deals placeholder")
	}
	if !strings.Contains(p.HTML, "Hello there!") {
		t.Error("expected a generic greeting for a user without a first name")
	}
	if strings.Contains(p.HTML, `class="section"`) {
		t.Error("expected no preference sections")
	}
}

func TestBuildEscapesDealText(t *testing.T) {
	d := deal(`<script>alert("x")</script>`, "", "10", "", "")
	d.ShopName = "Astor Wines & Spirits"
	d.ProductURL = "javascript:alert(1)"

	p, err := NewBuilder("http://localhost:3000").Build(model.User{FirstName: "Ada"},
		[]model.MatchResult{{PreferenceName: "x", Deals: []model.DealRecord{d}}}, day)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(p.HTML, "<script>") {
		t.Error("wine name was not escaped")
	}
	if !strings.Contains(p.HTML, "Astor Wines &amp; Spirits") {
		t.Error("shop name was not escaped")
	}
	if strings.Contains(p.HTML, "javascript:") {
		t.Error("unsafe link was not filtered")
	}
}

func TestBuildTest(t *testing.T) {
	p, err := NewBuilder("http://localhost:3000").BuildTest(model.User{FirstName: "Demo"})
	if err != nil {
		t.Fatalf("build test: %v", err)
	}
	if diff := cmp.Diff(TestSubject, p.Subject); diff != "" {
		t.Errorf("subject mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"Test Email", "Hello Demo!", "verify your notification settings", "Deal listings will appear here"} {
		if !strings.Contains(p.HTML, want) {
			t.Errorf("test email missing %q", want)
		}
	}
	for _, unwanted := range []string{`class="deal"`, `class="section"`, "No deals found"} {
		if strings.Contains(p.HTML, unwanted) {
			t.Errorf("test email should not contain %q", unwanted)
		}
	}
}
