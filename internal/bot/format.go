package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"winedeals/internal/ingest"
	"winedeals/internal/model"
	"winedeals/internal/scheduler"
)

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// FormatIngestSummary formats the outcome of an ingestion run.
func FormatIngestSummary(sum ingest.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingestion finished: %d seen, %d accepted (%d new, %d merged), %d rejected, %d dropped.\n",
		sum.Seen, sum.Accepted, sum.Created, sum.Merged, sum.Rejected, sum.Dropped)
	for _, s := range sum.Shops {
		if s.Err != nil {
			fmt.Fprintf(&b, "\n%s: failed (%v)", s.Shop, s.Err)
			continue
		}
		fmt.Fprintf(&b, "\n%s: %d new, %d merged, %d rejected", s.Shop, s.Created, s.Merged, s.Rejected)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatNotifySummary formats the outcome of a notification run.
func FormatNotifySummary(sum scheduler.NotifySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Notification finished: %d of %d users emailed, %d failed.", sum.Sent, sum.Users, sum.Failed)
	if sum.SkippedPreferences > 0 {
		fmt.Fprintf(&b, "\n%d malformed preference(s) skipped.", sum.SkippedPreferences)
	}
	if len(sum.FailedUsers) > 0 {
		fmt.Fprintf(&b, "\nFailed users: %s", strings.Join(sum.FailedUsers, ", "))
	}
	return b.String()
}

// FormatDealPage formats one page of /deals results.
func FormatDealPage(name string, page model.Page) string {
	if page.Total == 0 {
		return fmt.Sprintf("No active deals for \"%s\".", name)
	}
	if len(page.Deals) == 0 {
		return fmt.Sprintf("Page %d is past the end: \"%s\" has %d page(s).", page.Page, name, page.TotalPages)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Deals for \"%s\" (page %d of %d, %d total):\n", name, page.Page, page.TotalPages, page.Total)
	for _, d := range page.Deals {
		b.WriteString("\n")
		b.WriteString(dealLine(&d))
	}
	return b.String()
}

func dealLine(d *model.DealRecord) string {
	var b strings.Builder
	b.WriteString(d.WineName)
	b.WriteString("\n   ")
	if d.IsDiscounted() {
		fmt.Fprintf(&b, "%s (was %s", money(d.DiscountedPrice.Decimal), money(d.OriginalPrice))
		if d.DiscountPercentage.Valid {
			fmt.Fprintf(&b, ", %s%% off", d.DiscountPercentage.Decimal.String())
		}
		b.WriteString(")")
	} else {
		b.WriteString(money(d.OriginalPrice))
	}
	fmt.Fprintf(&b, " at %s, %s\n   id: %s\n", d.ShopName, d.ShopLocation.State, d.ID)
	return b.String()
}

// FormatDeal formats the full record of a single deal.
func FormatDeal(d *model.DealRecord) string {
	var b strings.Builder
	b.WriteString(dealLine(d))
	if d.DealType != "" {
		fmt.Fprintf(&b, "Type: %s\n", d.DealType)
	}
	loc := d.ShopLocation
	if loc.Address != "" {
		fmt.Fprintf(&b, "Address: %s, %s, %s %s\n", loc.Address, loc.City, loc.State, loc.Zip)
	}
	details := []struct{ label, value string }{
		{"Producer", d.WineDetails.Producer},
		{"Region", d.WineDetails.Region},
		{"Varietal", d.WineDetails.Varietal},
		{"Vintage", d.WineDetails.Vintage},
	}
	for _, kv := range details {
		if kv.value != "" {
			fmt.Fprintf(&b, "%s: %s\n", kv.label, kv.value)
		}
	}
	if d.ProductURL != "" {
		fmt.Fprintf(&b, "Link: %s\n", d.ProductURL)
	}
	fmt.Fprintf(&b, "Score: %d\n", d.Score)
	fmt.Fprintf(&b, "Last seen: %s", d.LastUpdated.Format("2006-01-02 15:04 UTC"))
	return b.String()
}

// FormatShops formats the shops that have active deals.
func FormatShops(shops []model.ShopSummary) string {
	if len(shops) == 0 {
		return "No shops have active deals. Use /ingest to fetch listings."
	}
	var b strings.Builder
	b.WriteString("Shops with active deals:\n")
	for _, s := range shops {
		fmt.Fprintf(&b, "\n%s (%s, %s): %d deal(s)\n   %s", s.Name, s.City, s.State, s.DealCount, s.Website)
	}
	return b.String()
}

// FormatStats formats the catalog overview.
func FormatStats(st model.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active deals: %d\n", st.TotalDeals)
	fmt.Fprintf(&b, "Shops: %d\n", st.TotalShops)
	if st.TotalDeals > 0 {
		fmt.Fprintf(&b, "Average price: %s\n", money(st.AvgOriginalPrice))
	}
	if st.AvgDiscountedPrice.Valid {
		fmt.Fprintf(&b, "Average discounted price: %s\n", money(st.AvgDiscountedPrice.Decimal))
	}
	for _, state := range model.ServicedStates {
		fmt.Fprintf(&b, "\n%s: %d", state, st.DealsByState[state])
	}
	return b.String()
}
