// Package email renders deal digests into HTML messages.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"winedeals/internal/model"
)

// Subjects of the messages Builder produces.
const (
	TestSubject   = "Wine Deals Agent - Test Email"
	DigestSubject = "Your Daily Wine Deals - "
)

//go:embed templates/*.html
var templateFS embed.FS

var digestTmpl = template.Must(template.ParseFS(templateFS, "templates/digest.html"))

// Payload is a rendered message ready for a mail transport.
type Payload struct {
	Subject string
	HTML    string
}

// Builder renders digests. It holds no per-message state and is safe for
// concurrent use.
type Builder struct {
	manageURL string
}

// NewBuilder creates a Builder whose "Manage Preferences" link points at
// clientURL's dashboard.
func NewBuilder(clientURL string) *Builder {
	return &Builder{manageURL: strings.TrimRight(clientURL, "/") + "/dashboard"}
}

type digest struct {
	Test      bool
	FirstName string
	Sections  []section
	ManageURL string
}

type section struct {
	Name string
	Rows []row
}

type row struct {
	WineName        string
	Vintage         string
	OriginalPrice   string
	Discounted      bool
	DiscountedPrice string
	PercentOff      string
	ShopName        string
	ShopURL         string
	Location        string
}

// Build renders the daily digest for user. Every match gets a section, in
// order; a match without deals renders a "no deals today" placeholder.
func (b *Builder) Build(user model.User, matches []model.MatchResult, date time.Time) (Payload, error) {
	d := digest{
		FirstName: greetingName(user),
		Sections:  make([]section, 0, len(matches)),
		ManageURL: b.manageURL,
	}
	for _, m := range matches {
		s := section{Name: m.PreferenceName}
		for i := range m.Deals {
			s.Rows = append(s.Rows, newRow(&m.Deals[i]))
		}
		d.Sections = append(d.Sections, s)
	}
	return b.render(DigestSubject+date.Format("Jan 2, 2006"), d)
}

// BuildTest renders a delivery check message that carries no deal data.
func (b *Builder) BuildTest(user model.User) (Payload, error) {
	return b.render(TestSubject, digest{
		Test:      true,
		FirstName: greetingName(user),
		ManageURL: b.manageURL,
	})
}

func (b *Builder) render(subject string, d digest) (Payload, error) {
	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, d); err != nil {
		return Payload{}, fmt.Errorf("render email: %w", err)
	}
	return Payload{Subject: subject, HTML: buf.String()}, nil
}

func newRow(d *model.DealRecord) row {
	r := row{
		WineName:      d.WineName,
		Vintage:       d.WineDetails.Vintage,
		OriginalPrice: "$" + d.OriginalPrice.StringFixed(2),
		ShopName:      d.ShopName,
		ShopURL:       d.ProductURL,
		Location:      location(d.ShopLocation),
	}
	if r.ShopURL == "" {
		r.ShopURL = d.ShopWebsite
	}
	if d.IsDiscounted() {
		r.Discounted = true
		r.DiscountedPrice = "$" + d.DiscountedPrice.Decimal.StringFixed(2)
		pct := d.DiscountPercentage
		if pct.Valid {
			r.PercentOff = pct.Decimal.StringFixed(0)
		} else {
			off := d.OriginalPrice.Sub(d.DiscountedPrice.Decimal).Div(d.OriginalPrice).Shift(2)
			r.PercentOff = off.StringFixed(0)
		}
	}
	return r
}

func location(l model.ShopLocation) string {
	switch {
	case l.City != "" && l.State != "":
		return l.City + ", " + string(l.State)
	case l.City != "":
		return l.City
	default:
		return string(l.State)
	}
}

func greetingName(u model.User) string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return "there"
}
