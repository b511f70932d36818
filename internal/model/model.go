// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// State is a serviced region a shop may be located in.
type State string

// Serviced states.
const (
	StateNY State = "NY"
	StateNJ State = "NJ"
)

// ServicedStates lists every state deals are accepted for.
var ServicedStates = []State{StateNY, StateNJ}

// DealType classifies a deal.
type DealType string

// Supported deal types.
const (
	DealDiscount   DealType = "discount"
	DealClearance  DealType = "clearance"
	DealSpecial    DealType = "special"
	DealNewArrival DealType = "new_arrival"
)

// Valid reports whether t is one of the known deal types.
func (t DealType) Valid() bool {
	switch t {
	case DealDiscount, DealClearance, DealSpecial, DealNewArrival:
		return true
	}
	return false
}

// ShopLocation is the physical location of a shop.
type ShopLocation struct {
	State   State  `json:"state" validate:"required,oneof=NY NJ"`
	City    string `json:"city"`
	Address string `json:"address"`
	Zip     string `json:"zip"`
}

// WineDetails is an optional descriptive bag attached to a deal.
type WineDetails struct {
	Varietal    string `json:"varietal,omitempty"`
	Region      string `json:"region,omitempty"`
	Vintage     string `json:"vintage,omitempty"`
	Producer    string `json:"producer,omitempty"`
	Description string `json:"description,omitempty"`
}

// DealRecord is a scraped price observation for a named wine at a named shop.
type DealRecord struct {
	ID                 string              `json:"id"`
	WineName           string              `json:"wineName" validate:"required"`
	OriginalPrice      decimal.Decimal     `json:"originalPrice" validate:"required,gt=0"`
	DiscountedPrice    decimal.NullDecimal `json:"discountedPrice"`
	DiscountPercentage decimal.NullDecimal `json:"discountPercentage"`
	ShopName           string              `json:"shopName" validate:"required"`
	ShopWebsite        string              `json:"shopWebsite" validate:"required"`
	ShopLocation       ShopLocation        `json:"shopLocation"`
	WineDetails        WineDetails         `json:"wineDetails"`
	DealType           DealType            `json:"dealType"`
	ProductURL         string              `json:"productUrl,omitempty"`
	ScrapedAt          time.Time           `json:"scrapedAt"`
	LastUpdated        time.Time           `json:"lastUpdated"`
	Active             bool                `json:"active"`
	Score              int64               `json:"score"`
}

// IsDiscounted reports whether the deal carries a discounted price below the original.
func (d *DealRecord) IsDiscounted() bool {
	return d.DiscountedPrice.Valid && d.DiscountedPrice.Decimal.LessThan(d.OriginalPrice)
}

// PriceRange bounds a preference by price. Both bounds are inclusive; a nil
// bound is unconstrained on that side.
type PriceRange struct {
	Min *decimal.Decimal `json:"min,omitempty"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// IsZero reports whether neither bound is set.
func (r PriceRange) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// Contains reports whether p lies within the range.
func (r PriceRange) Contains(p decimal.Decimal) bool {
	if r.Min != nil && p.LessThan(*r.Min) {
		return false
	}
	if r.Max != nil && p.GreaterThan(*r.Max) {
		return false
	}
	return true
}

// WinePreference is a user's named wine of interest.
type WinePreference struct {
	ID         int64      `json:"id"`
	WineName   string     `json:"wineName"`
	Varietal   string     `json:"varietal,omitempty"`
	Region     string     `json:"region,omitempty"`
	PriceRange PriceRange `json:"priceRange"`
}

// User is the read-only account view the pipeline works with.
type User struct {
	ID                        string           `json:"id"`
	Email                     string           `json:"email"`
	FirstName                 string           `json:"firstName"`
	IsActive                  bool             `json:"isActive"`
	EmailNotificationsEnabled bool             `json:"emailNotificationsEnabled"`
	NotificationTime          string           `json:"notificationTime"`
	Preferences               []WinePreference `json:"preferences"`
}

// Eligible reports whether the user should receive scheduled notifications.
func (u *User) Eligible() bool {
	return u.IsActive && u.EmailNotificationsEnabled
}

// MatchResult holds the ranked deals found for one preference.
type MatchResult struct {
	PreferenceName string       `json:"preferenceName"`
	Deals          []DealRecord `json:"deals"`
}

// RawTuple is a single unparsed observation returned by a retailer fetcher.
type RawTuple struct {
	Name              string
	PriceText         string
	OriginalPriceText string
	Link              string

	// Optional structured fields a richer feed may provide.
	DiscountPercentage decimal.NullDecimal
	DealType           DealType
	Details            WineDetails
	Location           *ShopLocation
}

// ShopConfig describes one retailer to ingest from.
type ShopConfig struct {
	Name      string        `json:"name"`
	Website   string        `json:"website"`
	Location  ShopLocation  `json:"location"`
	Source    string        `json:"source"`
	URL       string        `json:"url,omitempty"`
	Selectors ShopSelectors `json:"selectors"`
}

// ShopSelectors are the CSS selectors used to scrape a shop's listing page.
type ShopSelectors struct {
	Container     string `json:"container"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	OriginalPrice string `json:"originalPrice"`
	Link          string `json:"link"`
}

// Page is one page of deals plus pagination metadata.
type Page struct {
	Deals      []DealRecord `json:"deals"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	TotalPages int          `json:"totalPages"`
	HasNext    bool         `json:"hasNext"`
	HasPrev    bool         `json:"hasPrev"`
}

// NewPage builds pagination metadata for a result window.
func NewPage(deals []DealRecord, total, limit, offset int) Page {
	p := Page{Deals: deals, Total: total, Page: 1}
	if limit > 0 {
		p.Page = offset/limit + 1
		p.TotalPages = (total + limit - 1) / limit
	}
	p.HasNext = offset+len(deals) < total
	p.HasPrev = p.Page > 1
	return p
}

// ShopSummary is the number of active deals offered by a shop.
type ShopSummary struct {
	Name      string `json:"name"`
	Website   string `json:"website"`
	State     State  `json:"state"`
	City      string `json:"city"`
	DealCount int    `json:"dealCount"`
}

// Stats is an overview of the active deal catalog.
type Stats struct {
	TotalDeals         int                 `json:"totalDeals"`
	AvgOriginalPrice   decimal.Decimal     `json:"avgOriginalPrice"`
	AvgDiscountedPrice decimal.NullDecimal `json:"avgDiscountedPrice"`
	TotalShops         int                 `json:"totalShops"`
	DealsByState       map[State]int       `json:"dealsByState"`
}

// NormalizeName returns the matching key for a wine name: NFC-normalized,
// case-folded, with whitespace collapsed.
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
