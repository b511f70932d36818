// Package storage defines the persistence interfaces and their SQLite implementation.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"winedeals/internal/model"
)

// MergeWindow is how far back an observation may merge into an existing deal.
const MergeWindow = 24 * time.Hour

// SortOrder is the direction of a deal listing.
type SortOrder string

// Supported sort orders.
const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// DealQuery selects a page of active deals.
type DealQuery struct {
	// NamePattern is matched case-insensitively as a substring of the wine name.
	NamePattern string
	ShopName    string
	State       model.State
	// PriceMin and PriceMax are inclusive. A deal matches when either its
	// original or its discounted price falls inside the range.
	PriceMin  *decimal.Decimal
	PriceMax  *decimal.Decimal
	SortKey   string
	SortOrder SortOrder
	Limit     int
	Offset    int
}

// UpsertResult is the outcome of storing one observation.
type UpsertResult struct {
	Deal    model.DealRecord
	Created bool
}

// DealStore owns the deal catalog. All deal mutation goes through Upsert and
// DeactivateOlderThan.
type DealStore interface {
	Upsert(ctx context.Context, candidate model.DealRecord) (UpsertResult, error)
	FindActiveByName(ctx context.Context, q DealQuery) (model.Page, error)
	DeactivateOlderThan(ctx context.Context, days int) (int64, error)
	GetDeal(ctx context.Context, id string) (*model.DealRecord, error)
	ListShops(ctx context.Context) ([]model.ShopSummary, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// AccountReader is the read-only view of the identity store.
type AccountReader interface {
	ListEligibleUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	DealStore
	AccountReader
	Close() error
}
