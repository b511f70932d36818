package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"winedeals/internal/model"
	"winedeals/internal/score"
)

const defaultPageSize = 20

// MaxPageSize is the largest page FindActiveByName returns.
const MaxPageSize = 100

const dealColumns = `id, wine_name, original_price_cents, discounted_price_cents, discount_percentage,
	shop_name, shop_website, shop_state, shop_city, shop_address, shop_zip,
	varietal, region, vintage, producer, description,
	deal_type, product_url, scraped_at, last_updated, active, score`

// sortColumns maps the public sort keys to columns.
var sortColumns = map[string]string{
	"score":              "score",
	"wineName":           "wine_key",
	"originalPrice":      "original_price_cents",
	"discountedPrice":    "discounted_price_cents",
	"discountPercentage": "discount_percentage",
	"shopName":           "shop_name",
	"state":              "shop_state",
	"scrapedAt":          "scraped_at",
	"lastUpdated":        "last_updated",
}

// Upsert stores an observation. An active deal with the same wine name, shop
// and original price scraped within MergeWindow absorbs the observation's
// discount fields; otherwise a new deal is created.
func (s *SQLite) Upsert(ctx context.Context, candidate model.DealRecord) (UpsertResult, error) {
	c := normalizeCandidate(candidate)
	if err := validateCandidate(&c); err != nil {
		return UpsertResult{}, err
	}

	now := s.clock.Now().Truncate(time.Microsecond)
	key := model.NormalizeName(c.WineName)
	cents := toCents(c.OriginalPrice)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals
		 WHERE active = 1 AND wine_key = ? AND shop_name = ? AND original_price_cents = ? AND scraped_at >= ?
		 ORDER BY scraped_at DESC LIMIT 1`,
		key, c.ShopName, cents, formatTime(now.Add(-MergeWindow)),
	)
	existing, err := scanDeal(row)

	var res UpsertResult
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err = insertDeal(ctx, tx, c, key, cents, now)
	case err != nil:
		return UpsertResult{}, unavailable("find merge candidate", err)
	default:
		res, err = mergeDeal(ctx, tx, existing, c, now)
	}
	if err != nil {
		return UpsertResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, unavailable("commit upsert", err)
	}
	return res, nil
}

func insertDeal(ctx context.Context, tx *sql.Tx, c model.DealRecord, key string, cents int64, now time.Time) (UpsertResult, error) {
	d := c
	d.ID = uuid.NewString()
	d.OriginalPrice = fromCents(cents)
	d.DiscountedPrice = nullDecimalFromCents(nullCents(c.DiscountedPrice))
	d.ScrapedAt = now
	d.LastUpdated = now
	d.Active = true
	d.Score = score.Compute(&d, now)

	_, err := tx.ExecContext(ctx,
		`INSERT INTO deals (id, wine_name, wine_key, original_price_cents, discounted_price_cents, discount_percentage,
			shop_name, shop_website, shop_state, shop_city, shop_address, shop_zip,
			varietal, region, vintage, producer, description,
			deal_type, product_url, scraped_at, last_updated, active, score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.WineName, key, cents, nullCents(d.DiscountedPrice), nullFloat(d.DiscountPercentage),
		d.ShopName, d.ShopWebsite, string(d.ShopLocation.State), d.ShopLocation.City, d.ShopLocation.Address, d.ShopLocation.Zip,
		d.WineDetails.Varietal, d.WineDetails.Region, d.WineDetails.Vintage, d.WineDetails.Producer, d.WineDetails.Description,
		string(d.DealType), d.ProductURL, formatTime(d.ScrapedAt), formatTime(d.LastUpdated), boolToInt(d.Active), d.Score,
	)
	if err != nil {
		return UpsertResult{}, unavailable("insert deal", err)
	}
	return UpsertResult{Deal: d, Created: true}, nil
}

func mergeDeal(ctx context.Context, tx *sql.Tx, existing *model.DealRecord, c model.DealRecord, now time.Time) (UpsertResult, error) {
	d := *existing
	d.DiscountedPrice = nullDecimalFromCents(nullCents(c.DiscountedPrice))
	d.DiscountPercentage = c.DiscountPercentage
	d.LastUpdated = now
	d.Score = score.Compute(&d, now)

	_, err := tx.ExecContext(ctx,
		`UPDATE deals SET discounted_price_cents = ?, discount_percentage = ?, last_updated = ?, score = ?
		 WHERE id = ?`,
		nullCents(d.DiscountedPrice), nullFloat(d.DiscountPercentage), formatTime(d.LastUpdated), d.Score, d.ID,
	)
	if err != nil {
		return UpsertResult{}, unavailable("merge deal", err)
	}
	return UpsertResult{Deal: d}, nil
}

// FindActiveByName returns one page of active deals selected by q.
func (s *SQLite) FindActiveByName(ctx context.Context, q DealQuery) (model.Page, error) {
	order, err := orderClause(q.SortKey, q.SortOrder)
	if err != nil {
		return model.Page{}, err
	}
	if q.Offset < 0 {
		return model.Page{}, &model.ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	if q.PriceMin != nil && q.PriceMax != nil && q.PriceMin.GreaterThan(*q.PriceMax) {
		return model.Page{}, &model.ValidationError{Field: "priceRange", Reason: "min must not exceed max"}
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	where, args := whereClause(q)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deals WHERE `+where, args...).Scan(&total); err != nil {
		return model.Page{}, unavailable("count deals", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE `+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, limit, q.Offset)...,
	)
	if err != nil {
		return model.Page{}, unavailable("query deals", err)
	}
	defer func() { _ = rows.Close() }()

	deals, err := scanDeals(rows)
	if err != nil {
		return model.Page{}, unavailable("scan deals", err)
	}
	return model.NewPage(deals, total, limit, q.Offset), nil
}

func orderClause(key string, order SortOrder) (string, error) {
	if key == "" {
		key = "score"
	}
	col, ok := sortColumns[key]
	if !ok {
		return "", &model.ValidationError{Field: "sortKey", Reason: fmt.Sprintf("unknown sort key %q", key)}
	}
	dir := "DESC"
	switch order {
	case SortAsc:
		dir = "ASC"
	case SortDesc, "":
	default:
		return "", &model.ValidationError{Field: "sortOrder", Reason: fmt.Sprintf("unknown sort order %q", order)}
	}
	return fmt.Sprintf("%s %s, scraped_at DESC, id ASC", col, dir), nil
}

func whereClause(q DealQuery) (string, []any) {
	conds := []string{"active = 1"}
	var args []any

	if key := model.NormalizeName(q.NamePattern); key != "" {
		conds = append(conds, "instr(wine_key, ?) > 0")
		args = append(args, key)
	}
	if shop := strings.TrimSpace(q.ShopName); shop != "" {
		conds = append(conds, "instr(lower(shop_name), lower(?)) > 0")
		args = append(args, shop)
	}
	if q.State != "" {
		conds = append(conds, "shop_state = ?")
		args = append(args, strings.ToUpper(string(q.State)))
	}
	if q.PriceMin != nil || q.PriceMax != nil {
		orig, origArgs := priceCondition("original_price_cents", q.PriceMin, q.PriceMax)
		disc, discArgs := priceCondition("discounted_price_cents", q.PriceMin, q.PriceMax)
		conds = append(conds, "(("+orig+") OR (discounted_price_cents IS NOT NULL AND "+disc+"))")
		args = append(args, origArgs...)
		args = append(args, discArgs...)
	}
	return strings.Join(conds, " AND "), args
}

func priceCondition(col string, lo, hi *decimal.Decimal) (string, []any) {
	var parts []string
	var args []any
	if lo != nil {
		parts = append(parts, col+" >= ?")
		args = append(args, toCents(*lo))
	}
	if hi != nil {
		parts = append(parts, col+" <= ?")
		args = append(args, toCents(*hi))
	}
	return strings.Join(parts, " AND "), args
}

// DeactivateOlderThan marks every active deal scraped more than days ago as
// inactive and returns the number of deals affected.
func (s *SQLite) DeactivateOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, &model.ValidationError{Field: "days", Reason: "must be positive"}
	}
	cutoff := s.clock.Now().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET active = 0 WHERE active = 1 AND scraped_at < ?`, formatTime(cutoff),
	)
	if err != nil {
		return 0, unavailable("deactivate deals", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("rows affected", err)
	}
	return n, nil
}

// GetDeal returns a single deal by its ID.
func (s *SQLite) GetDeal(ctx context.Context, id string) (*model.DealRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = ?`, id)
	d, err := scanDeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "deal", ID: id}
	}
	if err != nil {
		return nil, unavailable("get deal", err)
	}
	return d, nil
}

// ListShops returns the shops with active deals, ordered by name.
func (s *SQLite) ListShops(ctx context.Context) ([]model.ShopSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shop_name, shop_website, shop_state, shop_city, COUNT(*)
		 FROM deals WHERE active = 1
		 GROUP BY shop_name, shop_website, shop_state, shop_city
		 ORDER BY shop_name`,
	)
	if err != nil {
		return nil, unavailable("query shops", err)
	}
	defer func() { _ = rows.Close() }()

	var shops []model.ShopSummary
	for rows.Next() {
		var sh model.ShopSummary
		var state string
		if err := rows.Scan(&sh.Name, &sh.Website, &state, &sh.City, &sh.DealCount); err != nil {
			return nil, unavailable("scan shop", err)
		}
		sh.State = model.State(state)
		shops = append(shops, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate shops", err)
	}
	return shops, nil
}

// Stats summarizes the active deal catalog.
func (s *SQLite) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	var avgOrig, avgDisc sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(original_price_cents), AVG(discounted_price_cents), COUNT(DISTINCT shop_name)
		 FROM deals WHERE active = 1`,
	).Scan(&st.TotalDeals, &avgOrig, &avgDisc, &st.TotalShops)
	if err != nil {
		return model.Stats{}, unavailable("aggregate deals", err)
	}
	if avgOrig.Valid {
		st.AvgOriginalPrice = decimal.NewFromFloat(avgOrig.Float64).Shift(-2).Round(2)
	}
	if avgDisc.Valid {
		st.AvgDiscountedPrice = decimal.NewNullDecimal(decimal.NewFromFloat(avgDisc.Float64).Shift(-2).Round(2))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT shop_state, COUNT(*) FROM deals WHERE active = 1 GROUP BY shop_state`,
	)
	if err != nil {
		return model.Stats{}, unavailable("count by state", err)
	}
	defer func() { _ = rows.Close() }()

	st.DealsByState = make(map[model.State]int, len(model.ServicedStates))
	for _, state := range model.ServicedStates {
		st.DealsByState[state] = 0
	}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return model.Stats{}, unavailable("scan state count", err)
		}
		st.DealsByState[model.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return model.Stats{}, unavailable("iterate state counts", err)
	}
	return st, nil
}

func scanDeal(row scannable) (*model.DealRecord, error) {
	var d model.DealRecord
	var origCents int64
	var discCents sql.NullInt64
	var pct sql.NullFloat64
	var state, dealType, scraped, updated string
	var active int
	err := row.Scan(
		&d.ID, &d.WineName, &origCents, &discCents, &pct,
		&d.ShopName, &d.ShopWebsite, &state, &d.ShopLocation.City, &d.ShopLocation.Address, &d.ShopLocation.Zip,
		&d.WineDetails.Varietal, &d.WineDetails.Region, &d.WineDetails.Vintage, &d.WineDetails.Producer, &d.WineDetails.Description,
		&dealType, &d.ProductURL, &scraped, &updated, &active, &d.Score,
	)
	if err != nil {
		return nil, fmt.Errorf("scan deal: %w", err)
	}
	d.OriginalPrice = fromCents(origCents)
	d.DiscountedPrice = nullDecimalFromCents(discCents)
	if pct.Valid {
		d.DiscountPercentage = decimal.NewNullDecimal(decimal.NewFromFloat(pct.Float64))
	}
	d.ShopLocation.State = model.State(state)
	d.DealType = model.DealType(dealType)
	d.ScrapedAt = parseTime(scraped)
	d.LastUpdated = parseTime(updated)
	d.Active = active == 1
	return &d, nil
}

func scanDeals(rows *sql.Rows) ([]model.DealRecord, error) {
	var deals []model.DealRecord
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}
