package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// ProductStore is the catalog the tool handlers search and sell from.
type ProductStore struct {
	db *DB
}

// NewProductStore creates a catalog store.
func NewProductStore(db *DB) *ProductStore {
	return &ProductStore{db: db}
}

// Upsert inserts a product or replaces every field except created_at.
func (s *ProductStore) Upsert(ctx context.Context, p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return mcp.Validation("id", "is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return mcp.Validation("name", "is required")
	}
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.PriceCents < 0 || p.SalePriceCents < 0 {
		return mcp.Validation("price", "must not be negative")
	}
	if p.Stock < 0 {
		return mcp.Validation("stock", "must not be negative")
	}

	cats, _ := json.Marshal(nonNil(p.Categories))
	tags, _ := json.Marshal(nonNil(p.Tags))
	uses, _ := json.Marshal(nonNil(p.UseCases))
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrJSON, _ := json.Marshal(attrs)

	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO products (id, name, slug, brand, categories, price_cents, sale_price_cents, on_sale,
		                       short_description, long_description, tags, use_cases, attributes, ai_notes,
		                       stock, weight_grams, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, slug = excluded.slug, brand = excluded.brand,
		   categories = excluded.categories, price_cents = excluded.price_cents,
		   sale_price_cents = excluded.sale_price_cents, on_sale = excluded.on_sale,
		   short_description = excluded.short_description, long_description = excluded.long_description,
		   tags = excluded.tags, use_cases = excluded.use_cases, attributes = excluded.attributes,
		   ai_notes = excluded.ai_notes, stock = excluded.stock, weight_grams = excluded.weight_grams`,
		p.ID, p.Name, p.Slug, p.Brand, string(cats), p.PriceCents, p.SalePriceCents, boolInt(p.OnSale),
		p.ShortDescription, p.LongDescription, string(tags), string(uses), string(attrJSON), p.AINotes,
		p.Stock, p.WeightGrams, formatTime(s.db.Now()),
	)
	if err != nil {
		return mcp.Database("saving product", err)
	}
	return nil
}

const productColumns = `p.id, p.name, p.slug, p.brand, p.categories, p.price_cents, p.sale_price_cents, p.on_sale,
	p.short_description, p.long_description, p.tags, p.use_cases, p.attributes, p.ai_notes,
	p.stock, p.weight_grams, p.created_at`

// Get returns a product by id, or nil, nil.
func (s *ProductStore) Get(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mcp.Database("loading product", err)
	}
	return p, nil
}

// GetMany loads the products with the given ids. Missing ids are absent
// from the result map.
func (s *ProductStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, mcp.Database("loading products", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mcp.Database("scanning product", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, mcp.Database("loading products", err)
	}
	return out, nil
}

// Search runs a full-text query with structured filters. Text results are
// ordered by relevance, everything else by name.
func (s *ProductStore) Search(ctx context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	var (
		from  = `products p`
		where []string
		args  []any
		order = `p.name, p.id`
	)

	if match := ftsQuery(q.Text); match != "" {
		from = `products_fts JOIN products p ON p.rowid = products_fts.rowid`
		where = append(where, `products_fts MATCH ?`)
		args = append(args, match)
		order = `bm25(products_fts), p.name`
	}
	if q.Category != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(p.categories) WHERE lower(value) = lower(?))`)
		args = append(args, q.Category)
	}
	if q.Brand != "" {
		where = append(where, `lower(p.brand) = lower(?)`)
		args = append(args, q.Brand)
	}
	if len(q.Tags) > 0 {
		var ors []string
		for _, t := range q.Tags {
			ors = append(ors,
				`EXISTS (SELECT 1 FROM json_each(p.tags) WHERE lower(value) = lower(?))`,
				`EXISTS (SELECT 1 FROM json_each(p.use_cases) WHERE lower(value) = lower(?))`)
			args = append(args, t, t)
		}
		where = append(where, `(`+strings.Join(ors, ` OR `)+`)`)
	}
	if q.MaxPriceCents > 0 {
		where = append(where, effectivePriceSQL+` <= ?`)
		args = append(args, q.MaxPriceCents)
	}
	if q.InStockOnly {
		where = append(where, `p.stock > 0`)
	}

	query := `SELECT ` + productColumns + ` FROM ` + from
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY ` + order + ` LIMIT ?`
	args = append(args, limit)

	return s.queryProducts(ctx, "searching products", query, args...)
}

// List returns a page of the catalog ordered by name.
func (s *ProductStore) List(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	return s.queryProducts(ctx, "listing products",
		`SELECT `+productColumns+` FROM products p ORDER BY p.name, p.id LIMIT ? OFFSET ?`, limit, offset)
}

// Count returns the number of products in the catalog.
func (s *ProductStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, mcp.Database("counting products", err)
	}
	return n, nil
}

func (s *ProductStore) queryProducts(ctx context.Context, op, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mcp.Database(op, err)
	}
	defer rows.Close()

	out := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mcp.Database(op, err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, mcp.Database(op, err)
	}
	return out, nil
}

const effectivePriceSQL = `(CASE WHEN p.on_sale = 1 AND p.sale_price_cents > 0 THEN p.sale_price_cents ELSE p.price_cents END)`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p                       domain.Product
		cats, tags, uses, attrs string
		onSale                  int
		created                 string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Brand, &cats, &p.PriceCents, &p.SalePriceCents, &onSale,
		&p.ShortDescription, &p.LongDescription, &tags, &uses, &attrs, &p.AINotes,
		&p.Stock, &p.WeightGrams, &created)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cats), &p.Categories); err != nil {
		return nil, fmt.Errorf("decoding categories: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if err := json.Unmarshal([]byte(uses), &p.UseCases); err != nil {
		return nil, fmt.Errorf("decoding use cases: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}
	p.OnSale = onSale == 1
	p.CreatedAt = parseTime(created)
	return &p, nil
}

// ftsQuery turns free text into an FTS5 expression of quoted prefix terms,
// so user input can never inject FTS syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+w+`"*`)
	}
	return strings.Join(terms, " ")
}

// Slugify lowercases s and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "-")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
