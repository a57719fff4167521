// Package catalog loads products from the storefront's CSV export.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/store"
)

// Columns every export carries. brand and stock are optional.
var requiredColumns = []string{
	"id", "name", "slug", "categories", "price", "sale_price", "on_sale",
	"short_description", "long_description", "tags", "use_cases", "attributes", "ai_notes",
}

// ErrNoRows is returned for a file with a header and nothing else.
var ErrNoRows = errors.New("catalog file has no product rows")

// Writer stores imported products.
type Writer interface {
	Upsert(ctx context.Context, p domain.Product) error
}

// RowError is a row that could not be parsed. Line counts the header as 1.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

// Result summarizes an import.
type Result struct {
	Imported int
	Skipped  []RowError
}

// Options tune an import.
type Options struct {
	// DefaultStock applies to rows without a stock column or value.
	DefaultStock int
}

// Import reads a CSV export from r and upserts every valid row. Rows that
// fail to parse are skipped and reported; a storage failure stops the
// import.
func Import(ctx context.Context, r io.Reader, w Writer, opts Options, log *logging.Logger) (Result, error) {
	log = log.Sub("catalog")

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, errors.New("catalog file is empty")
		}
		return Result{}, fmt.Errorf("reading header: %w", err)
	}
	cols, err := indexColumns(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
			continue
		}

		p, err := parseRow(cols, rec, opts)
		if err != nil {
			log.Warn().Int("line", line).Err(err).Msg("skipping catalog row")
			res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
			continue
		}
		if err := w.Upsert(ctx, p); err != nil {
			return res, fmt.Errorf("storing %s: %w", p.ID, err)
		}
		res.Imported++
	}

	if res.Imported == 0 && len(res.Skipped) == 0 {
		return res, ErrNoRows
	}
	log.Info().Int("imported", res.Imported).Int("skipped", len(res.Skipped)).Msg("catalog import finished")
	return res, nil
}

type columns map[string]int

func indexColumns(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("catalog header is missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) get(rec []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseRow(c columns, rec []string, opts Options) (domain.Product, error) {
	p := domain.Product{
		ID:               c.get(rec, "id"),
		Name:             c.get(rec, "name"),
		Slug:             c.get(rec, "slug"),
		Brand:            c.get(rec, "brand"),
		Categories:       splitList(c.get(rec, "categories")),
		OnSale:           parseFlag(c.get(rec, "on_sale")),
		ShortDescription: c.get(rec, "short_description"),
		LongDescription:  c.get(rec, "long_description"),
		Tags:             splitList(c.get(rec, "tags")),
		UseCases:         splitList(c.get(rec, "use_cases")),
		Attributes:       parseAttributes(c.get(rec, "attributes")),
		AINotes:          c.get(rec, "ai_notes"),
		Stock:            opts.DefaultStock,
	}
	if p.ID == "" {
		return p, errors.New("id is empty")
	}
	if p.Name == "" {
		return p, errors.New("name is empty")
	}
	if p.Slug == "" {
		p.Slug = store.Slugify(p.Name)
	}

	var err error
	if p.PriceCents, err = parseCents(c.get(rec, "price")); err != nil {
		return p, fmt.Errorf("price: %w", err)
	}
	if raw := c.get(rec, "sale_price"); raw != "" {
		if p.SalePriceCents, err = parseCents(raw); err != nil {
			return p, fmt.Errorf("sale_price: %w", err)
		}
	}
	if raw := c.get(rec, "stock"); raw != "" {
		if p.Stock, err = strconv.Atoi(raw); err != nil || p.Stock < 0 {
			return p, fmt.Errorf("stock: must be a non-negative integer, got %q", raw)
		}
	}
	return p, nil
}

// parseCents reads a price column, which holds integer cents.
func parseCents(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("is empty")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be non-negative integer cents, got %q", raw)
	}
	return n, nil
}

func parseFlag(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseAttributes reads "key:value" pairs separated by commas. Pairs
// without a colon are ignored.
func parseAttributes(raw string) map[string]string {
	var out map[string]string
	for _, pair := range splitList(raw) {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}

var _ Writer = (*store.ProductStore)(nil)
