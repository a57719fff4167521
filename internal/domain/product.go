package domain

import (
	"slices"
	"strings"
	"time"
)

// Product is a catalog entry. Prices are integer cents.
type Product struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	Brand            string            `json:"brand,omitempty"`
	Categories       []string          `json:"categories"`
	PriceCents       int64             `json:"price_cents"`
	SalePriceCents   int64             `json:"sale_price_cents,omitempty"`
	OnSale           bool              `json:"on_sale"`
	ShortDescription string            `json:"short_description,omitempty"`
	LongDescription  string            `json:"long_description,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	UseCases         []string          `json:"use_cases,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	AINotes          string            `json:"ai_notes,omitempty"`
	Stock            int               `json:"stock"`
	WeightGrams      int               `json:"weight_grams,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// EffectivePriceCents is the sale price when the product is on sale with a
// sale price set, otherwise the regular price.
func (p *Product) EffectivePriceCents() int64 {
	if p.OnSale && p.SalePriceCents > 0 {
		return p.SalePriceCents
	}
	return p.PriceCents
}

// Available reports whether qty units can be fulfilled from stock.
func (p *Product) Available(qty int) bool {
	return qty > 0 && p.Stock >= qty
}

// HasTag reports a case-insensitive match against tags, use cases and categories.
func (p *Product) HasTag(tag string) bool {
	match := func(s string) bool { return strings.EqualFold(s, tag) }
	return slices.ContainsFunc(p.Tags, match) ||
		slices.ContainsFunc(p.UseCases, match) ||
		slices.ContainsFunc(p.Categories, match)
}

// ProductQuery filters a catalog search.
type ProductQuery struct {
	Text          string
	Category      string
	Brand         string
	Tags          []string
	MaxPriceCents int64
	InStockOnly   bool
	Limit         int
}
