package gateway

import (
	"context"
	"strings"

	"github.com/soyeahso/mercora/internal/commerce"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
)

const (
	maxSearchLimit       = 50
	defaultRecommendSize = 5
	maxRecommendSize     = 20
	maxRequirements      = 50
)

// productView is a product with its display price.
type productView struct {
	domain.Product
	Price   string `json:"price"`
	InStock bool   `json:"in_stock"`
}

func viewProducts(products []domain.Product) []productView {
	out := make([]productView, len(products))
	for i, p := range products {
		out[i] = productView{
			Product: p,
			Price:   commerce.FormatCents(p.EffectivePriceCents()),
			InStock: p.Stock > 0,
		}
	}
	return out
}

// priceCap converts an optional max price to cents and caps it at the
// shopper's budget. Zero means no cap.
func priceCap(maxPrice *float64, prefs *domain.Preferences) (int64, error) {
	var capCents int64
	if maxPrice != nil {
		if *maxPrice < 0 {
			return 0, mcp.Validation("max_price", "must not be negative")
		}
		capCents = commerce.FloatToCents(*maxPrice)
	}
	if prefs != nil && prefs.Budget != nil && *prefs.Budget > 0 {
		budget := commerce.FloatToCents(*prefs.Budget)
		if capCents == 0 || budget < capCents {
			capCents = budget
		}
	}
	return capCents, nil
}

type searchRequest struct {
	SessionID   string   `json:"session_id"`
	Query       string   `json:"query"`
	Category    string   `json:"category"`
	Brand       string   `json:"brand"`
	MaxPrice    *float64 `json:"max_price"`
	Tags        []string `json:"tags"`
	InStockOnly bool     `json:"in_stock_only"`
	Limit       int      `json:"limit"`
}

// searchTool runs a catalog search. The shopper's budget caps the price.
func (s *Server) searchTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req searchRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	if req.Limit < 0 || req.Limit > maxSearchLimit {
		return mcp.Result{}, mcp.Validation("limit", "must be between 1 and 50")
	}

	sess, err := s.loadSession(ctx, tr, domain.ParseSessionRef(req.SessionID))
	if err != nil {
		return mcp.Result{}, err
	}
	prefs := tr.userContext(sess).Preferences

	capCents, err := priceCap(req.MaxPrice, prefs)
	if err != nil {
		return mcp.Result{}, err
	}

	products, err := s.deps.Products.Search(ctx, domain.ProductQuery{
		Text:          strings.TrimSpace(req.Query),
		Category:      req.Category,
		Brand:         req.Brand,
		Tags:          req.Tags,
		MaxPriceCents: capCents,
		InStockOnly:   req.InStockOnly,
		Limit:         req.Limit,
	})
	if err != nil {
		return mcp.Result{}, err
	}

	res := mcp.Result{
		Data: map[string]any{
			"products":        viewProducts(products),
			"count":           len(products),
			"query":           req.Query,
			"max_price_cents": capCents,
		},
		Satisfaction: commerce.MeanSatisfaction(products, prefs),
		NextActions:  []string{"Broaden the search", "Request recommendations"},
	}
	if len(products) > 0 {
		res.CanFulfill = 100
		res.NextActions = []string{"Add items to cart", "Assess requirements", "Request recommendations"}
	}
	return res, nil
}

type recommendRequest struct {
	SessionID string   `json:"session_id"`
	Query     string   `json:"query"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	MaxPrice  *float64 `json:"max_price"`
	Limit     int      `json:"limit"`
}

// recommendTool ranks in-stock candidates against the shopper's
// preferences.
func (s *Server) recommendTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req recommendRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	if req.Limit == 0 {
		req.Limit = defaultRecommendSize
	}
	if req.Limit < 0 || req.Limit > maxRecommendSize {
		return mcp.Result{}, mcp.Validation("limit", "must be between 1 and 20")
	}

	sess, err := s.loadSession(ctx, tr, domain.ParseSessionRef(req.SessionID))
	if err != nil {
		return mcp.Result{}, err
	}
	prefs := tr.userContext(sess).Preferences

	capCents, err := priceCap(req.MaxPrice, prefs)
	if err != nil {
		return mcp.Result{}, err
	}

	candidates, err := s.deps.Products.Search(ctx, domain.ProductQuery{
		Text:          strings.TrimSpace(req.Query),
		Category:      req.Category,
		Tags:          req.Tags,
		MaxPriceCents: capCents,
		InStockOnly:   true,
		Limit:         maxSearchLimit,
	})
	if err != nil {
		return mcp.Result{}, err
	}

	recs := commerce.Recommend(candidates, prefs, req.Limit)
	res := mcp.Result{
		Data:            map[string]any{"count": len(recs), "candidates": len(candidates)},
		Recommendations: recs,
		NextActions:     []string{"Broaden the search", "Update shopper preferences"},
	}
	if len(recs) > 0 {
		var sum float64
		for _, r := range recs {
			sum += r.Score
		}
		res.CanFulfill = 100
		res.Satisfaction = sum / float64(len(recs))
		res.NextActions = []string{"Add recommended items to cart", "Assess requirements"}
	}
	return res, nil
}

type requirementInput struct {
	ProductID string `json:"product_id"`
	Query     string `json:"query"`
	Quantity  int    `json:"quantity"`
}

type assessRequest struct {
	SessionID    string             `json:"session_id"`
	Requirements []requirementInput `json:"requirements"`
}

// assessTool reports how much of a shopping list the catalog can fill.
func (s *Server) assessTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req assessRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	if len(req.Requirements) == 0 {
		return mcp.Result{}, mcp.Validation("requirements", "must contain at least one item")
	}
	if len(req.Requirements) > maxRequirements {
		return mcp.Result{}, mcp.Validation("requirements", "must contain at most 50 items")
	}

	var ids []string
	for i := range req.Requirements {
		r := &req.Requirements[i]
		r.ProductID = strings.TrimSpace(r.ProductID)
		r.Query = strings.TrimSpace(r.Query)
		if r.ProductID == "" && r.Query == "" {
			return mcp.Result{}, mcp.Validation("requirements", "each item needs a product_id or a query")
		}
		if r.Quantity < 0 {
			return mcp.Result{}, mcp.Validation("requirements", "quantity must not be negative")
		}
		if r.Quantity == 0 {
			r.Quantity = 1
		}
		if r.ProductID != "" {
			ids = append(ids, r.ProductID)
		}
	}

	sess, err := s.loadSession(ctx, tr, domain.ParseSessionRef(req.SessionID))
	if err != nil {
		return mcp.Result{}, err
	}
	prefs := tr.userContext(sess).Preferences

	byID, err := s.deps.Products.GetMany(ctx, ids)
	if err != nil {
		return mcp.Result{}, err
	}

	reqs := make([]commerce.Requirement, 0, len(req.Requirements))
	for _, r := range req.Requirements {
		cr := commerce.Requirement{Label: r.ProductID, Quantity: r.Quantity}
		if r.ProductID != "" {
			cr.Product = byID[r.ProductID]
		} else {
			cr.Label = r.Query
			cr.Product, err = s.bestMatch(ctx, r.Query, r.Quantity)
			if err != nil {
				return mcp.Result{}, err
			}
		}
		reqs = append(reqs, cr)
	}

	a := commerce.Assess(reqs, prefs)
	next := []string{"Add items to cart", "Estimate cart total"}
	if a.CanFulfillPercentage < 100 {
		next = []string{"Request recommendations for missing items", "Reduce quantities", "Add available items to cart"}
	}
	return mcp.Result{
		Data:         a,
		CanFulfill:   a.CanFulfillPercentage,
		Satisfaction: a.EstimatedSatisfaction,
		NextActions:  next,
	}, nil
}

// bestMatch returns the most relevant product for query, preferring one
// that has qty units in stock.
func (s *Server) bestMatch(ctx context.Context, query string, qty int) (*domain.Product, error) {
	matches, err := s.deps.Products.Search(ctx, domain.ProductQuery{Text: query, Limit: 10})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	for i := range matches {
		if matches[i].Available(qty) {
			return &matches[i], nil
		}
	}
	return &matches[0], nil
}
