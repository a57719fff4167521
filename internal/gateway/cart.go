package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/mercora/internal/commerce"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
)

// normalizeCart trims ids, merges duplicate lines and enforces the line
// and quantity limits. field names the request field in errors.
func (s *Server) normalizeCart(items []domain.CartItem, field string) ([]domain.CartItem, error) {
	out := make([]domain.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, mcp.Validation(field, "every item needs a product_id")
		}
		if it.Quantity < 1 {
			return nil, mcp.Validation(field, fmt.Sprintf("quantity for %s must be at least 1", id))
		}
		if i, ok := index[id]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[id] = len(out)
		out = append(out, domain.CartItem{ProductID: id, Quantity: it.Quantity})
	}

	maxQty := s.cfg.Session.MaxLineQuantity
	for _, it := range out {
		if maxQty > 0 && it.Quantity > maxQty {
			return nil, mcp.Validation(field, fmt.Sprintf("quantity for %s must be at most %d", it.ProductID, maxQty))
		}
	}
	if maxLines := s.cfg.Session.MaxCartItems; maxLines > 0 && len(out) > maxLines {
		return nil, mcp.Validation(field, fmt.Sprintf("must contain at most %d distinct products", maxLines))
	}
	return out, nil
}

// pricedLines loads the products behind items. Unknown products fail with
// RESOURCE_NOT_FOUND; when checkStock is set, short lines fail with
// INSUFFICIENT_STOCK.
func (s *Server) pricedLines(ctx context.Context, items []domain.CartItem, checkStock bool) ([]commerce.Line, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := s.deps.Products.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]commerce.Line, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			e := mcp.NotFound("product", it.ProductID)
			e.Field = "items"
			return nil, e
		}
		if checkStock && !p.Available(it.Quantity) {
			e := mcp.Errorf(mcp.CodeInsufficientStock, "only %d of %s in stock, %d requested", p.Stock, p.ID, it.Quantity)
			e.Field = "items"
			return nil, e
		}
		lines = append(lines, commerce.Line{Product: p, Quantity: it.Quantity})
	}
	return lines, nil
}

// cartView is a session cart with its priced estimate.
type cartView struct {
	SessionID string            `json:"session_id"`
	Items     []domain.CartItem `json:"items"`
	Estimate  commerce.Quote    `json:"estimate"`
}

// cartResult prices the session's cart into a tool result.
func (s *Server) cartResult(ctx context.Context, tr *toolRequest, sess *domain.Session, next []string) (mcp.Result, error) {
	lines, err := s.pricedLines(ctx, sess.Cart, false)
	if err != nil {
		return mcp.Result{}, err
	}
	quote, err := s.deps.Pricing.Estimate(lines, commerce.ShipStandard)
	if err != nil {
		return mcp.Result{}, err
	}

	prefs := tr.userContext(sess).Preferences
	available, requested := 0, 0
	products := make([]domain.Product, 0, len(lines))
	for _, l := range lines {
		requested += l.Quantity
		available += min(l.Product.Stock, l.Quantity)
		products = append(products, *l.Product)
	}

	return mcp.Result{
		Data:         cartView{SessionID: sess.ID, Items: sess.Cart, Estimate: quote},
		CanFulfill:   commerce.FulfillPercentage(available, requested),
		Satisfaction: commerce.MeanSatisfaction(products, prefs),
		NextActions:  next,
	}, nil
}

type bulkAddRequest struct {
	SessionID string            `json:"session_id"`
	Items     []domain.CartItem `json:"items"`
}

// bulkAddTool adds items to a cart, merging quantities with lines already
// there. Without a session one is created.
func (s *Server) bulkAddTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req bulkAddRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	if len(req.Items) == 0 {
		return mcp.Result{}, mcp.Validation("items", "must contain at least one item")
	}
	if _, err := s.normalizeCart(req.Items, "items"); err != nil {
		return mcp.Result{}, err
	}

	sess, err := s.cartSession(ctx, tr, domain.ParseSessionRef(req.SessionID))
	if err != nil {
		return mcp.Result{}, err
	}

	merged, err := s.normalizeCart(append(append([]domain.CartItem{}, sess.Cart...), req.Items...), "items")
	if err != nil {
		return mcp.Result{}, err
	}
	if _, err := s.pricedLines(ctx, merged, true); err != nil {
		return mcp.Result{}, err
	}
	if err := s.saveCart(ctx, tr, sess, merged); err != nil {
		return mcp.Result{}, err
	}
	return s.cartResult(ctx, tr, sess, []string{"Estimate cart total", "Get shipping options", "Place order"})
}

type cartUpdateRequest struct {
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

// cartUpdateTool sets one line's quantity. Zero removes the line.
func (s *Server) cartUpdateTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req cartUpdateRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	id := strings.TrimSpace(req.ProductID)
	if id == "" {
		return mcp.Result{}, mcp.Validation("product_id", "is required")
	}
	if req.Quantity == nil {
		return mcp.Result{}, mcp.Validation("quantity", "is required")
	}
	qty := *req.Quantity
	if qty < 0 {
		return mcp.Result{}, mcp.Validation("quantity", "must not be negative")
	}
	if maxQty := s.cfg.Session.MaxLineQuantity; maxQty > 0 && qty > maxQty {
		return mcp.Result{}, mcp.Validation("quantity", fmt.Sprintf("must be at most %d", maxQty))
	}

	sess, err := s.cartSession(ctx, tr, domain.ParseSessionRef(req.SessionID))
	if err != nil {
		return mcp.Result{}, err
	}

	cart := make([]domain.CartItem, 0, len(sess.Cart)+1)
	found := false
	for _, it := range sess.Cart {
		if it.ProductID == id {
			found = true
			if qty == 0 {
				continue
			}
			it.Quantity = qty
		}
		cart = append(cart, it)
	}
	if !found && qty > 0 {
		cart = append(cart, domain.CartItem{ProductID: id, Quantity: qty})
	}
	if qty > 0 {
		if _, err := s.normalizeCart(cart, "quantity"); err != nil {
			return mcp.Result{}, err
		}
		if _, err := s.pricedLines(ctx, []domain.CartItem{{ProductID: id, Quantity: qty}}, true); err != nil {
			return mcp.Result{}, err
		}
	}

	if err := s.saveCart(ctx, tr, sess, cart); err != nil {
		return mcp.Result{}, err
	}
	return s.cartResult(ctx, tr, sess, []string{"Estimate cart total", "Place order"})
}

type estimateRequest struct {
	SessionID      string `json:"session_id"`
	ShippingMethod string `json:"shipping_method"`
}

// estimateResponse is a priced cart with every delivery option.
type estimateResponse struct {
	commerce.Quote
	ShippingOptions       []commerce.ShippingQuote `json:"shipping_options"`
	FreeShippingRemaining string                   `json:"free_shipping_remaining"`
}

// estimateTool prices a stored session's cart.
func (s *Server) estimateTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req estimateRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	sess, err := s.requireSession(ctx, tr, domain.ParseSessionRef(req.SessionID))
	if err != nil {
		return mcp.Result{}, err
	}

	lines, err := s.pricedLines(ctx, sess.Cart, false)
	if err != nil {
		return mcp.Result{}, err
	}
	quote, err := s.deps.Pricing.Estimate(lines, req.ShippingMethod)
	if err != nil {
		return mcp.Result{}, err
	}

	available, requested := 0, 0
	for _, l := range lines {
		requested += l.Quantity
		available += min(l.Product.Stock, l.Quantity)
	}
	next := []string{"Validate payment method", "Place order"}
	if len(lines) == 0 {
		next = []string{"Add items to cart", "Search for products"}
	}

	return mcp.Result{
		Data: estimateResponse{
			Quote:                 quote,
			ShippingOptions:       s.deps.Pricing.ShippingOptions(quote.SubtotalCents, s.deps.DB.Now()),
			FreeShippingRemaining: commerce.FormatCents(s.deps.Pricing.FreeShippingRemaining(quote.SubtotalCents)),
		},
		CanFulfill:  commerce.FulfillPercentage(available, requested),
		NextActions: next,
	}, nil
}

type clearRequest struct {
	SessionID string `json:"session_id"`
}

// clearTool empties a stored session's cart.
func (s *Server) clearTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req clearRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	sess, err := s.requireSession(ctx, tr, domain.ParseSessionRef(req.SessionID))
	if err != nil {
		return mcp.Result{}, err
	}

	removed := len(sess.Cart)
	if err := s.saveCart(ctx, tr, sess, []domain.CartItem{}); err != nil {
		return mcp.Result{}, err
	}
	return mcp.Result{
		Data:        map[string]any{"session_id": sess.ID, "items": sess.Cart, "removed_lines": removed},
		CanFulfill:  100,
		NextActions: []string{"Search for products", "Request recommendations"},
	}, nil
}
