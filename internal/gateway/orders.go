package gateway

import (
	"context"
	"strings"

	"github.com/soyeahso/mercora/internal/commerce"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/hooks"
	"github.com/soyeahso/mercora/internal/mcp"
)

// checkoutItems picks the lines a checkout tool works on: inline items
// when given, else the named session's cart. fromCart reports the latter.
func (s *Server) checkoutItems(ctx context.Context, tr *toolRequest, ref domain.SessionRef, inline []domain.CartItem) (items []domain.CartItem, sess *domain.Session, fromCart bool, err error) {
	sess, err = s.loadSession(ctx, tr, ref)
	if err != nil {
		return nil, nil, false, err
	}
	if len(inline) > 0 {
		items, err = s.normalizeCart(inline, "items")
		return items, sess, false, err
	}
	if sess == nil {
		return nil, nil, false, mcp.Validation("session_id", "is required when no items are given")
	}
	if len(sess.Cart) == 0 {
		return nil, nil, false, mcp.Validation("items", "cart is empty")
	}
	return sess.Cart, sess, true, nil
}

func validateAddress(a domain.Address) error {
	required := []struct {
		field, value string
	}{
		{"shipping_address.line1", a.Line1},
		{"shipping_address.city", a.City},
		{"shipping_address.postal_code", a.PostalCode},
		{"shipping_address.country", a.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return mcp.Validation(r.field, "is required")
		}
	}
	return nil
}

type orderRequest struct {
	SessionID       string                  `json:"session_id"`
	Items           []domain.CartItem       `json:"items"`
	ShippingMethod  string                  `json:"shipping_method"`
	ShippingAddress domain.Address          `json:"shipping_address"`
	PaymentMethod   *commerce.PaymentMethod `json:"payment_method"`
}

// orderTool places an order. It counts against the agent's hourly
// operation limit once the request is known to be well formed.
func (s *Server) orderTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req orderRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		return mcp.Result{}, err
	}

	items, sess, fromCart, err := s.checkoutItems(ctx, tr, domain.ParseSessionRef(req.SessionID), req.Items)
	if err != nil {
		return mcp.Result{}, err
	}
	lines, err := s.pricedLines(ctx, items, true)
	if err != nil {
		return mcp.Result{}, err
	}
	quote, err := s.deps.Pricing.Estimate(lines, req.ShippingMethod)
	if err != nil {
		return mcp.Result{}, err
	}

	if req.PaymentMethod != nil {
		check := commerce.ValidatePayment(*req.PaymentMethod, quote.TotalCents, s.deps.DB.Now())
		if !check.Valid {
			issue := check.Issues[0]
			return mcp.Result{}, mcp.Validation("payment_method."+issue.Field, issue.Message)
		}
	}

	release, err := s.deps.Limiter.Reserve(ctx, tr.agent, domain.WindowHour)
	if err != nil {
		return mcp.Result{}, err
	}

	o := domain.Order{
		AgentID:         tr.agent.ID,
		Lines:           quote.OrderLines(),
		SubtotalCents:   quote.SubtotalCents,
		ShippingCents:   quote.ShippingCents,
		TaxCents:        quote.TaxCents,
		TotalCents:      quote.TotalCents,
		Currency:        quote.Currency,
		ShippingMethod:  quote.ShippingMethod,
		ShippingAddress: req.ShippingAddress,
	}
	if fromCart {
		o.SessionID = sess.ID
	}

	placed, err := s.deps.Orders.Place(ctx, o)
	if err != nil {
		release(context.WithoutCancel(ctx))
		return mcp.Result{}, err
	}

	s.metrics.OrderPlaced(placed.TotalCents)
	s.emit(ctx, hooks.EventOrderPlaced, map[string]any{
		"order_id":    placed.ID,
		"agent_id":    placed.AgentID,
		"session_id":  placed.SessionID,
		"total":       commerce.FormatCents(placed.TotalCents),
		"currency":    placed.Currency,
		"item_count":  quote.ItemCount,
		"ship_method": placed.ShippingMethod,
	})

	prefs := tr.userContext(sess).Preferences
	products := make([]domain.Product, len(lines))
	for i, l := range lines {
		products[i] = *l.Product
	}
	return mcp.Result{
		Data:         map[string]any{"order": placed, "summary": quote},
		CanFulfill:   100,
		Satisfaction: commerce.MeanSatisfaction(products, prefs),
		NextActions:  []string{"Track order", "Check order status"},
	}, nil
}

type orderLookupRequest struct {
	OrderID string `json:"order_id"`
}

// callerOrder loads an order the calling agent placed. Orders of other
// agents are reported as missing unless the caller is an admin.
func (s *Server) callerOrder(ctx context.Context, tr *toolRequest) (*domain.Order, error) {
	var req orderLookupRequest
	if err := tr.bind(&req); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(tr.query("order_id", req.OrderID))
	if id == "" {
		return nil, mcp.Validation("order_id", "is required")
	}

	o, err := s.deps.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil || (o.AgentID != tr.agent.ID && !tr.agent.Can(domain.PermissionAdmin)) {
		e := mcp.NotFound("order", id)
		e.Field = "order_id"
		return nil, e
	}
	return o, nil
}

func orderNextActions(o *domain.Order) []string {
	switch o.Status {
	case domain.OrderShipped:
		return []string{"Track order"}
	case domain.OrderDelivered:
		return []string{"Search for products"}
	case domain.OrderCancelled:
		return []string{"Place a new order", "Request recommendations"}
	default:
		return []string{"Check order status later", "Track order"}
	}
}

func (s *Server) orderStatusTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	o, err := s.callerOrder(ctx, tr)
	if err != nil {
		return mcp.Result{}, err
	}
	if o.SessionID != "" {
		tr.call.Session(o.SessionID)
	}
	return mcp.Result{
		Data:        o,
		CanFulfill:  100,
		NextActions: orderNextActions(o),
	}, nil
}

func (s *Server) orderTrackTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	o, err := s.callerOrder(ctx, tr)
	if err != nil {
		return mcp.Result{}, err
	}
	if o.SessionID != "" {
		tr.call.Session(o.SessionID)
	}
	return mcp.Result{
		Data:        commerce.Track(o),
		CanFulfill:  100,
		NextActions: orderNextActions(o),
	}, nil
}

type paymentRequest struct {
	SessionID     string                 `json:"session_id"`
	PaymentMethod commerce.PaymentMethod `json:"payment_method"`
	Amount        string                 `json:"amount"`
}

// paymentTool checks a payment method against an explicit amount or the
// session cart's total. A rejected method is a successful call that
// reports valid=false.
func (s *Server) paymentTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req paymentRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	if req.PaymentMethod.Type == "" {
		return mcp.Result{}, mcp.Validation("payment_method.type", "is required")
	}

	var amount int64
	if req.Amount != "" {
		cents, err := commerce.ParseAmount(req.Amount)
		if err != nil {
			return mcp.Result{}, mcp.Validation("amount", "must be a decimal amount")
		}
		amount = cents
		if _, err := s.loadSession(ctx, tr, domain.ParseSessionRef(req.SessionID)); err != nil {
			return mcp.Result{}, err
		}
	} else {
		items, _, _, err := s.checkoutItems(ctx, tr, domain.ParseSessionRef(req.SessionID), nil)
		if err != nil {
			return mcp.Result{}, err
		}
		lines, err := s.pricedLines(ctx, items, false)
		if err != nil {
			return mcp.Result{}, err
		}
		quote, err := s.deps.Pricing.Estimate(lines, commerce.ShipStandard)
		if err != nil {
			return mcp.Result{}, err
		}
		amount = quote.TotalCents
	}

	check := commerce.ValidatePayment(req.PaymentMethod, amount, s.deps.DB.Now())
	res := mcp.Result{
		Data:        check,
		NextActions: []string{"Correct the payment details", "Use another payment method"},
	}
	if check.Valid {
		res.CanFulfill = 100
		res.NextActions = []string{"Place order"}
	}
	return res, nil
}

type shippingRequest struct {
	SessionID string            `json:"session_id"`
	Items     []domain.CartItem `json:"items"`
	Subtotal  string            `json:"subtotal"`
}

// shippingTool quotes every delivery option for inline items, an explicit
// subtotal or the session cart.
func (s *Server) shippingTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req shippingRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}

	var subtotal int64
	if req.Subtotal != "" && len(req.Items) == 0 {
		cents, err := commerce.ParseAmount(req.Subtotal)
		if err != nil || cents < 0 {
			return mcp.Result{}, mcp.Validation("subtotal", "must be a non-negative decimal amount")
		}
		subtotal = cents
		if _, err := s.loadSession(ctx, tr, domain.ParseSessionRef(req.SessionID)); err != nil {
			return mcp.Result{}, err
		}
	} else {
		items, _, _, err := s.checkoutItems(ctx, tr, domain.ParseSessionRef(req.SessionID), req.Items)
		if err != nil {
			return mcp.Result{}, err
		}
		lines, err := s.pricedLines(ctx, items, false)
		if err != nil {
			return mcp.Result{}, err
		}
		quote, err := s.deps.Pricing.Estimate(lines, commerce.ShipStandard)
		if err != nil {
			return mcp.Result{}, err
		}
		subtotal = quote.SubtotalCents
	}

	remaining := s.deps.Pricing.FreeShippingRemaining(subtotal)
	next := []string{"Place order"}
	if remaining > 0 {
		next = []string{"Place order", "Add items to qualify for free shipping"}
	}
	return mcp.Result{
		Data: map[string]any{
			"subtotal":                commerce.FormatCents(subtotal),
			"options":                 s.deps.Pricing.ShippingOptions(subtotal, s.deps.DB.Now()),
			"free_shipping_threshold": commerce.FormatCents(s.deps.Pricing.FreeShippingCents),
			"free_shipping_remaining": commerce.FormatCents(remaining),
		},
		CanFulfill:  100,
		NextActions: next,
	}, nil
}
