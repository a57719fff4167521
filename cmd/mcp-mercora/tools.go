package main

import "strings"

// Property describes one tool argument in the advertised input schema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
}

// InputSchema is the JSON schema of a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Tool is a tool as listed to the MCP client.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// route maps a tool onto a gateway endpoint. Path segments written as
// {name} are filled from the argument of that name, which is then left out
// of the request body.
type route struct {
	Tool
	method string
	path   string
}

func (r route) pathParams() []string {
	var names []string
	for _, seg := range strings.Split(r.path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			names = append(names, seg[1:len(seg)-1])
		}
	}
	return names
}

func ptr(f float64) *float64 { return &f }

var (
	sessionProp = Property{Type: "string", Description: "Shopping session id; omit or use \"temp\" for a one-off call"}
	itemsProp   = Property{
		Type:        "array",
		Description: "Products and quantities, e.g. [{\"product_id\":\"tent-2p\",\"quantity\":1}]",
		Items:       &Property{Type: "object"},
	}
	shippingMethodProp = Property{Type: "string", Enum: []string{"standard", "express", "overnight"}}
	paymentProp        = Property{
		Type:        "object",
		Description: "type (credit_card, paypal, digital_wallet) plus card_number, expiry_month, expiry_year, cvv, email or token",
	}
)

func schema(props map[string]Property, required ...string) InputSchema {
	if props == nil {
		props = map[string]Property{}
	}
	return InputSchema{Type: "object", Properties: props, Required: required}
}

// routes is the tool surface exposed over stdio.
var routes = []route{
	{
		Tool: Tool{
			Name:        "create_session",
			Description: "Start a shopping session, optionally with the shopper's preferences",
			InputSchema: schema(map[string]Property{
				"user_context": {Type: "object", Description: "user_id, preferences {budget, brands, activities, location, experience_level} and session_context"},
			}),
		},
		method: "POST", path: "/sessions",
	},
	{
		Tool: Tool{
			Name:        "get_session",
			Description: "Fetch a session with its cart and preferences",
			InputSchema: schema(map[string]Property{"session_id": sessionProp}, "session_id"),
		},
		method: "GET", path: "/sessions/{session_id}",
	},
	{
		Tool: Tool{
			Name:        "search_products",
			Description: "Search the catalog by text, category, brand, tags and price",
			InputSchema: schema(map[string]Property{
				"session_id":    sessionProp,
				"query":         {Type: "string", Description: "Full-text query"},
				"category":      {Type: "string"},
				"brand":         {Type: "string"},
				"tags":          {Type: "array", Items: &Property{Type: "string"}},
				"max_price":     {Type: "number", Description: "Maximum price in currency units", Minimum: ptr(0)},
				"in_stock_only": {Type: "boolean"},
				"limit":         {Type: "integer", Minimum: ptr(1), Maximum: ptr(50)},
			}),
		},
		method: "POST", path: "/tools/search",
	},
	{
		Tool: Tool{
			Name:        "recommend_products",
			Description: "Rank products against the shopper's preferences",
			InputSchema: schema(map[string]Property{
				"session_id": sessionProp,
				"query":      {Type: "string"},
				"category":   {Type: "string"},
				"tags":       {Type: "array", Items: &Property{Type: "string"}},
				"max_price":  {Type: "number", Minimum: ptr(0)},
				"limit":      {Type: "integer", Minimum: ptr(1), Maximum: ptr(20)},
			}),
		},
		method: "POST", path: "/tools/recommend",
	},
	{
		Tool: Tool{
			Name:        "assess_requirements",
			Description: "Check how much of a shopping list the catalog can fulfill",
			InputSchema: schema(map[string]Property{
				"session_id": sessionProp,
				"requirements": {
					Type:        "array",
					Description: "Entries of {product_id or query, quantity}",
					Items:       &Property{Type: "object"},
				},
			}, "requirements"),
		},
		method: "POST", path: "/tools/assess",
	},
	{
		Tool: Tool{
			Name:        "cart_add",
			Description: "Add several products to a session cart",
			InputSchema: schema(map[string]Property{"session_id": sessionProp, "items": itemsProp}, "items"),
		},
		method: "POST", path: "/tools/cart/bulk-add",
	},
	{
		Tool: Tool{
			Name:        "cart_update",
			Description: "Set the quantity of one cart line; 0 removes it",
			InputSchema: schema(map[string]Property{
				"session_id": sessionProp,
				"product_id": {Type: "string"},
				"quantity":   {Type: "integer", Minimum: ptr(0)},
			}, "session_id", "product_id", "quantity"),
		},
		method: "POST", path: "/tools/cart/update",
	},
	{
		Tool: Tool{
			Name:        "cart_estimate",
			Description: "Price a cart: subtotal, shipping, tax and total",
			InputSchema: schema(map[string]Property{
				"session_id":      sessionProp,
				"shipping_method": shippingMethodProp,
			}, "session_id"),
		},
		method: "POST", path: "/tools/cart/estimate",
	},
	{
		Tool: Tool{
			Name:        "cart_clear",
			Description: "Empty a session cart",
			InputSchema: schema(map[string]Property{"session_id": sessionProp}, "session_id"),
		},
		method: "POST", path: "/tools/cart/clear",
	},
	{
		Tool: Tool{
			Name:        "place_order",
			Description: "Place an order from inline items or the session cart",
			InputSchema: schema(map[string]Property{
				"session_id":       sessionProp,
				"items":            itemsProp,
				"shipping_method":  shippingMethodProp,
				"shipping_address": {Type: "object", Description: "name, line1, line2, city, region, postal_code, country"},
				"payment_method":   paymentProp,
			}, "shipping_address"),
		},
		method: "POST", path: "/tools/order",
	},
	{
		Tool: Tool{
			Name:        "order_status",
			Description: "Look up an order and its status history",
			InputSchema: schema(map[string]Property{"order_id": {Type: "string"}}, "order_id"),
		},
		method: "POST", path: "/tools/order/status",
	},
	{
		Tool: Tool{
			Name:        "track_order",
			Description: "Carrier, tracking number and shipment events for an order",
			InputSchema: schema(map[string]Property{"order_id": {Type: "string"}}, "order_id"),
		},
		method: "POST", path: "/tools/order/track",
	},
	{
		Tool: Tool{
			Name:        "validate_payment",
			Description: "Check a payment method against an amount or the cart total",
			InputSchema: schema(map[string]Property{
				"session_id":     sessionProp,
				"payment_method": paymentProp,
				"amount":         {Type: "string", Description: "Amount such as \"86.58\"; defaults to the cart total"},
			}, "payment_method"),
		},
		method: "POST", path: "/tools/payment/validate",
	},
	{
		Tool: Tool{
			Name:        "shipping_options",
			Description: "Quote shipping methods for a subtotal, item list or cart",
			InputSchema: schema(map[string]Property{
				"session_id": sessionProp,
				"items":      itemsProp,
				"subtotal":   {Type: "string"},
			}),
		},
		method: "POST", path: "/tools/shipping",
	},
}

func findRoute(name string) (route, bool) {
	for _, r := range routes {
		if r.Name == name {
			return r, true
		}
	}
	return route{}, false
}
