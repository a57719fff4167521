package commerce

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
)

// Shipping methods.
const (
	ShipStandard  = "standard"
	ShipExpress   = "express"
	ShipOvernight = "overnight"
)

type shippingRate struct {
	method    string
	carrier   string
	costCents int64
	daysMin   int
	daysMax   int
}

var shippingRates = []shippingRate{
	{ShipStandard, "USPS", 599, 5, 7},
	{ShipExpress, "UPS", 1499, 2, 3},
	{ShipOvernight, "FedEx", 2999, 1, 1},
}

// Pricing computes totals for a currency, tax rate and free shipping
// threshold.
type Pricing struct {
	Currency          string
	TaxRate           decimal.Decimal // fraction, 0.0825 for 8.25%
	FreeShippingCents int64
}

// NewPricing builds pricing from a tax percentage and a free shipping
// threshold in major units.
func NewPricing(currency string, taxPercent, freeShipping float64) Pricing {
	return Pricing{
		Currency:          currency,
		TaxRate:           decimal.NewFromFloat(taxPercent).Div(hundred),
		FreeShippingCents: FloatToCents(freeShipping),
	}
}

// Line is a product and a quantity being priced.
type Line struct {
	Product  *domain.Product
	Quantity int
}

// LineQuote is one priced line.
type LineQuote struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
	InStock   bool   `json:"in_stock"`

	unitCents  int64
	totalCents int64
}

// Quote is a priced cart.
type Quote struct {
	Lines          []LineQuote `json:"lines"`
	ItemCount      int         `json:"item_count"`
	Subtotal       string      `json:"subtotal"`
	Shipping       string      `json:"shipping"`
	ShippingMethod string      `json:"shipping_method"`
	Tax            string      `json:"tax"`
	TaxRate        string      `json:"tax_rate"`
	Total          string      `json:"total"`
	Currency       string      `json:"currency"`
	FreeShipping   bool        `json:"free_shipping"`

	SubtotalCents int64 `json:"-"`
	ShippingCents int64 `json:"-"`
	TaxCents      int64 `json:"-"`
	TotalCents    int64 `json:"-"`
}

// Estimate prices lines with the given shipping method. Tax applies to the
// merchandise subtotal only.
func (p Pricing) Estimate(lines []Line, method string) (Quote, error) {
	if method == "" {
		method = ShipStandard
	}
	rate, ok := findRate(method)
	if !ok {
		return Quote{}, mcp.Validation("shipping_method", "must be one of standard, express, overnight")
	}

	q := Quote{Lines: make([]LineQuote, 0, len(lines)), ShippingMethod: method, Currency: p.Currency}
	subtotal := decimal.Zero
	for _, l := range lines {
		unit := FromCents(l.Product.EffectivePriceCents())
		total := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		subtotal = subtotal.Add(total)
		q.ItemCount += l.Quantity
		q.Lines = append(q.Lines, LineQuote{
			ProductID:  l.Product.ID,
			Name:       l.Product.Name,
			Quantity:   l.Quantity,
			UnitPrice:  unit.StringFixed(2),
			LineTotal:  total.StringFixed(2),
			InStock:    l.Product.Available(l.Quantity),
			unitCents:  ToCents(unit),
			totalCents: ToCents(total),
		})
	}

	q.SubtotalCents = ToCents(subtotal)
	q.ShippingCents = p.shippingCost(rate, q.SubtotalCents)
	q.FreeShipping = len(lines) > 0 && q.ShippingCents == 0
	q.TaxCents = ToCents(subtotal.Mul(p.TaxRate))
	q.TotalCents = q.SubtotalCents + q.ShippingCents + q.TaxCents

	q.Subtotal = FormatCents(q.SubtotalCents)
	q.Shipping = FormatCents(q.ShippingCents)
	q.Tax = FormatCents(q.TaxCents)
	q.Total = FormatCents(q.TotalCents)
	q.TaxRate = p.TaxRate.Mul(hundred).StringFixed(2) + "%"
	return q, nil
}

// OrderLines converts a quote into order lines.
func (q Quote) OrderLines() []domain.OrderLine {
	out := make([]domain.OrderLine, len(q.Lines))
	for i, l := range q.Lines {
		out[i] = domain.OrderLine{
			ProductID:      l.ProductID,
			Name:           l.Name,
			Quantity:       l.Quantity,
			UnitPriceCents: l.unitCents,
			LineTotalCents: l.totalCents,
		}
	}
	return out
}

// ShippingQuote is one delivery option.
type ShippingQuote struct {
	Method            string    `json:"method"`
	Carrier           string    `json:"carrier"`
	Cost              string    `json:"cost"`
	Free              bool      `json:"free"`
	DaysMin           int       `json:"days_min"`
	DaysMax           int       `json:"days_max"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`

	CostCents int64 `json:"-"`
}

// ShippingOptions quotes every method for a subtotal. Delivery dates count
// calendar days from now.
func (p Pricing) ShippingOptions(subtotalCents int64, now time.Time) []ShippingQuote {
	out := make([]ShippingQuote, 0, len(shippingRates))
	for _, r := range shippingRates {
		cost := p.shippingCost(r, subtotalCents)
		out = append(out, ShippingQuote{
			Method:            r.method,
			Carrier:           r.carrier,
			Cost:              FormatCents(cost),
			Free:              cost == 0,
			DaysMin:           r.daysMin,
			DaysMax:           r.daysMax,
			EstimatedDelivery: now.AddDate(0, 0, r.daysMax).Truncate(24 * time.Hour),
			CostCents:         cost,
		})
	}
	return out
}

// FreeShippingRemaining is how much more must be spent for free standard
// shipping, or zero.
func (p Pricing) FreeShippingRemaining(subtotalCents int64) int64 {
	if p.FreeShippingCents <= 0 || subtotalCents >= p.FreeShippingCents {
		return 0
	}
	return p.FreeShippingCents - subtotalCents
}

func (p Pricing) shippingCost(r shippingRate, subtotalCents int64) int64 {
	if subtotalCents == 0 {
		return 0
	}
	if r.method == ShipStandard && p.FreeShippingCents > 0 && subtotalCents >= p.FreeShippingCents {
		return 0
	}
	return r.costCents
}

func findRate(method string) (shippingRate, bool) {
	for _, r := range shippingRates {
		if r.method == method {
			return r, true
		}
	}
	return shippingRate{}, false
}

// CarrierFor returns the carrier that handles a shipping method.
func CarrierFor(method string) string {
	if r, ok := findRate(method); ok {
		return r.carrier
	}
	return "USPS"
}

// TransitDays returns the maximum transit time for a shipping method.
func TransitDays(method string) int {
	if r, ok := findRate(method); ok {
		return r.daysMax
	}
	return 7
}

// String implements fmt.Stringer for logs.
func (q Quote) String() string {
	return fmt.Sprintf("%d items, total %s %s", q.ItemCount, q.Total, q.Currency)
}
