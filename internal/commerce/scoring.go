package commerce

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/soyeahso/mercora/internal/domain"
)

// Satisfaction weights.
const (
	baseSatisfaction  = 0.5
	brandBonus        = 0.2
	activityBonusMax  = 0.2
	withinBudgetBonus = 0.1
)

// Satisfaction estimates in [0,1] how well a product fits the shopper's
// preferences. Without preferences every product scores the base value.
func Satisfaction(p *domain.Product, prefs *domain.Preferences) float64 {
	score := baseSatisfaction
	if prefs == nil {
		return score
	}

	if p.Brand != "" && slices.ContainsFunc(prefs.Brands, func(b string) bool { return strings.EqualFold(b, p.Brand) }) {
		score += brandBonus
	}

	if len(prefs.Activities) > 0 {
		matched := 0
		for _, a := range prefs.Activities {
			if p.HasTag(a) {
				matched++
			}
		}
		score += activityBonusMax * float64(matched) / float64(len(prefs.Activities))
	}

	if prefs.Budget != nil && FromCents(p.EffectivePriceCents()).InexactFloat64() <= *prefs.Budget {
		score += withinBudgetBonus
	}

	return math.Min(round2(score), 1)
}

// Requirement is one line an agent wants fulfilled. Product is nil when
// nothing in the catalog matched.
type Requirement struct {
	Label    string
	Product  *domain.Product
	Quantity int
}

// ItemAssessment reports whether one requirement can be met.
type ItemAssessment struct {
	Requirement  string  `json:"requirement"`
	ProductID    string  `json:"product_id,omitempty"`
	Name         string  `json:"name,omitempty"`
	Requested    int     `json:"requested"`
	Available    int     `json:"available"`
	CanFulfill   bool    `json:"can_fulfill"`
	UnitPrice    string  `json:"unit_price,omitempty"`
	Satisfaction float64 `json:"satisfaction"`
}

// Assessment summarizes whether a set of requirements can be fulfilled.
type Assessment struct {
	Items                 []ItemAssessment `json:"items"`
	RequestedUnits        int              `json:"requested_units"`
	AvailableUnits        int              `json:"available_units"`
	CanFulfillPercentage  float64          `json:"can_fulfill_percentage"`
	EstimatedSatisfaction float64          `json:"estimated_satisfaction"`
	Missing               []string         `json:"missing"`
}

// Assess computes fulfillment as the share of requested units in stock and
// satisfaction as the mean over matched products.
func Assess(reqs []Requirement, prefs *domain.Preferences) Assessment {
	a := Assessment{Items: make([]ItemAssessment, 0, len(reqs)), Missing: []string{}}
	var satSum float64
	matched := 0

	for _, r := range reqs {
		item := ItemAssessment{Requirement: r.Label, Requested: r.Quantity}
		a.RequestedUnits += r.Quantity

		if r.Product == nil {
			a.Missing = append(a.Missing, r.Label)
			a.Items = append(a.Items, item)
			continue
		}

		item.ProductID = r.Product.ID
		item.Name = r.Product.Name
		item.UnitPrice = FormatCents(r.Product.EffectivePriceCents())
		item.Available = min(r.Product.Stock, r.Quantity)
		item.CanFulfill = r.Product.Available(r.Quantity)
		item.Satisfaction = Satisfaction(r.Product, prefs)
		if !item.CanFulfill {
			a.Missing = append(a.Missing, r.Label)
		}

		a.AvailableUnits += item.Available
		satSum += item.Satisfaction
		matched++
		a.Items = append(a.Items, item)
	}

	a.CanFulfillPercentage = FulfillPercentage(a.AvailableUnits, a.RequestedUnits)
	if matched > 0 {
		a.EstimatedSatisfaction = round2(satSum / float64(matched))
	}
	return a
}

// FulfillPercentage is 100 × available / requested, rounded to one decimal.
// Nothing requested is trivially fulfilled.
func FulfillPercentage(available, requested int) float64 {
	if requested <= 0 {
		return 100
	}
	return math.Round(1000*float64(available)/float64(requested)) / 10
}

// MeanSatisfaction averages Satisfaction over products.
func MeanSatisfaction(products []domain.Product, prefs *domain.Preferences) float64 {
	if len(products) == 0 {
		return 0
	}
	var sum float64
	for i := range products {
		sum += Satisfaction(&products[i], prefs)
	}
	return round2(sum / float64(len(products)))
}

// Recommendation is a product with its fit score and the reasons for it.
type Recommendation struct {
	Product domain.Product `json:"product"`
	Score   float64        `json:"score"`
	Reasons []string       `json:"reasons"`
}

// Recommend ranks in-stock products by satisfaction and returns the top
// limit. Ties go to the cheaper product.
func Recommend(products []domain.Product, prefs *domain.Preferences, limit int) []Recommendation {
	out := make([]Recommendation, 0, len(products))
	for i := range products {
		p := &products[i]
		if p.Stock <= 0 {
			continue
		}
		out = append(out, Recommendation{Product: *p, Score: Satisfaction(p, prefs), Reasons: reasons(p, prefs)})
	}
	slices.SortStableFunc(out, func(a, b Recommendation) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Product.EffectivePriceCents(), b.Product.EffectivePriceCents())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func reasons(p *domain.Product, prefs *domain.Preferences) []string {
	out := []string{}
	if p.OnSale && p.SalePriceCents > 0 {
		out = append(out, "on sale")
	}
	if prefs == nil {
		return out
	}
	if p.Brand != "" && slices.ContainsFunc(prefs.Brands, func(b string) bool { return strings.EqualFold(b, p.Brand) }) {
		out = append(out, "preferred brand "+p.Brand)
	}
	for _, a := range prefs.Activities {
		if p.HasTag(a) {
			out = append(out, "suited to "+a)
		}
	}
	if prefs.Budget != nil && FromCents(p.EffectivePriceCents()).InexactFloat64() <= *prefs.Budget {
		out = append(out, "within budget")
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
