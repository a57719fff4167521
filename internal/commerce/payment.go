package commerce

import (
	"strings"
	"time"
	"unicode"
)

// Payment method types.
const (
	PaymentCard   = "credit_card"
	PaymentPayPal = "paypal"
	PaymentWallet = "digital_wallet"
)

// PaymentMethod is what an agent proposes to pay with. Card fields are only
// checked, never stored.
type PaymentMethod struct {
	Type        string `json:"type"`
	CardNumber  string `json:"card_number,omitempty"`
	ExpiryMonth int    `json:"expiry_month,omitempty"`
	ExpiryYear  int    `json:"expiry_year,omitempty"`
	CVV         string `json:"cvv,omitempty"`
	Email       string `json:"email,omitempty"`
	Token       string `json:"token,omitempty"`
}

// PaymentIssue is one reason a payment method was rejected.
type PaymentIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PaymentCheck is the outcome of validating a payment method.
type PaymentCheck struct {
	Valid     bool           `json:"valid"`
	Type      string         `json:"type"`
	CardBrand string         `json:"card_brand,omitempty"`
	Last4     string         `json:"last4,omitempty"`
	Amount    string         `json:"amount"`
	Issues    []PaymentIssue `json:"issues"`
}

// ValidatePayment checks a payment method for an amount. It reports every
// problem it finds instead of stopping at the first.
func ValidatePayment(m PaymentMethod, amountCents int64, now time.Time) PaymentCheck {
	c := PaymentCheck{Type: m.Type, Amount: FormatCents(amountCents), Issues: []PaymentIssue{}}
	add := func(field, msg string) { c.Issues = append(c.Issues, PaymentIssue{Field: field, Message: msg}) }

	if amountCents <= 0 {
		add("amount", "must be greater than zero")
	}

	switch m.Type {
	case PaymentCard:
		digits := stripSeparators(m.CardNumber)
		switch {
		case digits == "":
			add("card_number", "is required")
		case !allDigits(digits) || len(digits) < 12 || len(digits) > 19:
			add("card_number", "must be 12 to 19 digits")
		case !Luhn(digits):
			add("card_number", "fails checksum")
		default:
			c.CardBrand = CardBrand(digits)
			c.Last4 = digits[len(digits)-4:]
		}

		if m.ExpiryMonth < 1 || m.ExpiryMonth > 12 {
			add("expiry_month", "must be between 1 and 12")
		} else if cardExpired(m.ExpiryMonth, m.ExpiryYear, now) {
			add("expiry_year", "card has expired")
		}

		if n := len(m.CVV); n < 3 || n > 4 || !allDigits(m.CVV) {
			add("cvv", "must be 3 or 4 digits")
		}

	case PaymentPayPal:
		if !strings.Contains(m.Email, "@") {
			add("email", "a PayPal account email is required")
		}

	case PaymentWallet:
		if strings.TrimSpace(m.Token) == "" {
			add("token", "a wallet token is required")
		}

	default:
		add("type", "must be one of credit_card, paypal, digital_wallet")
	}

	c.Valid = len(c.Issues) == 0
	return c
}

// Luhn reports whether a digit string passes the mod-10 checksum.
func Luhn(digits string) bool {
	if digits == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// CardBrand guesses the network from the leading digits.
func CardBrand(digits string) string {
	switch {
	case strings.HasPrefix(digits, "4"):
		return "visa"
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return "amex"
	case len(digits) >= 2 && digits[0] == '5' && digits[1] >= '1' && digits[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(digits, "2"):
		return "mastercard"
	case strings.HasPrefix(digits, "6011"), strings.HasPrefix(digits, "65"):
		return "discover"
	default:
		return "unknown"
	}
}

// cardExpired treats a card as valid through the last day of its month.
func cardExpired(month, year int, now time.Time) bool {
	if year < 100 {
		year += 2000
	}
	firstOfNext := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return !now.UTC().Before(firstOfNext)
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return s != ""
}
