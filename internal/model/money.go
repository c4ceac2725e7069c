package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a price or total kept as an exact decimal with two places.
// The storefront API sends prices as JSON numbers; stored carts and older
// responses sometimes carry them as strings, so both decode.
type Money struct {
	decimal.Decimal
}

// Zero is the empty amount.
var Zero = Money{}

// NewMoney wraps a decimal, rounding to two places.
func NewMoney(amount decimal.Decimal) Money {
	return Money{Decimal: amount.Round(2)}
}

// MustParseMoney parses "12.50"-style amounts. Panics on bad input; for tests and constants.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseMoney converts a decimal string into Money.
// Examples: "99.00" → 99.00, "1234.5" → 1234.50
func ParseMoney(s string) (Money, error) {
	if s == "" {
		return Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return NewMoney(d), nil
}

// Times multiplies the amount by a line quantity.
func (m Money) Times(qty int) Money {
	return NewMoney(m.Decimal.Mul(decimal.NewFromInt(int64(qty))))
}

// Add sums two amounts.
func (m Money) Add(other Money) Money {
	return NewMoney(m.Decimal.Add(other.Decimal))
}

// Equal compares amounts by value, ignoring representation.
func (m Money) Equal(other Money) bool {
	return m.Decimal.Equal(other.Decimal)
}

// MarshalJSON writes the amount as a JSON number with two decimals.
// Stored guest carts must stay readable by the web storefront, which expects numbers.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.Round(2).StringFixed(2)), nil
}

// UnmarshalJSON accepts a string or a number.
func (m *Money) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		m.Decimal = decimal.Zero
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := ParseMoney(s)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("parsing amount %s: %w", b, err)
	}
	m.Decimal = d.Round(2)
	return nil
}

// String returns the two-decimal form.
func (m Money) String() string {
	return m.Decimal.Round(2).StringFixed(2)
}
