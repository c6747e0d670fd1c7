package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code
type Currency string

const (
	COP Currency = "COP"
	USD Currency = "USD"
)

// MoneyScale is the number of decimal places every amount is rounded to,
// half away from zero.
const MoneyScale int32 = 2

// ErrCurrencyMismatch is wrapped by arithmetic on amounts of different currencies
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Valid reports whether c looks like an ISO 4217 code: three upper-case letters.
func (c Currency) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

// Money is an immutable amount in one currency
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney rounds amount to MoneyScale and rejects malformed currency codes
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, fmt.Errorf("invalid currency code %q", currency)
	}
	return Money{amount: amount.Round(MoneyScale), currency: currency}, nil
}

// NewMoneyCOP is NewMoney for Colombian pesos, which cannot fail
func NewMoneyCOP(amount decimal.Decimal) Money {
	return Money{amount: amount.Round(MoneyScale), currency: COP}
}

// Zero returns no money in currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// ZeroCOP returns zero pesos
func ZeroCOP() Money {
	return Zero(COP)
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsNegative() bool        { return m.amount.IsNegative() }

func (m Money) combine(other Money, op string, f func(a, b decimal.Decimal) decimal.Decimal) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: cannot %s %s and %s", ErrCurrencyMismatch, op, m.currency, other.currency)
	}
	return Money{amount: f(m.amount, other.amount).Round(MoneyScale), currency: m.currency}, nil
}

// Add returns m + other
func (m Money) Add(other Money) (Money, error) {
	return m.combine(other, "add", decimal.Decimal.Add)
}

// Subtract returns m - other
func (m Money) Subtract(other Money) (Money, error) {
	return m.combine(other, "subtract", decimal.Decimal.Sub)
}

// MustAdd is Add for operands already known to share a currency
func (m Money) MustAdd(other Money) Money {
	return must(m.Add(other))
}

// MustSubtract is Subtract for operands already known to share a currency
func (m Money) MustSubtract(other Money) Money {
	return must(m.Subtract(other))
}

func must(m Money, err error) Money {
	if err != nil {
		panic(err)
	}
	return m
}

// MultiplyByInt returns m scaled by a whole quantity
func (m Money) MultiplyByInt(n int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(n)).Round(MoneyScale), currency: m.currency}
}

// Equals compares amount numerically and currency exactly
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return m.amount.StringFixed(MoneyScale) + " " + string(m.currency)
}

type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON writes the amount as a fixed two-place string so no precision
// is lost to float decoding on the consumer side.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount.StringFixed(MoneyScale), Currency: m.currency})
}

// UnmarshalJSON accepts the MarshalJSON form. A missing currency means COP.
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", v.Amount, err)
	}
	if v.Currency == "" {
		v.Currency = COP
	}
	parsed, err := NewMoney(amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
