// Package money provides precise decimal handling for transfer amounts at
// the intake boundary. Uses shopspring/decimal internally so values parsed
// from the wire are validated before entering float feature space.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount = errors.New("amount cannot be negative")
	ErrZeroAmount     = errors.New("amount must be positive")
	ErrInvalidAmount  = errors.New("invalid amount format")
)

// Amount is a non-negative transfer value with precise decimal handling.
type Amount struct {
	value decimal.Decimal
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{value: decimal.Zero}
}

// New creates an Amount from its string representation.
func New(value string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %s", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{value: d}, nil
}

// MustNew creates an Amount or panics - use only in tests.
func MustNew(value string) Amount {
	a, err := New(value)
	if err != nil {
		panic(err)
	}
	return a
}

// FromFloat creates an Amount from a float64 value.
func FromFloat(value float64) (Amount, error) {
	if value < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{value: decimal.NewFromFloat(value)}, nil
}

// RequirePositive rejects zero amounts for fields that must be > 0.
func (a Amount) RequirePositive() error {
	if a.value.IsZero() {
		return ErrZeroAmount
	}
	return nil
}

// Float64 converts into feature space. The conversion may lose precision
// beyond ~15 significant digits, which is acceptable for scoring.
func (a Amount) Float64() float64 {
	f, _ := a.value.Float64()
	return f
}

// String returns the fixed-point representation.
func (a Amount) String() string {
	return a.value.StringFixed(2)
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// IsPositive returns true if the amount is > 0.
func (a Amount) IsPositive() bool {
	return a.value.IsPositive()
}

// Cmp compares two amounts: -1 if a < other, 0 if equal, 1 if a > other.
func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(other.value)
}

// GreaterThan returns true if a > other.
func (a Amount) GreaterThan(other Amount) bool {
	return a.value.GreaterThan(other.value)
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.value.String())
}

// UnmarshalJSON implements json.Unmarshaler, accepting both strings and
// bare JSON numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := New(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer for database storage.
func (a Amount) Value() (driver.Value, error) {
	return a.value.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := New(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := New(string(v))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case float64:
		parsed, err := FromFloat(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}
