// Package money provides the fixed-point decimal type used for every
// price, quantity, and PnL figure in the gateway. Floating-point is never
// used for settled quantities — see the data-model invariant in spec.md §3.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount wraps decimal.Decimal so call sites read like teacher code
// ("qty.Mul(price)") rather than bare decimal plumbing everywhere.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{}

// New builds an Amount from a string (the only safe way to construct one
// from user input; float64 literals lose precision before they arrive here).
func New(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// MustNew panics on parse failure; reserved for compile-time constants.
func MustNew(s string) Amount {
	a, err := New(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromFloat converts an external float (e.g. a venue JSON field already
// decoded as float64) into an Amount. Used only at adapter boundaries where
// the upstream API itself represents numbers as JSON floats; internal math
// never goes through float64.
func FromFloat(f float64) Amount {
	return Amount{d: decimal.NewFromFloat(f)}
}

func FromInt(i int64) Amount {
	return Amount{d: decimal.NewFromInt(i)}
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Mul(b Amount) Amount { return Amount{d: a.d.Mul(b.d)} }

// Div divides by b; returns Zero if b is zero (callers doing price math
// should check b.IsZero() first if a distinguishable error matters).
func (a Amount) Div(b Amount) Amount {
	if b.IsZero() {
		return Zero
	}
	return Amount{d: a.d.DivRound(b.d, 16)}
}

func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }
func (a Amount) Abs() Amount { return Amount{d: a.d.Abs()} }

func (a Amount) IsZero() bool     { return a.d.IsZero() }
func (a Amount) IsPositive() bool { return a.d.IsPositive() }
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

func (a Amount) GreaterThan(b Amount) bool      { return a.d.GreaterThan(b.d) }
func (a Amount) GreaterThanOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }
func (a Amount) LessThan(b Amount) bool         { return a.d.LessThan(b.d) }
func (a Amount) LessThanOrEqual(b Amount) bool  { return a.d.LessThanOrEqual(b.d) }
func (a Amount) Equal(b Amount) bool            { return a.d.Equal(b.d) }

func (a Amount) Float64() float64 { f, _ := a.d.Float64(); return f }
func (a Amount) String() string   { return a.d.String() }

// RoundDownStep floors a to the nearest multiple of step (a venue lot or
// tick size). step <= 0 is a no-op passthrough, matching adapters that
// have not yet discovered the venue's filter for a symbol.
func (a Amount) RoundDownStep(step Amount) Amount {
	if step.IsZero() || !step.IsPositive() {
		return a
	}
	q := a.d.Div(step.d).Floor()
	return Amount{d: q.Mul(step.d)}
}

// Percent returns a * (pct/100), e.g. Percent(1.5) of $1000 is $15.
func (a Amount) Percent(pct float64) Amount {
	p := decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
	return Amount{d: a.d.Mul(p)}
}

// Value/Scan implement database/sql driver interfaces so Amount can be
// stored as a decimal-string column. internal/store's models keep
// amounts in plain string fields and do not use these hooks.
func (a Amount) Value() (driver.Value, error) {
	return a.d.String(), nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		a.d = decimal.Zero
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		a.d = d
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		a.d = d
		return nil
	case float64:
		a.d = decimal.NewFromFloat(v)
		return nil
	default:
		return fmt.Errorf("money: unsupported scan source %T", src)
	}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		a.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		// tolerate bare numeric JSON (some venues send numbers, not strings)
		df, ferr := decimal.NewFromString(s)
		if ferr != nil {
			return err
		}
		d = df
	}
	a.d = d
	return nil
}
