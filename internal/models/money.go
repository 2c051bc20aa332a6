package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a currency amount in minor units (cents). Amounts are carried as
// integers so repeated rounding never drifts; JSON uses fixed-point decimals.
type Money int64

// Dollars converts whole currency units to Money
func Dollars(n int64) Money {
	return Money(n * 100)
}

// FromFloat converts a float amount in currency units, rounding to the nearest cent
func FromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

// Float returns the amount in currency units
func (m Money) Float() float64 {
	return float64(m) / 100
}

// MulFrac multiplies by a fraction and rounds to the nearest cent
func (m Money) MulFrac(f float64) Money {
	return Money(math.Round(float64(m) * f))
}

// DivFrac divides by a fraction and rounds to the nearest cent.
// Division by a non-positive fraction yields zero.
func (m Money) DivFrac(f float64) Money {
	if f <= 0 {
		return 0
	}
	return Money(math.Round(float64(m) / f))
}

// RoundTo rounds to the nearest multiple of unit, halves away from zero
func (m Money) RoundTo(unit Money) Money {
	if unit <= 0 {
		return m
	}
	q := math.Round(float64(m) / float64(unit))
	return Money(q) * unit
}

// Ratio returns m/other, or 0 when other is zero
func (m Money) Ratio(other Money) float64 {
	if other == 0 {
		return 0
	}
	return float64(m) / float64(other)
}

// Clamp bounds m to [lo, hi]
func (m Money) Clamp(lo, hi Money) Money {
	if m < lo {
		return lo
	}
	if m > hi {
		return hi
	}
	return m
}

// String formats as a fixed-point decimal, e.g. "126000.00"
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a decimal number
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or quoted decimal string
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMoney parses a decimal string ("1250", "1250.5", "-3.25") without
// going through floating point. More than two fractional digits are rounded.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	var cents int64
	if frac != "" {
		for _, r := range frac {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("invalid amount %q", s)
			}
		}
		padded := frac + "00"
		cents, _ = strconv.ParseInt(padded[:2], 10, 64)
		if len(frac) > 2 && frac[2] >= '5' {
			cents++
		}
	}

	total := units*100 + cents
	if neg {
		total = -total
	}
	return Money(total), nil
}
