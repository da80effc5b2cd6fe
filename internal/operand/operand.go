// Package operand turns user input into decimal operands.
package operand

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/calcerr"
)

// Parse converts a numeric literal such as "3", "-2.5" or "1e3" into a decimal.
func Parse(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("empty input: %w", calcerr.ErrInvalidOperand)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%q is not a number: %w", s, calcerr.ErrInvalidOperand)
	}
	return d, nil
}

// ParseOptional parses s unless it is empty, in which case the result is
// an invalid (absent) NullDecimal.
func ParseOptional(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := Parse(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
