// Package arithmetic provides the binary operations add, subtract, multiply
// and divide, plus the modulo and scale handler kinds for plugin manifests.
package arithmetic

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/calcerr"
	"github.com/specialistvlad/opcalc/internal/operation"
	"github.com/specialistvlad/opcalc/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// DivisionPrecision is the number of significant digits a quotient is
// rounded to.
const DivisionPrecision = 28

// Module implements the registry.Module interface for this package.
type Module struct{}

func Add(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Add(b), nil }

func Subtract(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Sub(b), nil }

func Multiply(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Mul(b), nil }

// Divide fails with ErrDivisionByZero when b is exactly zero.
func Divide(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, calcerr.ErrDivisionByZero
	}
	if a.IsZero() {
		return decimal.Zero, nil
	}
	return a.DivRound(b, quotientScale(a, b)), nil
}

// quotientScale returns the number of decimal places that leaves a / b with
// DivisionPrecision significant digits. Both operands must be non-zero.
func quotientScale(a, b decimal.Decimal) int32 {
	lead := leadingExponent(a) - leadingExponent(b)
	// The quotient starts one place lower when a's leading digits are smaller.
	if mantissa(a).Cmp(mantissa(b)) < 0 {
		lead--
	}
	return DivisionPrecision - 1 - lead
}

// leadingExponent is the power of ten of d's most significant digit.
func leadingExponent(d decimal.Decimal) int32 {
	return int32(d.NumDigits()) + d.Exponent() - 1
}

// mantissa scales |d| into [1, 10).
func mantissa(d decimal.Decimal) decimal.Decimal {
	return d.Abs().Shift(-leadingExponent(d))
}

// Modulo returns the remainder of a / b, carrying the sign of a.
func Modulo(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, calcerr.ErrDivisionByZero
	}
	return a.Mod(b), nil
}

var binaries = []struct {
	name        string
	description string
	fn          func(a, b decimal.Decimal) (decimal.Decimal, error)
}{
	{"add", "Add two numbers", Add},
	{"subtract", "Subtract the second number from the first", Subtract},
	{"multiply", "Multiply two numbers", Multiply},
	{"divide", "Divide the first number by the second", Divide},
}

// Register registers the operations and handler kinds with the registry.
func (m *Module) Register(r *registry.Registry) {
	for _, b := range binaries {
		ctor := operation.BinaryFunc(b.fn)
		r.Register(registry.Descriptor{
			Name:        b.name,
			Arity:       operation.Binary,
			Description: b.description,
			New:         ctor,
			Kind:        b.name,
		})
		r.RegisterKind(b.name, binaryKind(ctor))
	}
	r.RegisterKind("modulo", binaryKind(operation.BinaryFunc(Modulo)))
	r.RegisterKind("scale", scaleKind)
}

func binaryKind(ctor operation.Constructor) registry.KindFactory {
	return func(cty.Value) (operation.Arity, operation.Constructor, error) {
		return operation.Binary, ctor, nil
	}
}

// scaleKind multiplies its single operand by params.factor.
func scaleKind(params cty.Value) (operation.Arity, operation.Constructor, error) {
	factor, err := registry.DecimalParam(params, "factor")
	if err != nil {
		return 0, nil, fmt.Errorf("scale: %w", err)
	}
	return operation.Unary, operation.UnaryFunc(func(a decimal.Decimal) (decimal.Decimal, error) {
		return a.Mul(factor), nil
	}), nil
}
