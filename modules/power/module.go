// Package power provides the unary operations square and cube, and the
// "power" handler kind that raises its operand to params.exponent.
package power

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/operation"
	"github.com/specialistvlad/opcalc/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// MaxExponent bounds the exponent a manifest may request.
const MaxExponent = 1024

// Module implements the registry.Module interface for this package.
type Module struct{}

// Square returns a².
func Square(a decimal.Decimal) (decimal.Decimal, error) {
	return a.Mul(a), nil
}

// Cube returns a³.
func Cube(a decimal.Decimal) (decimal.Decimal, error) {
	return a.Mul(a).Mul(a), nil
}

// Pow raises a to a non-negative whole exponent by repeated squaring.
func Pow(a decimal.Decimal, exponent int64) decimal.Decimal {
	result := decimal.NewFromInt(1)
	base := a
	for exponent > 0 {
		if exponent&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		exponent >>= 1
	}
	return result
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Descriptor{
		Name:        "square",
		Arity:       operation.Unary,
		Description: "Raise a number to the second power",
		New:         operation.UnaryFunc(Square),
		Kind:        "square",
	})
	r.Register(registry.Descriptor{
		Name:        "cube",
		Arity:       operation.Unary,
		Description: "Raise a number to the third power",
		New:         operation.UnaryFunc(Cube),
		Kind:        "cube",
	})
	r.RegisterKind("square", unaryKind(operation.UnaryFunc(Square)))
	r.RegisterKind("cube", unaryKind(operation.UnaryFunc(Cube)))
	r.RegisterKind("power", powerKind)
}

func unaryKind(ctor operation.Constructor) registry.KindFactory {
	return func(cty.Value) (operation.Arity, operation.Constructor, error) {
		return operation.Unary, ctor, nil
	}
}

func powerKind(params cty.Value) (operation.Arity, operation.Constructor, error) {
	exponent, err := registry.IntParam(params, "exponent")
	if err != nil {
		return 0, nil, fmt.Errorf("power: %w", err)
	}
	if exponent < 0 || exponent > MaxExponent {
		return 0, nil, fmt.Errorf("power: exponent %d outside [0, %d]", exponent, MaxExponent)
	}
	return operation.Unary, operation.UnaryFunc(func(a decimal.Decimal) (decimal.Decimal, error) {
		return Pow(a, exponent), nil
	}), nil
}
