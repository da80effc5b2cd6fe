// Package operation defines the contract every arithmetic handler implements.
//
// A Handler is bound to its operands when it is constructed and performs no
// I/O; it is created fresh for each dispatch and discarded afterwards.
package operation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/calcerr"
)

// Arity is the number of operands an operation consumes.
type Arity int

const (
	Unary  Arity = 1
	Binary Arity = 2
)

func (a Arity) String() string {
	switch a {
	case Unary:
		return "unary"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("arity(%d)", int(a))
	}
}

// Operands holds the inputs of one calculation. B is absent for unary calls.
type Operands struct {
	A decimal.Decimal
	B decimal.NullDecimal
}

// One returns operands for a unary call.
func One(a decimal.Decimal) Operands {
	return Operands{A: a}
}

// Two returns operands for a binary call.
func Two(a, b decimal.Decimal) Operands {
	return Operands{A: a, B: decimal.NewNullDecimal(b)}
}

// Check reports ErrArity when a binary operation is missing its second operand.
// A second operand given to a unary operation is ignored.
func (o Operands) Check(name string, arity Arity) error {
	if arity == Binary && !o.B.Valid {
		return fmt.Errorf("operation '%s' needs two operands: %w", name, calcerr.ErrArity)
	}
	return nil
}

// Handler computes a single result from the operands it was built with.
type Handler interface {
	Compute(ctx context.Context) (decimal.Decimal, error)
}

// Constructor binds operands to a fresh Handler.
type Constructor func(ops Operands) Handler

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context) (decimal.Decimal, error)

// Compute calls f.
func (f HandlerFunc) Compute(ctx context.Context) (decimal.Decimal, error) {
	return f(ctx)
}

// BinaryFunc builds a Constructor from a two-operand function.
func BinaryFunc(fn func(a, b decimal.Decimal) (decimal.Decimal, error)) Constructor {
	return func(ops Operands) Handler {
		return HandlerFunc(func(context.Context) (decimal.Decimal, error) {
			return fn(ops.A, ops.B.Decimal)
		})
	}
}

// UnaryFunc builds a Constructor from a one-operand function.
func UnaryFunc(fn func(a decimal.Decimal) (decimal.Decimal, error)) Constructor {
	return func(ops Operands) Handler {
		return HandlerFunc(func(context.Context) (decimal.Decimal, error) {
			return fn(ops.A)
		})
	}
}
