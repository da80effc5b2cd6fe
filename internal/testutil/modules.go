package testutil

import (
	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/operation"
	"github.com/specialistvlad/opcalc/internal/registry"
)

// SimpleModule is a test helper for easily creating a module that registers
// a single unary operation.
type SimpleModule struct {
	Name string
	Fn   func(decimal.Decimal) (decimal.Decimal, error)
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	r.Register(registry.Descriptor{
		Name:  m.Name,
		Arity: operation.Unary,
		New:   operation.UnaryFunc(m.Fn),
	})
}

// BrokenModule registers a descriptor without a constructor, which fails
// registry validation.
type BrokenModule struct{}

// Register implements the registry.Module interface.
func (BrokenModule) Register(r *registry.Registry) {
	r.Register(registry.Descriptor{Name: "broken", Arity: operation.Binary})
}
