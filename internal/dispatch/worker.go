package dispatch

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/calcerr"
	"github.com/specialistvlad/opcalc/internal/isolate"
	"github.com/specialistvlad/opcalc/internal/operand"
	"github.com/specialistvlad/opcalc/internal/operation"
	"github.com/specialistvlad/opcalc/internal/registry"
)

// TaskCompute is the worker task that performs one calculation.
const TaskCompute = "compute"

// Request is what the parent sends to a worker. It carries the recipe of the
// handler the parent resolved, so the worker builds exactly that handler and
// never consults its own plugin directory. Decimals travel as their exact
// string form.
type Request struct {
	Operation string `msgpack:"operation"`
	Kind      string `msgpack:"kind"`
	// Params is the cty JSON encoding of the descriptor's params.
	Params []byte `msgpack:"params,omitempty"`
	A      string `msgpack:"a"`
	B      string `msgpack:"b,omitempty"`
	HasB   bool   `msgpack:"has_b"`
}

// Response carries the computed value.
type Response struct {
	Result string `msgpack:"result"`
}

// NewWorkerServer returns the isolate.Server a worker process runs. kinds is
// the handler-kind catalog compiled into the worker.
func NewWorkerServer(kinds registry.KindSource) *isolate.Server {
	return &isolate.Server{
		Tasks: map[string]isolate.Task{
			TaskCompute: isolate.Handle(func(ctx context.Context, req Request) (Response, error) {
				return compute(ctx, kinds, req)
			}),
		},
		Classify: Classify,
	}
}

func compute(ctx context.Context, kinds registry.KindSource, req Request) (Response, error) {
	params, err := registry.DecodeParams(req.Params)
	if err != nil {
		return Response{}, fmt.Errorf("%w: operation '%s': %w", calcerr.ErrWorkerExecution, req.Operation, err)
	}
	arity, ctor, err := registry.Build(kinds, req.Kind, params)
	if err != nil {
		return Response{}, fmt.Errorf("%w: operation '%s': %w", calcerr.ErrWorkerExecution, req.Operation, err)
	}

	a, err := operand.Parse(req.A)
	if err != nil {
		return Response{}, err
	}
	ops := operation.One(a)
	if req.HasB {
		b, err := operand.Parse(req.B)
		if err != nil {
			return Response{}, err
		}
		ops.B = decimal.NewNullDecimal(b)
	}
	if err := ops.Check(req.Operation, arity); err != nil {
		return Response{}, err
	}
	if arity == operation.Unary {
		ops.B = decimal.NullDecimal{}
	}

	result, err := ctor(ops).Compute(ctx)
	if err != nil {
		return Response{}, err
	}
	return Response{Result: result.String()}, nil
}

// Classify maps a calculation error to a serializable failure.
func Classify(err error) isolate.Failure {
	return isolate.Failure{
		Kind:    string(calcerr.KindOf(err)),
		Message: err.Error(),
		Name:    calcerr.NameOf(err),
	}
}

// Rebuild maps a worker failure back to a calculation error of the same kind.
func Rebuild(f isolate.Failure) error {
	return calcerr.FromFailure(calcerr.Kind(f.Kind), f.Message, f.Name)
}
