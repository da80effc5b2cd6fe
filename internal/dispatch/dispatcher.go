// Package dispatch resolves operation names to handlers and runs them, either
// in the caller's goroutine or in an isolated worker process.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/calcerr"
	"github.com/specialistvlad/opcalc/internal/ctxlog"
	"github.com/specialistvlad/opcalc/internal/isolate"
	"github.com/specialistvlad/opcalc/internal/metrics"
	"github.com/specialistvlad/opcalc/internal/operation"
	"github.com/specialistvlad/opcalc/internal/registry"
)

// Options configures a Dispatcher.
type Options struct {
	// Runner starts isolated workers. Nil re-executes the current binary.
	Runner *isolate.Runner
	// WorkerKinds is the handler-kind catalog compiled into worker processes.
	// Nil means workers provide every kind the parent registry does.
	WorkerKinds registry.KindSource
	// WorkerTimeout bounds an isolated dispatch. Zero means no bound.
	WorkerTimeout time.Duration
	Metrics       *metrics.Collector
}

// Dispatcher executes registered operations.
type Dispatcher struct {
	reg    *registry.Registry
	opts   Options
	runner *isolate.Runner
}

// New creates a Dispatcher over reg.
func New(reg *registry.Registry, opts Options) *Dispatcher {
	runner := opts.Runner
	if runner == nil {
		runner = &isolate.Runner{}
	}
	if runner.Rebuild == nil {
		rebuilt := *runner
		rebuilt.Rebuild = Rebuild
		runner = &rebuilt
	}
	if opts.WorkerKinds == nil {
		opts.WorkerKinds = reg
	}
	return &Dispatcher{reg: reg, opts: opts, runner: runner}
}

// Transferable reports why desc cannot be rebuilt inside a worker process,
// or nil when it can.
func (d *Dispatcher) Transferable(desc registry.Descriptor) error {
	if desc.Kind == "" {
		return fmt.Errorf("%w: operation '%s' (%s) has no handler kind a worker can rebuild", calcerr.ErrWorkerExecution, desc.Name, desc.Source)
	}
	if _, ok := d.opts.WorkerKinds.Kind(desc.Kind); !ok {
		return fmt.Errorf("%w: operation '%s' (%s) uses handler kind '%s' that workers do not provide", calcerr.ErrWorkerExecution, desc.Name, desc.Source, desc.Kind)
	}
	return nil
}

// CheckTransferable verifies that every registered operation can run in a
// worker process.
func (d *Dispatcher) CheckTransferable() error {
	var errs []error
	for _, desc := range d.reg.Descriptors() {
		if err := d.Transferable(desc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Execute looks up name, binds ops to a fresh handler and computes the
// result. With isolated set the computation runs in a worker process; results
// and failure kinds are the same in both modes. Failures are never retried.
func (d *Dispatcher) Execute(ctx context.Context, name string, ops operation.Operands, isolated bool) (decimal.Decimal, error) {
	mode := metrics.ModeInProcess
	if isolated {
		mode = metrics.ModeIsolated
	}
	ctx = ctxlog.With(ctx, "operation", name, "mode", mode)
	logger := ctxlog.FromContext(ctx)

	start := time.Now()
	result, err := d.execute(ctx, name, ops, isolated)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = string(calcerr.KindOf(err))
		logger.Debug("Dispatch failed.", "kind", outcome, "error", err, "elapsed", elapsed)
	} else {
		logger.Debug("Dispatch finished.", "result", result.String(), "elapsed", elapsed)
	}
	d.opts.Metrics.ObserveDispatch(name, mode, outcome, elapsed)

	return result, err
}

func (d *Dispatcher) execute(ctx context.Context, name string, ops operation.Operands, isolated bool) (decimal.Decimal, error) {
	desc, ok := d.reg.Lookup(name)
	if !ok {
		return decimal.Decimal{}, calcerr.UnknownOperation(name)
	}
	if err := ops.Check(name, desc.Arity); err != nil {
		return decimal.Decimal{}, err
	}
	if desc.Arity == operation.Unary {
		ops.B = decimal.NullDecimal{}
	}

	if !isolated {
		return desc.New(ops).Compute(ctx)
	}
	if err := d.Transferable(desc); err != nil {
		return decimal.Decimal{}, err
	}
	return d.executeIsolated(ctx, desc, ops)
}

func (d *Dispatcher) executeIsolated(ctx context.Context, desc registry.Descriptor, ops operation.Operands) (decimal.Decimal, error) {
	params, err := registry.EncodeParams(desc.Params)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: operation '%s': %w", calcerr.ErrWorkerExecution, desc.Name, err)
	}

	if d.opts.WorkerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.WorkerTimeout)
		defer cancel()
	}

	req := Request{
		Operation: desc.Name,
		Kind:      desc.Kind,
		Params:    params,
		A:         ops.A.String(),
	}
	if ops.B.Valid {
		req.B = ops.B.Decimal.String()
		req.HasB = true
	}

	res, err := isolate.Run[Request, Response](ctx, d.runner, TaskCompute, req)
	if err != nil {
		if errors.Is(err, isolate.ErrCrashed) {
			return decimal.Decimal{}, fmt.Errorf("%w: %w", calcerr.ErrWorkerExecution, err)
		}
		return decimal.Decimal{}, err
	}

	result, err := decimal.NewFromString(res.Result)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: malformed result %q", calcerr.ErrWorkerExecution, res.Result)
	}
	return result, nil
}
