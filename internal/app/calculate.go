package app

import (
	"context"
	"time"

	"github.com/specialistvlad/opcalc/internal/ctxlog"
	"github.com/specialistvlad/opcalc/internal/history"
	"github.com/specialistvlad/opcalc/internal/operand"
	"github.com/specialistvlad/opcalc/internal/operation"
	"github.com/specialistvlad/opcalc/internal/present"
)

// Calculate parses the raw operands, dispatches op and prints the result and
// its duration. b is empty for unary calls. Failures are printed in their
// user-facing form and returned.
func (a *App) Calculate(ctx context.Context, x, y, op string) error {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)

	fail := func(err error) error {
		logger.Error(present.ErrorMessage(err, x, y), "operation", op, "error", err)
		a.printer.Error(err, x, y)
		return err
	}

	av, err := operand.Parse(x)
	if err != nil {
		return fail(err)
	}
	bv, err := operand.ParseOptional(y)
	if err != nil {
		return fail(err)
	}

	start := time.Now()
	result, err := a.dispatcher.Execute(ctx, op, operation.Operands{A: av, B: bv}, a.config.Isolated)
	elapsed := time.Since(start)
	if err != nil {
		return fail(err)
	}

	calc := a.history.Add(history.Calculation{
		Operation: op,
		A:         av,
		B:         bv,
		Result:    result,
		Isolated:  a.config.Isolated,
		Duration:  elapsed,
	})
	logger.Info("Calculation performed.", "id", calc.ID, "calculation", calc.String())

	a.printer.Result(x, y, op, result)
	a.printer.Elapsed(elapsed)
	return nil
}
