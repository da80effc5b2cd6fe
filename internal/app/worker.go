package app

import (
	"context"
	"fmt"
	"io"

	"github.com/specialistvlad/opcalc/internal/ctxlog"
	"github.com/specialistvlad/opcalc/internal/dispatch"
)

// RunWorker serves a single isolated dispatch over in and out and returns the
// process exit code. The handler is rebuilt from the kind and params in the
// request, using the kinds of the compiled-in modules. Warnings go to errW,
// which the parent reports if the worker dies.
func RunWorker(ctx context.Context, in io.Reader, out, errW io.Writer) int {
	logger, closer := newLogger("warn", "text", errW, "")
	defer closer.Close()
	ctx = ctxlog.WithLogger(ctx, logger)

	server := dispatch.NewWorkerServer(workerCatalog())
	if err := server.Serve(ctx, in, out); err != nil {
		fmt.Fprintln(errW, err)
		return 1
	}
	return 0
}
