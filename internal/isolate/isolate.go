// Package isolate runs a computation in a separate worker process and brings
// its result or failure back to the caller.
//
// The worker is the current executable re-executed with EnvWorker set. A
// program that supports isolation checks IsWorker at the top of main (or
// TestMain) and hands control to a Server. One request is exchanged per
// process: the parent writes a msgpack request to the worker's stdin and
// reads a msgpack response from its stdout, then the worker exits.
//
// The package knows nothing about what is being computed. Requests and
// results are any msgpack-serializable values, and failures travel as a
// Failure that the caller's Classify/Rebuild pair maps to and from its own
// error types.
package isolate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// EnvWorker is set to "1" in the environment of worker processes.
const EnvWorker = "OPCALC_WORKER"

// Failure kinds produced by the worker runtime itself.
const (
	KindPanic       = "panic"
	KindUnknownTask = "unknown_task"
	KindError       = "error"
)

// ErrCrashed is returned when the worker exits without a usable response.
var ErrCrashed = errors.New("worker crashed")

// Failure is the serialized form of an error raised inside a worker.
type Failure struct {
	Kind    string `msgpack:"kind"`
	Message string `msgpack:"message"`
	// Name carries an optional subject, such as an operation name.
	Name string `msgpack:"name,omitempty"`
}

type request struct {
	Task    string             `msgpack:"task"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

type response struct {
	Result  msgpack.RawMessage `msgpack:"result,omitempty"`
	Failure *Failure           `msgpack:"failure,omitempty"`
}

// IsWorker reports whether the current process was started as a worker.
func IsWorker() bool {
	return os.Getenv(EnvWorker) == "1"
}

// SelfCommand re-executes the running binary as a worker.
func SelfCommand(ctx context.Context) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = append(os.Environ(), EnvWorker+"=1")
	return cmd, nil
}

// Runner starts workers and maps their failures back to errors.
type Runner struct {
	// Command builds the worker process. Nil means SelfCommand.
	Command func(ctx context.Context) (*exec.Cmd, error)
	// Rebuild turns a Failure into an error on the calling side. Nil means
	// a plain error carrying the failure message.
	Rebuild func(f Failure) error
}

func (r *Runner) command(ctx context.Context) (*exec.Cmd, error) {
	if r != nil && r.Command != nil {
		return r.Command(ctx)
	}
	return SelfCommand(ctx)
}

func (r *Runner) rebuild(f Failure) error {
	if r != nil && r.Rebuild != nil {
		return r.Rebuild(f)
	}
	return fmt.Errorf("%s: %s", f.Kind, f.Message)
}

// Run executes task with req in a fresh worker and blocks until the worker
// exits. A Failure reported by the worker is returned through Rebuild; a
// worker that dies without answering yields an error wrapping ErrCrashed.
func Run[Req, Res any](ctx context.Context, r *Runner, task string, req Req) (Res, error) {
	var zero Res

	payload, err := msgpack.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("failed to encode worker request: %w", err)
	}
	in, err := msgpack.Marshal(&request{Task: task, Payload: payload})
	if err != nil {
		return zero, fmt.Errorf("failed to encode worker request: %w", err)
	}

	cmd, err := r.command(ctx)
	if err != nil {
		return zero, err
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, fmt.Errorf("%w: %w", ErrCrashed, ctxErr)
	}

	var resp response
	if err := msgpack.Unmarshal(stdout.Bytes(), &resp); err != nil {
		if runErr != nil {
			return zero, fmt.Errorf("%w: %v%s", ErrCrashed, runErr, stderrTail(&stderr))
		}
		return zero, fmt.Errorf("%w: unreadable response: %v", ErrCrashed, err)
	}
	if resp.Failure != nil {
		return zero, r.rebuild(*resp.Failure)
	}
	if runErr != nil {
		return zero, fmt.Errorf("%w: %v%s", ErrCrashed, runErr, stderrTail(&stderr))
	}

	var out Res
	if err := msgpack.Unmarshal(resp.Result, &out); err != nil {
		return zero, fmt.Errorf("failed to decode worker result: %w", err)
	}
	return out, nil
}

func stderrTail(b *bytes.Buffer) string {
	s := strings.TrimSpace(b.String())
	if s == "" {
		return ""
	}
	const max = 512
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return ": " + s
}

// Task is a worker-side computation. It decodes its own payload.
type Task func(ctx context.Context, payload msgpack.RawMessage) (any, error)

// Handle adapts a typed function to a Task.
func Handle[Req, Res any](fn func(context.Context, Req) (Res, error)) Task {
	return func(ctx context.Context, payload msgpack.RawMessage) (any, error) {
		var req Req
		if err := msgpack.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("failed to decode task payload: %w", err)
		}
		return fn(ctx, req)
	}
}

// Server answers a single request inside a worker process.
type Server struct {
	Tasks map[string]Task
	// Classify turns a task error into a Failure. Nil means KindError with
	// the error message.
	Classify func(err error) Failure
}

// Serve reads one request from in, runs it, and writes the response to out.
// Task errors and panics are reported in the response, not returned.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	var req request
	if err := msgpack.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode worker request: %w", err)
	}
	resp := s.handle(ctx, req)
	if err := msgpack.NewEncoder(out).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode worker response: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req request) (resp *response) {
	defer func() {
		if p := recover(); p != nil {
			resp = &response{Failure: &Failure{Kind: KindPanic, Message: fmt.Sprint(p)}}
		}
	}()

	task, ok := s.Tasks[req.Task]
	if !ok {
		return &response{Failure: &Failure{Kind: KindUnknownTask, Message: fmt.Sprintf("unknown task '%s'", req.Task)}}
	}

	result, err := task(ctx, req.Payload)
	if err != nil {
		f := s.classify(err)
		return &response{Failure: &f}
	}

	raw, err := msgpack.Marshal(result)
	if err != nil {
		return &response{Failure: &Failure{Kind: KindError, Message: fmt.Sprintf("failed to encode result: %v", err)}}
	}
	return &response{Result: raw}
}

func (s *Server) classify(err error) Failure {
	if s.Classify != nil {
		return s.Classify(err)
	}
	return Failure{Kind: KindError, Message: err.Error()}
}
