// Package present formats calculation results and failures for the terminal.
package present

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/calcerr"
	"github.com/specialistvlad/opcalc/internal/history"
	"github.com/specialistvlad/opcalc/internal/metrics"
	"github.com/specialistvlad/opcalc/internal/registry"
)

// Usage lines printed for malformed input.
const (
	UsageAny    = "Invalid input. Please enter in the format: <number1> <number2> <operation> or <number> <operation>"
	UsageBinary = "Invalid input. Please enter in the format: <number1> <number2> <operation>"
)

var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Printer writes styled output. Colour is only emitted when the writer is a
// terminal.
type Printer struct {
	w            io.Writer
	titleStyle   lipgloss.Style
	resultStyle  lipgloss.Style
	errorStyle   lipgloss.Style
	mutedStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// New creates a Printer bound to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:            w,
		titleStyle:   r.NewStyle().Bold(true).Foreground(white),
		resultStyle:  r.NewStyle().Bold(true),
		errorStyle:   r.NewStyle().Foreground(accent).Bold(true),
		mutedStyle:   r.NewStyle().Foreground(muted),
		successStyle: r.NewStyle().Foreground(success).Bold(true),
	}
}

// Line prints s unstyled.
func (p *Printer) Line(s string) {
	fmt.Fprintln(p.w, s)
}

// Title prints s as a heading.
func (p *Printer) Title(s string) {
	fmt.Fprintln(p.w, p.titleStyle.Render(s))
}

// Result prints the outcome of a calculation. b is empty for unary calls.
func (p *Printer) Result(a, b, op string, result decimal.Decimal) {
	if b != "" {
		fmt.Fprintf(p.w, "The result of %s %s %s is %s\n", a, op, b, p.resultStyle.Render(result.String()))
		return
	}
	fmt.Fprintf(p.w, "The result of %s %s is %s\n", a, op, p.resultStyle.Render(result.String()))
}

// Elapsed prints how long the calculation took.
func (p *Printer) Elapsed(d time.Duration) {
	fmt.Fprintln(p.w, p.mutedStyle.Render(fmt.Sprintf("Calculation took %.4f seconds.", d.Seconds())))
}

// ErrorMessage returns the user-facing text for a calculation failure.
func ErrorMessage(err error, a, b string) string {
	if b == "" {
		b = "None"
	}
	switch {
	case errors.Is(err, calcerr.ErrInvalidOperand):
		return fmt.Sprintf("Invalid number input: %s or %s is not a valid number.", a, b)
	case errors.Is(err, calcerr.ErrDivisionByZero):
		return "Error: Division by zero."
	case errors.Is(err, calcerr.ErrUnknownOperation):
		return fmt.Sprintf("Unknown operation: %s", calcerr.NameOf(err))
	case errors.Is(err, calcerr.ErrArity):
		return UsageBinary
	default:
		return fmt.Sprintf("An error occurred: %v", err)
	}
}

// Error prints the user-facing text for err.
func (p *Printer) Error(err error, a, b string) {
	fmt.Fprintln(p.w, p.errorStyle.Render(ErrorMessage(err, a, b)))
}

// Menu prints the available operations.
func (p *Printer) Menu(names []string) {
	fmt.Fprintln(p.w, "Available commands:", strings.Join(names, ", "))
}

// Operations prints one line per descriptor.
func (p *Printer) Operations(descs []registry.Descriptor) {
	for _, d := range descs {
		line := fmt.Sprintf("  %-12s %-7s %s", d.Name, d.Arity, p.mutedStyle.Render(d.Source))
		if d.Description != "" {
			line += "  " + d.Description
		}
		fmt.Fprintln(p.w, line)
	}
}

// History prints the stored calculations.
func (p *Printer) History(calcs []history.Calculation) {
	if len(calcs) == 0 {
		fmt.Fprintln(p.w, p.mutedStyle.Render("No calculations yet."))
		return
	}
	for i, c := range calcs {
		fmt.Fprintf(p.w, "%3d. %s\n", i+1, c)
	}
}

// Stats prints per-operation dispatch counts.
func (p *Printer) Stats(stats []metrics.OperationStats) {
	if len(stats) == 0 {
		fmt.Fprintln(p.w, p.mutedStyle.Render("No dispatches yet."))
		return
	}
	for _, s := range stats {
		fmt.Fprintf(p.w, "  %-12s total=%d failed=%d\n", s.Operation, s.Total, s.Failed)
	}
}

// Success prints s highlighted.
func (p *Printer) Success(s string) {
	fmt.Fprintln(p.w, p.successStyle.Render(s))
}
