// Package metrics counts dispatches and their latency with Prometheus
// collectors kept in a per-application registry.
package metrics

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/specialistvlad/opcalc/internal/calcerr"
)

const (
	ModeInProcess = "in_process"
	ModeIsolated  = "isolated"

	OutcomeOK = "ok"

	// UnknownOperation is the operation label for names that did not resolve.
	UnknownOperation = "unknown"
)

// Collector holds the dispatch collectors. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry   *prometheus.Registry
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	operations prometheus.Gauge
}

// New creates a Collector with its own Prometheus registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "opcalc_dispatches_total", Help: "dispatches by operation, mode and outcome"},
			[]string{"operation", "mode", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opcalc_dispatch_duration_seconds",
				Help:    "dispatch latency",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"mode"},
		),
		operations: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "opcalc_registered_operations", Help: "operations currently registered"},
		),
	}
	c.registry.MustRegister(c.dispatches, c.duration, c.operations)
	return c
}

// Registry exposes the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDispatch records one dispatch. outcome is OutcomeOK or an error kind.
// Names that failed to resolve share the UnknownOperation label.
func (c *Collector) ObserveDispatch(operation, mode, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if outcome == string(calcerr.KindUnknownOperation) {
		operation = UnknownOperation
	}
	c.dispatches.WithLabelValues(operation, mode, outcome).Inc()
	c.duration.WithLabelValues(mode).Observe(d.Seconds())
}

// SetOperations records the current registry size.
func (c *Collector) SetOperations(n int) {
	if c == nil {
		return
	}
	c.operations.Set(float64(n))
}

// OperationStats aggregates dispatch counts for one operation.
type OperationStats struct {
	Operation string
	Total     int
	Failed    int
}

// Summary returns per-operation dispatch counts, ordered by operation name.
func (c *Collector) Summary() ([]OperationStats, error) {
	if c == nil {
		return nil, nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}

	byOp := make(map[string]*OperationStats)
	for _, fam := range families {
		if fam.GetName() != "opcalc_dispatches_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			op, outcome := labels(m)
			s, ok := byOp[op]
			if !ok {
				s = &OperationStats{Operation: op}
				byOp[op] = s
			}
			n := int(m.GetCounter().GetValue())
			s.Total += n
			if outcome != OutcomeOK {
				s.Failed += n
			}
		}
	}

	out := make([]OperationStats, 0, len(byOp))
	for _, s := range byOp {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out, nil
}

func labels(m *dto.Metric) (operation, outcome string) {
	for _, l := range m.GetLabel() {
		switch l.GetName() {
		case "operation":
			operation = l.GetValue()
		case "outcome":
			outcome = l.GetValue()
		}
	}
	return operation, outcome
}
