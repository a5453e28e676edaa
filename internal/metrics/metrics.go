// Package metrics provides Prometheus metrics for keyblast.
//
// Features:
//   - Counters for invocations, injected segments and failures
//   - Gauge for the active invocation
//   - Histogram for run duration by playback path
//   - Text exposition dump (no HTTP endpoint)
package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Namespace prefixes every keyblast metric name.
const Namespace = "keyblast"

// Metrics holds all keyblast metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Counters
	InvocationsTotal  *prometheus.CounterVec
	SegmentsInjected  prometheus.Counter
	InjectionFailures *prometheus.CounterVec
	ClipboardFailures prometheus.Counter
	RejectedTriggers  *prometheus.CounterVec
	ConfigReloads     *prometheus.CounterVec

	// Gauges
	ActiveInvocations prometheus.Gauge

	// Histograms
	RunDuration *prometheus.HistogramVec
}

// New creates and registers all keyblast metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "invocations_total",
				Help:      "Macro invocations by playback path and terminal status",
			},
			[]string{"path", "status"},
		),
		SegmentsInjected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "segments_injected_total",
			Help:      "Segments handed to the injector",
		}),
		InjectionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "injection_failures_total",
				Help:      "Segments the injector failed to deliver, by segment kind",
			},
			[]string{"kind"},
		),
		ClipboardFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clipboard_failures_total",
			Help:      "Paste segments skipped because the clipboard could not be read",
		}),
		RejectedTriggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rejected_triggers_total",
				Help:      "Triggers refused by the controller, by reason",
			},
			[]string{"reason"},
		),
		ConfigReloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "config_reloads_total",
				Help:      "Configuration reloads by result",
			},
			[]string{"result"},
		),
		ActiveInvocations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_invocations",
			Help:      "Invocations currently playing",
		}),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time from trigger to terminal command",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"path"},
		),
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun records a finished invocation.
func (m *Metrics) RecordRun(path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(path, status).Inc()
	m.RunDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordInjected counts one delivered segment.
func (m *Metrics) RecordInjected() {
	if m == nil {
		return
	}
	m.SegmentsInjected.Inc()
}

// RecordInjectionFailure counts one failed segment of the given kind.
func (m *Metrics) RecordInjectionFailure(kind string) {
	if m == nil {
		return
	}
	m.InjectionFailures.WithLabelValues(kind).Inc()
}

// RecordClipboardFailure counts one skipped paste.
func (m *Metrics) RecordClipboardFailure() {
	if m == nil {
		return
	}
	m.ClipboardFailures.Inc()
}

// RecordRejected counts a refused trigger.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTriggers.WithLabelValues(reason).Inc()
}

// RecordReload counts a configuration reload attempt.
func (m *Metrics) RecordReload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ConfigReloads.WithLabelValues(result).Inc()
}

// InvocationStarted marks an invocation as playing.
func (m *Metrics) InvocationStarted() {
	if m == nil {
		return
	}
	m.ActiveInvocations.Inc()
}

// InvocationEnded marks an invocation as finished.
func (m *Metrics) InvocationEnded() {
	if m == nil {
		return
	}
	m.ActiveInvocations.Dec()
}

// Gather returns the current metric families sorted by name.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	return families, nil
}

// WriteText writes every metric family in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
