package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	actions       *prom.CounterVec
	nodes         prom.Gauge
	hookDuration  *prom.HistogramVec
	hookFailures  *prom.CounterVec
	snapshotSaves *prom.CounterVec
	snapshotLoads *prom.CounterVec
	snapshotBytes prom.Gauge
	contentLoads  *prom.CounterVec
	phaseDuration *prom.HistogramVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil registry gets a fresh private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		actions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegraph",
			Name:      "actions_dispatched_total",
			Help:      "Actions dispatched to the node store by type",
		}, []string{"type"}),
		nodes: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitegraph",
			Name:      "nodes",
			Help:      "Nodes currently held by the store",
		}),
		hookDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitegraph",
			Name:      "plugin_hook_duration_seconds",
			Help:      "Duration of plugin API hook invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"plugin", "api"}),
		hookFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegraph",
			Name:      "plugin_hook_failures_total",
			Help:      "Plugin API hook invocations that returned an error",
		}, []string{"plugin", "api"}),
		snapshotSaves: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegraph",
			Name:      "snapshot_saves_total",
			Help:      "Snapshot saves by result",
		}, []string{"result"}),
		snapshotLoads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegraph",
			Name:      "snapshot_loads_total",
			Help:      "Snapshot loads at startup by result",
		}, []string{"result"}),
		snapshotBytes: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitegraph",
			Name:      "snapshot_bytes",
			Help:      "Size of the last written snapshot",
		}),
		contentLoads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegraph",
			Name:      "content_loads_total",
			Help:      "Node content loads by owning plugin and result",
		}, []string{"plugin", "result"}),
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitegraph",
			Name:      "build_phase_duration_seconds",
			Help:      "Duration of build phases",
			Buckets:   prom.DefBuckets,
		}, []string{"phase", "result"}),
	}
	reg.MustRegister(pr.actions, pr.nodes, pr.hookDuration, pr.hookFailures,
		pr.snapshotSaves, pr.snapshotLoads, pr.snapshotBytes, pr.contentLoads, pr.phaseDuration)
	return pr
}

func (p *PrometheusRecorder) IncAction(actionType string) {
	if p == nil {
		return
	}
	p.actions.WithLabelValues(actionType).Inc()
}

func (p *PrometheusRecorder) SetNodeCount(n int) {
	if p == nil {
		return
	}
	p.nodes.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveHookDuration(plugin, api string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	p.hookDuration.WithLabelValues(plugin, api).Observe(d.Seconds())
	if !success {
		p.hookFailures.WithLabelValues(plugin, api).Inc()
	}
}

func (p *PrometheusRecorder) IncSnapshotSave(result ResultLabel) {
	if p == nil {
		return
	}
	p.snapshotSaves.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncSnapshotLoad(result ResultLabel) {
	if p == nil {
		return
	}
	p.snapshotLoads.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveSnapshotBytes(n int) {
	if p == nil {
		return
	}
	p.snapshotBytes.Set(float64(n))
}

func (p *PrometheusRecorder) IncContentLoad(plugin string, result ResultLabel) {
	if p == nil {
		return
	}
	p.contentLoads.WithLabelValues(plugin, string(result)).Inc()
}

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := string(ResultFailed)
	if success {
		res = string(ResultSuccess)
	}
	p.phaseDuration.WithLabelValues(phase, res).Observe(d.Seconds())
}
