// Package metrics provides the observability hooks for sitegraph.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so metrics stay optional:
//
//	st := store.New(bus, store.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder is activated when metrics are enabled in the configuration
// or when the state inspector is attached, which serves HTTPHandler on /metrics.
package metrics
