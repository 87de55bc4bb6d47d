package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultMissing ResultLabel = "missing"
	ResultCached  ResultLabel = "cached"
)

// Recorder defines observability hooks for the node store, plugin runner,
// persistence and build phases.
type Recorder interface {
	IncAction(actionType string)
	SetNodeCount(n int)
	ObserveHookDuration(plugin, api string, d time.Duration, success bool)
	IncSnapshotSave(result ResultLabel)
	IncSnapshotLoad(result ResultLabel)
	ObserveSnapshotBytes(n int)
	IncContentLoad(plugin string, result ResultLabel)
	ObservePhaseDuration(phase string, d time.Duration, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncAction(string)                                        {}
func (NoopRecorder) SetNodeCount(int)                                        {}
func (NoopRecorder) ObserveHookDuration(string, string, time.Duration, bool) {}
func (NoopRecorder) IncSnapshotSave(ResultLabel)                             {}
func (NoopRecorder) IncSnapshotLoad(ResultLabel)                             {}
func (NoopRecorder) ObserveSnapshotBytes(int)                                {}
func (NoopRecorder) IncContentLoad(string, ResultLabel)                      {}
func (NoopRecorder) ObservePhaseDuration(string, time.Duration, bool)        {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
