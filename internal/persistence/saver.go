package persistence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/sitegraph/internal/events"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/metrics"
	"git.home.luguber.info/inful/sitegraph/internal/retry"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// Source provides the state to persist.
type Source interface {
	Snapshot() store.PersistedState
}

type SaverConfig struct {
	Path        string
	QuietWindow time.Duration
	MaxDelay    time.Duration
	// Retry schedules another attempt after a failed timed save. The zero
	// value means retry.DefaultPolicy.
	Retry retry.Policy
}

// Saver coalesces bursts of actions into a single snapshot write.
//
//   - quiet window: a save happens once no action arrived for QuietWindow
//   - max delay: a continuous stream of actions cannot postpone it beyond MaxDelay
//
// Save failures are logged and counted, then retried with backoff while the
// retry budget lasts; dispatchers never see them.
type Saver struct {
	bus      *events.Bus
	source   Source
	cfg      SaverConfig
	logger   *slog.Logger
	recorder metrics.Recorder

	readyOnce sync.Once
	ready     chan struct{}

	saveMu sync.Mutex
	dirty  atomic.Bool
}

type SaverOption func(*Saver)

func WithLogger(l *slog.Logger) SaverOption {
	return func(s *Saver) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) SaverOption {
	return func(s *Saver) { s.recorder = metrics.OrNoop(r) }
}

func NewSaver(bus *events.Bus, source Source, cfg SaverConfig, opts ...SaverOption) (*Saver, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if source == nil {
		return nil, ferrors.ValidationError("snapshot source is required").Build()
	}
	if cfg.Path == "" {
		return nil, ferrors.ValidationError("snapshot path is required").Build()
	}
	if cfg.QuietWindow <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").Build()
	}
	if cfg.MaxDelay <= 0 {
		return nil, ferrors.ValidationError("max delay must be > 0").Build()
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	s := &Saver{
		bus:      bus,
		source:   source,
		cfg:      cfg,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ready is closed once Run has subscribed to the action stream.
func (s *Saver) Ready() <-chan struct{} {
	return s.ready
}

// Run saves after quiet periods until ctx is done or the bus closes, then
// flushes any unsaved changes.
func (s *Saver) Run(ctx context.Context) error {
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}

	actions, unsubscribe := events.Subscribe[store.Action](s.bus, 256)
	defer unsubscribe()

	s.readyOnce.Do(func() { close(s.ready) })

	quietTimer := newStoppedTimer()
	maxTimer := newStoppedTimer()
	retryTimer := newStoppedTimer()
	var (
		quietC  <-chan time.Time
		maxC    <-chan time.Time
		retryC  <-chan time.Time
		retries int
	)
	// save flushes and arms the retry timer when the write failed with an
	// error worth retrying.
	save := func() {
		err := s.flushIfDirty()
		if err == nil {
			retries = 0
			return
		}
		if ce, ok := ferrors.AsClassified(err); ok && !ce.CanRetry() {
			retries = 0
			return
		}
		retries++
		if !s.cfg.Retry.Allows(retries) {
			s.logger.Warn("Snapshot save retries exhausted", logfields.Path(s.cfg.Path), slog.Int("retries", retries-1))
			retries = 0
			return
		}
		resetTimer(retryTimer, s.cfg.Retry.Delay(retries))
		retryC = retryTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = s.flushIfDirty()
			return nil
		case _, ok := <-actions:
			if !ok {
				_ = s.flushIfDirty()
				return nil
			}
			s.dirty.Store(true)

			resetTimer(quietTimer, s.cfg.QuietWindow)
			quietC = quietTimer.C
			if maxC == nil {
				resetTimer(maxTimer, s.cfg.MaxDelay)
				maxC = maxTimer.C
			}
		case <-quietC:
			quietC, maxC = nil, nil
			maxTimer.Stop()
			save()
		case <-maxC:
			quietC, maxC = nil, nil
			quietTimer.Stop()
			save()
		case <-retryC:
			retryC = nil
			save()
		}
	}
}

func (s *Saver) flushIfDirty() error {
	if !s.dirty.Load() {
		return nil
	}
	err := s.Flush()
	if err != nil {
		s.logger.Warn("Snapshot save failed", logfields.Path(s.cfg.Path), logfields.Error(err))
	}
	return err
}

// Flush writes the current state immediately.
func (s *Saver) Flush() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	// Cleared before the snapshot is taken: anything arriving later marks it again.
	s.dirty.Store(false)
	ps := s.source.Snapshot()

	start := time.Now()
	n, err := Save(s.cfg.Path, ps)
	if err != nil {
		s.dirty.Store(true)
		s.recorder.IncSnapshotSave(metrics.ResultFailed)
		return err
	}
	s.recorder.IncSnapshotSave(metrics.ResultSuccess)
	s.recorder.ObserveSnapshotBytes(n)
	s.logger.Debug("Snapshot saved",
		logfields.Path(s.cfg.Path),
		logfields.Count(len(ps.Nodes)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	t.Stop()
	t.Reset(after)
}
