package eventstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitegraph/internal/events"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// Writer appends every dispatched action to a Store. Each process run is one
// session.
type Writer struct {
	bus       *events.Bus
	store     Store
	sessionID string
	logger    *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

func NewWriter(bus *events.Bus, st Store, logger *slog.Logger) (*Writer, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if st == nil {
		return nil, ferrors.ValidationError("action log store is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		bus:       bus,
		store:     st,
		sessionID: uuid.NewString(),
		logger:    logger,
		ready:     make(chan struct{}),
	}, nil
}

func (w *Writer) SessionID() string { return w.sessionID }

// Ready is closed once Run has subscribed.
func (w *Writer) Ready() <-chan struct{} { return w.ready }

// Run logs actions until ctx is done or the bus closes. Append failures are
// logged; the log is a diagnostic aid and never blocks the build.
func (w *Writer) Run(ctx context.Context) error {
	actions, unsubscribe := events.Subscribe[store.Action](w.bus, 256)
	defer unsubscribe()
	w.readyOnce.Do(func() { close(w.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-actions:
			if !ok {
				return nil
			}
			w.append(ctx, a)
		}
	}
}

func (w *Writer) append(ctx context.Context, a store.Action) {
	rec, err := NewRecord(w.sessionID, a, time.Now())
	if err == nil {
		_, err = w.store.Append(ctx, rec)
	}
	if err != nil {
		w.logger.Warn("Action log append failed",
			logfields.Action(string(a.Type())),
			logfields.Error(err))
	}
}
