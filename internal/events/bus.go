// Package events provides the typed in-process bus every dispatched action is
// published on.
package events

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

// Bus is a small, typed, in-process event bus.
//
// Subscriptions are keyed by type. Subscribing to an interface type receives
// every published event whose concrete type implements it, which is how the
// wildcard ("every action") subscription is expressed.
//
// Two delivery modes exist:
//   - Subscribe: bounded channel; Publish blocks until accepted or ctx is done.
//   - SubscribeFunc: handler runs inline inside Publish, in subscription order.
//     Handlers must be quick and must not publish.
//
// For a single publisher, every subscriber observes events in publish order.
type Bus struct {
	mu        sync.RWMutex
	subs      map[reflect.Type]map[uint64]*subscriber
	nextID    atomic.Uint64
	isClosed  atomic.Bool
	closeOnce sync.Once
}

type subscriber struct {
	id    uint64
	send  func(ctx context.Context, evt any) error
	close func()
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[reflect.Type]map[uint64]*subscriber),
	}
}

// Subscribe registers a channel subscription for events of type T. The
// channel is closed by the returned func or by Close; a publisher blocked on a
// full channel at that point gives up instead of sending.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	eventType := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	// done is closed first to release blocked senders; ch is closed only once
	// sendMu shows no send is in flight.
	done := make(chan struct{})
	var (
		sendMu    sync.RWMutex
		closeOnce sync.Once
	)
	closeChannel := func() {
		closeOnce.Do(func() {
			close(done)
			sendMu.Lock()
			close(ch)
			sendMu.Unlock()
		})
	}

	sub := &subscriber{
		send: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return mismatch(eventType, evt)
			}
			sendMu.RLock()
			defer sendMu.RUnlock()
			select {
			case <-done:
				return nil
			default:
			}
			select {
			case ch <- v:
				return nil
			case <-done:
				return nil
			case <-ctx.Done():
				return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event publish canceled").
					WithContext("event_type", eventType.String()).
					Build()
			}
		},
		close: closeChannel,
	}

	if !b.add(eventType, sub) {
		closeChannel()
		return ch, func() {}
	}
	return ch, b.remover(eventType, sub)
}

// SubscribeFunc registers a handler invoked synchronously for events of type T.
func SubscribeFunc[T any](b *Bus, fn func(T)) func() {
	eventType := reflect.TypeFor[T]()
	sub := &subscriber{
		send: func(_ context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return mismatch(eventType, evt)
			}
			fn(v)
			return nil
		},
		close: func() {},
	}
	if !b.add(eventType, sub) {
		return func() {}
	}
	return b.remover(eventType, sub)
}

// SubscriberCount returns the number of active subscribers for events of type T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[T]()])
}

func (b *Bus) add(eventType reflect.Type, sub *subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed.Load() {
		return false
	}
	sub.id = b.nextID.Add(1)
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[uint64]*subscriber)
	}
	b.subs[eventType][sub.id] = sub
	return true
}

func (b *Bus) remover(eventType reflect.Type, sub *subscriber) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if typeSubs, ok := b.subs[eventType]; ok {
				delete(typeSubs, sub.id)
				if len(typeSubs) == 0 {
					delete(b.subs, eventType)
				}
			}
			b.mu.Unlock()
			sub.close()
		})
	}
}

// Publish delivers an event to all matching subscribers, in subscription order.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}
	if b.isClosed.Load() {
		return ferrors.RuntimeError("event bus is closed").Build()
	}

	evtType := reflect.TypeOf(evt)

	b.mu.RLock()
	var targets []*subscriber
	for subType, typeSubs := range b.subs {
		match := subType == evtType
		if !match && subType.Kind() == reflect.Interface {
			match = evtType.Implements(subType)
		}
		if !match {
			continue
		}
		for _, s := range typeSubs {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	for _, s := range targets {
		if err := s.send(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the bus and all subscription channels.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.isClosed.Store(true)
		var toClose []*subscriber
		for _, typeSubs := range b.subs {
			for _, s := range typeSubs {
				toClose = append(toClose, s)
			}
		}
		b.subs = make(map[reflect.Type]map[uint64]*subscriber)
		b.mu.Unlock()

		for _, s := range toClose {
			s.close()
		}
	})
}

func mismatch(expected reflect.Type, evt any) error {
	return ferrors.InternalError("event type mismatch").
		WithContext("expected", expected.String()).
		WithContext("actual", reflect.TypeOf(evt).String()).
		Build()
}
