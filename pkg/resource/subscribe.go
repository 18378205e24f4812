package resource

import (
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/opendut/carl/pkg/log"
)

// EventKind distinguishes the three shapes of change a subscriber can see
// (spec §4.1: "subscribers are notified of Inserted/Updated/Removed events").
type EventKind int

const (
	Inserted EventKind = iota
	Updated
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Inserted:
		return "Inserted"
	case Updated:
		return "Updated"
	default:
		return "Removed"
	}
}

// Event is the typed notification delivered to a Subscribe handler. Old is
// nil for Inserted, New is nil for Removed.
type Event[T any] struct {
	Kind EventKind
	Id   uuid.UUID
	Old  *T
	New  *T
}

// change is the type-erased form of Event[T] queued internally by a
// committed transaction, dispatched to the matching per-type queue.
type change struct {
	typ  reflect.Type
	kind EventKind
	id   uuid.UUID
	old  any
	new  any
}

// typeQueue serializes delivery of every change for one resource type: the
// spec requires subscribers to observe events for a single type in commit
// order, while different types may be dispatched concurrently with one
// another (spec §5).
type typeQueue struct {
	mu          sync.Mutex
	subscribers []func(change)
	pending     chan change
	once        sync.Once
}

func (q *typeQueue) start() {
	q.once.Do(func() {
		q.pending = make(chan change, 64)
		go q.run()
	})
}

func (q *typeQueue) run() {
	for c := range q.pending {
		q.mu.Lock()
		handlers := make([]func(change), len(q.subscribers))
		copy(handlers, q.subscribers)
		q.mu.Unlock()
		for _, h := range handlers {
			dispatchOne(h, c)
		}
	}
}

// dispatchOne invokes a single subscriber, recovering any panic so that one
// misbehaving handler can never take down the queue goroutine or propagate
// back into the mutation that produced the event (spec §4.1).
func dispatchOne(h func(change), c change) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("resource: subscriber panicked handling %s event on %s: %v", c.kind, c.typ, r)
		}
	}()
	h(c)
}

// Bus is the process-wide typed subscription bus. It is held privately by
// ResourceManager; callers only ever see the generic Subscribe function.
type Bus struct {
	mu     sync.Mutex
	queues map[reflect.Type]*typeQueue
}

func newBus() *Bus {
	return &Bus{queues: make(map[reflect.Type]*typeQueue)}
}

func (b *Bus) queueFor(t reflect.Type) *typeQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[t]
	if !ok {
		q = &typeQueue{}
		b.queues[t] = q
	}
	q.start()
	return q
}

func (b *Bus) publish(c change) {
	b.queueFor(c.typ).pending <- c
}

// Unsubscribe removes a previously-registered handler.
type Unsubscribe func()

// Subscribe registers handler to be called for every Inserted/Updated/Removed
// event on resource type T, in commit order, after the transaction that
// produced the event has released the store lock (spec §4.1).
func Subscribe[T any](b *Bus, handler func(Event[T])) Unsubscribe {
	q := b.queueFor(typeOf[T]())
	wrapped := func(c change) {
		ev := Event[T]{Kind: c.kind, Id: c.id}
		if c.old != nil {
			old := c.old.(T)
			ev.Old = &old
		}
		if c.new != nil {
			nv := c.new.(T)
			ev.New = &nv
		}
		handler(ev)
	}
	q.mu.Lock()
	q.subscribers = append(q.subscribers, wrapped)
	idx := len(q.subscribers) - 1
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if idx < len(q.subscribers) {
			q.subscribers[idx] = func(change) {}
		}
	}
}
