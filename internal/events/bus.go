package events

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Priority orders listeners within a dispatch. Higher runs first.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Highest
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Highest:
		return "highest"
	}
	return "unknown"
}

// Handler is invoked for each matching event. A returned error is logged
// and never aborts dispatch to later listeners.
type Handler func(Event) error

// Listener is the handle returned by the Subscribe functions. It is opaque
// to callers and only useful for Unsubscribe.
type Listener struct {
	kind            Kind
	tag             Tag
	global          bool
	priority        Priority
	ignoreCancelled bool
	fn              Handler
	seq             int
}

// Bus dispatches events to listeners in priority order, one at a time.
// Dispatch is never fanned out concurrently: ordering and cancellation
// short-circuiting stay deterministic.
type Bus struct {
	mu      sync.RWMutex
	byKind  map[Kind][]*Listener
	byTag   map[Tag][]*Listener
	global  []*Listener
	stats   map[Kind]int
	nextSeq int
	closed  bool
}

func NewBus() *Bus {
	return &Bus{
		byKind: make(map[Kind][]*Listener),
		byTag:  make(map[Tag][]*Listener),
		stats:  make(map[Kind]int),
	}
}

// Subscribe registers a listener for one event kind.
func (b *Bus) Subscribe(kind Kind, fn Handler, priority Priority, ignoreCancelled bool) *Listener {
	l := &Listener{kind: kind, priority: priority, ignoreCancelled: ignoreCancelled, fn: fn}
	b.mu.Lock()
	defer b.mu.Unlock()
	l.seq = b.nextSeq
	b.nextSeq++
	b.byKind[kind] = insertByPriority(b.byKind[kind], l)
	return l
}

// SubscribeTag registers a listener for every event carrying the tag.
func (b *Bus) SubscribeTag(tag Tag, fn Handler, priority Priority, ignoreCancelled bool) *Listener {
	l := &Listener{tag: tag, priority: priority, ignoreCancelled: ignoreCancelled, fn: fn}
	b.mu.Lock()
	defer b.mu.Unlock()
	l.seq = b.nextSeq
	b.nextSeq++
	b.byTag[tag] = insertByPriority(b.byTag[tag], l)
	return l
}

// SubscribeAll registers a listener for every event.
func (b *Bus) SubscribeAll(fn Handler, priority Priority, ignoreCancelled bool) *Listener {
	l := &Listener{global: true, priority: priority, ignoreCancelled: ignoreCancelled, fn: fn}
	b.mu.Lock()
	defer b.mu.Unlock()
	l.seq = b.nextSeq
	b.nextSeq++
	b.global = insertByPriority(b.global, l)
	return l
}

// insertByPriority keeps the slice in descending priority order; equal
// priorities keep insertion order.
func insertByPriority(listeners []*Listener, l *Listener) []*Listener {
	for i, existing := range listeners {
		if l.priority > existing.priority {
			listeners = append(listeners, nil)
			copy(listeners[i+1:], listeners[i:])
			listeners[i] = l
			return listeners
		}
	}
	return append(listeners, l)
}

// Unsubscribe removes a listener. Returns false if it was already removed.
func (b *Bus) Unsubscribe(l *Listener) bool {
	if l == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case l.global:
		if removed, ok := remove(b.global, l); ok {
			b.global = removed
			return true
		}
	case l.tag != "":
		if removed, ok := remove(b.byTag[l.tag], l); ok {
			b.byTag[l.tag] = removed
			return true
		}
	default:
		if removed, ok := remove(b.byKind[l.kind], l); ok {
			b.byKind[l.kind] = removed
			return true
		}
	}
	return false
}

func remove(listeners []*Listener, l *Listener) ([]*Listener, bool) {
	for i, existing := range listeners {
		if existing == l {
			return append(listeners[:i], listeners[i+1:]...), true
		}
	}
	return listeners, false
}

// Publish fires an event to all matching listeners and returns the same
// event, possibly mutated (cancelled) by a listener. Once a cancellable
// event is cancelled, dispatch stops at the first listener that does not
// ignore cancellation.
func (b *Bus) Publish(ev Event) Event {
	if ev.Time().IsZero() {
		ev.setTime(time.Now())
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ev
	}
	b.stats[ev.Kind()]++
	applicable := make([]*Listener, 0, len(b.byKind[ev.Kind()])+len(b.global))
	applicable = append(applicable, b.byKind[ev.Kind()]...)
	for _, tag := range ev.Tags() {
		applicable = append(applicable, b.byTag[tag]...)
	}
	applicable = append(applicable, b.global...)
	b.mu.Unlock()

	// Merge the per-list orderings: priority descending, registration
	// order within a priority.
	sort.SliceStable(applicable, func(i, j int) bool {
		if applicable[i].priority != applicable[j].priority {
			return applicable[i].priority > applicable[j].priority
		}
		return applicable[i].seq < applicable[j].seq
	})

	cancellable, _ := ev.(Cancellable)
	for _, l := range applicable {
		if cancellable != nil && cancellable.Cancelled() && !l.ignoreCancelled {
			// Cancelled before this listener ran; stop here.
			break
		}
		b.call(l, ev)
		if cancellable != nil && cancellable.Cancelled() && !l.ignoreCancelled {
			break
		}
	}
	return ev
}

// call isolates a single listener: errors and panics are logged, never
// propagated to other listeners.
func (b *Bus) call(l *Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: listener panic on %s: %v", ev.Kind(), r)
		}
	}()
	if err := l.fn(ev); err != nil {
		log.Printf("events: listener error on %s: %v", ev.Kind(), err)
	}
}

// Stats returns a copy of the per-kind fire counters.
func (b *Bus) Stats() map[Kind]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Kind]int, len(b.stats))
	for k, v := range b.stats {
		out[k] = v
	}
	return out
}

// ListenerCount reports how many listeners would match the given kind,
// ignoring tag subscriptions. Used by tests and the stats endpoint.
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byKind[kind]) + len(b.global)
}

// Close stops further dispatch. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// String implements fmt.Stringer for debug logging.
func (b *Bus) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.global)
	for _, ls := range b.byKind {
		n += len(ls)
	}
	for _, ls := range b.byTag {
		n += len(ls)
	}
	return fmt.Sprintf("events.Bus(%d listeners)", n)
}
