// Package events carries ritual progress from the orchestrator to the SSE
// stream and the CLI. Progress is best effort; terminal events reach
// watchers unless they stop reading.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is published on the bus. Every event belongs to one ritual and,
// when known, one owner.
type Event interface {
	EventType() string
	Timestamp() time.Time
	RitualID() string
	OwnerID() string
}

// BaseEvent holds the fields shared by all ritual events.
type BaseEvent struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"timestamp"`
	Ritual string    `json:"ritual_id"`
	Owner  string    `json:"owner_id,omitempty"`
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) RitualID() string     { return e.Ritual }
func (e BaseEvent) OwnerID() string      { return e.Owner }

// NewBaseEvent stamps an event with the current time.
func NewBaseEvent(eventType, ritualID, ownerID string) BaseEvent {
	return BaseEvent{
		Type:   eventType,
		Time:   time.Now(),
		Ritual: ritualID,
		Owner:  ownerID,
	}
}

// DefaultTerminalWait bounds how long PublishTerminal waits on one watcher.
const DefaultTerminalWait = 5 * time.Second

// Filter selects events. Empty fields match everything.
type Filter struct {
	Owner  string
	Ritual string
	Types  []string
}

func (f Filter) match(ev Event) bool {
	if f.Owner != "" && ev.OwnerID() != f.Owner {
		return false
	}
	if f.Ritual != "" && ev.RitualID() != f.Ritual {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == ev.EventType() {
			return true
		}
	}
	return false
}

type subscription struct {
	ch     chan Event
	filter Filter
	// watchers wait for room for terminal events instead of dropping.
	watcher bool

	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex // serializes sends with close
	closed bool
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// offer delivers without blocking. When full, a watcher drops ev so that
// buffered terminal events survive; a plain subscriber evicts its oldest
// event instead. It returns how many events were lost.
func (s *subscription) offer(ev Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	select {
	case s.ch <- ev:
		return 0
	default:
	}
	if s.watcher {
		return 1
	}
	lost := 0
	select {
	case <-s.ch:
		lost++
	default:
	}
	select {
	case s.ch <- ev:
	default:
		lost++
	}
	return lost
}

// await blocks until ev is buffered, the subscription stops or wait elapses.
func (s *subscription) await(ev Event, wait time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	case <-timer.C:
		return false
	}
}

// EventBus fans ritual events out to subscribers.
type EventBus struct {
	mu           sync.RWMutex
	subs         map[<-chan Event]*subscription
	bufferSize   int
	terminalWait time.Duration
	dropped      atomic.Int64
	closed       bool
}

// New creates a bus whose subscriptions buffer bufferSize events.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subs:         make(map[<-chan Event]*subscription),
		bufferSize:   bufferSize,
		terminalWait: DefaultTerminalWait,
	}
}

// SetTerminalWait changes how long PublishTerminal waits on a full watcher.
func (eb *EventBus) SetTerminalWait(d time.Duration) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if d > 0 {
		eb.terminalWait = d
	}
}

// Subscribe returns a best-effort feed of the given types (all when none).
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	return eb.add(Filter{Types: types}, false)
}

// Watch returns a feed narrowed by f on which terminal events are not
// evicted by progress noise.
func (eb *EventBus) Watch(f Filter) <-chan Event {
	return eb.add(f, true)
}

func (eb *EventBus) add(f Filter, watcher bool) <-chan Event {
	sub := &subscription{
		ch:      make(chan Event, eb.bufferSize),
		filter:  f,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		sub.stop()
		return sub.ch
	}
	eb.subs[sub.ch] = sub
	return sub.ch
}

// Unsubscribe ends a subscription and closes its channel. A publisher
// blocked on it is released first.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	sub, ok := eb.subs[ch]
	delete(eb.subs, ch)
	eb.mu.Unlock()
	if ok {
		sub.stop()
	}
}

func (eb *EventBus) matching(ev Event) ([]*subscription, time.Duration) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return nil, 0
	}
	out := make([]*subscription, 0, len(eb.subs))
	for _, sub := range eb.subs {
		if sub.filter.match(ev) {
			out = append(out, sub)
		}
	}
	return out, eb.terminalWait
}

// Publish delivers ev without blocking; full subscriptions lose an event.
func (eb *EventBus) Publish(event Event) {
	subs, _ := eb.matching(event)
	for _, sub := range subs {
		if n := sub.offer(event); n > 0 {
			eb.dropped.Add(int64(n))
		}
	}
}

// PublishTerminal delivers an event that ends a ritual or records its
// result. Watchers are waited on up to the terminal wait; plain
// subscribers are treated as in Publish.
func (eb *EventBus) PublishTerminal(event Event) {
	subs, wait := eb.matching(event)
	for _, sub := range subs {
		if !sub.watcher {
			if n := sub.offer(event); n > 0 {
				eb.dropped.Add(int64(n))
			}
			continue
		}
		if !sub.await(event, wait) {
			eb.dropped.Add(1)
		}
	}
}

// DroppedCount returns the number of events lost so far.
func (eb *EventBus) DroppedCount() int64 {
	return eb.dropped.Load()
}

// Close stops every subscription. Publishing afterwards is a no-op.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.closed = true
	subs := eb.subs
	eb.subs = nil
	eb.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}
