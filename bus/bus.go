package bus

import "sync"

// Type names a pipeline stage event. The values are stable wire names
// shared with external tooling.
type Type string

const (
	AudioChunk        Type = "audio.chunk"
	TranscriptPartial Type = "transcript.partial"
	TranscriptFinal   Type = "transcript.final"
	ContextUpdated    Type = "context.updated"
	TriggerFired      Type = "trigger.fired"
	FactsRetrieved    Type = "facts.retrieved"
	AssistCardReady   Type = "assist.card.ready"
)

type Event struct {
	Type Type
	Data any
}

// Bus is an in-process publish/subscribe fabric connecting pipeline
// stages. Delivery to a single subscriber is FIFO, which is what
// preserves per-call ordering through the pipeline: each stage drains
// one subscription from one goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]*Subscription
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[Type][]*Subscription)}
}

// Subscription receives events on C until Close (or Bus.Close) closes it.
type Subscription struct {
	C <-chan Event

	bus   *Bus
	ch    chan Event
	done  chan struct{}
	types []Type

	sendMu sync.Mutex
	closed bool

	once sync.Once
}

// Subscribe registers interest in the given event types.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	sub := &Subscription{
		bus:   b,
		ch:    make(chan Event, 16),
		done:  make(chan struct{}),
		types: types,
	}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], sub)
	}
	return sub
}

// Close removes the subscription and closes its channel. A publisher
// blocked on this subscription's full channel is released.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	for _, t := range s.types {
		subs := s.bus.subs[t]
		for i, candidate := range subs {
			if candidate == s {
				s.bus.subs[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	s.bus.mu.Unlock()

	s.shutdown()
}

// shutdown unblocks in-flight deliveries, fences out new ones, then
// closes the channel. Closing done first means no deliver call can
// stay parked in its select once shutdown has started.
func (s *Subscription) shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.sendMu.Lock()
		s.closed = true
		s.sendMu.Unlock()
		close(s.ch)
	})
}

// deliver blocks until the event is buffered or the subscription
// closes. Sends to one subscription are serialized under sendMu so
// shutdown can wait out an in-flight send before closing the channel.
func (s *Subscription) deliver(e Event) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	case <-s.done:
	}
}

// Publish delivers the event to every subscriber of its type. Sends
// block rather than drop so slow stages apply backpressure instead of
// losing ordering. The bus lock is released before sending so a
// blocked publisher never wedges Subscribe or Close.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, len(b.subs[e.Type]))
	copy(subs, b.subs[e.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(e)
	}
}

// Close shuts the bus down; subsequent publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	seen := make(map[*Subscription]bool)
	var all []*Subscription
	for _, subs := range b.subs {
		for _, sub := range subs {
			if !seen[sub] {
				seen[sub] = true
				all = append(all, sub)
			}
		}
	}
	b.subs = make(map[Type][]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.shutdown()
	}
}
