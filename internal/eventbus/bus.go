package eventbus

import (
	"sync"

	"memecoin-radar/internal/observability"
)

// DefaultQueueSize is the per-subscriber buffer before drop-oldest kicks in.
const DefaultQueueSize = 256

// Bus broadcasts events to all subscribers. Publishing never blocks: a
// subscriber whose queue is full loses its oldest pending event, which is
// replaced by a droppedEvents marker carrying the running count.
type Bus struct {
	mu       sync.Mutex
	subs     map[*Subscriber]struct{}
	queueCap int
}

// New creates a Bus with the given per-subscriber queue capacity.
// Non-positive capacity selects DefaultQueueSize.
func New(queueCap int) *Bus {
	if queueCap <= 0 {
		queueCap = DefaultQueueSize
	}
	return &Bus{
		subs:     make(map[*Subscriber]struct{}),
		queueCap: queueCap,
	}
}

// Publish delivers the event to every current subscriber. Each
// subscriber sees publishes in the order they were made.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	observability.RecordEventPublished(string(ev.Type))
	for _, s := range subs {
		s.push(ev)
	}
}

// Subscribe registers a new subscriber and returns it. The caller must
// drain C() and call Unsubscribe when done.
func (b *Bus) Subscribe() *Subscriber {
	s := newSubscriber(b.queueCap)
	b.mu.Lock()
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()
	observability.SetSubscribers(n)

	go s.pump()
	return s
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	n := len(b.subs)
	b.mu.Unlock()
	observability.SetSubscribers(n)

	s.close()
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscriber is one consumer's view of the bus. Events arrive on C() in
// publish order; slow consumers lose oldest events first.
type Subscriber struct {
	out chan Event

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	cap     int
	dropped int
	closed  bool
}

func newSubscriber(queueCap int) *Subscriber {
	s := &Subscriber{
		out: make(chan Event),
		cap: queueCap,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// C is the subscriber's event channel. It is closed on Unsubscribe.
func (s *Subscriber) C() <-chan Event {
	return s.out
}

// push enqueues the event, evicting the oldest entries when full. The
// queue head always becomes a droppedEvents marker after an eviction, so
// the consumer learns how many events it missed.
func (s *Subscriber) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if len(s.queue) < s.cap {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
		return
	}

	if s.queue[0].Type == TypeDroppedEvents {
		// Head marker already pending: drop the oldest real event and
		// bump the marker's count.
		s.queue = append(s.queue[:1], s.queue[2:]...)
		s.dropped++
		s.queue[0].Count = s.dropped
		s.queue = append(s.queue, ev)
	} else {
		// Evict two to make room for the marker itself.
		s.evict()
		s.evict()
		s.queue = append([]Event{droppedEvents(s.dropped)}, s.queue...)
		s.queue = append(s.queue, ev)
	}
	observability.RecordEventDropped()
	s.cond.Signal()
}

// evict removes the oldest queued event. s.dropped tracks every drop not
// yet reported through a marker; pump zeroes it when the marker is
// delivered. Caller holds the lock.
func (s *Subscriber) evict() {
	if len(s.queue) == 0 {
		return
	}
	s.queue = s.queue[1:]
	s.dropped++
}

// pump moves events from the queue to the outgoing channel. Sends may
// block on a slow consumer; the queue absorbs publishes meanwhile.
func (s *Subscriber) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		if ev.Type == TypeDroppedEvents {
			s.dropped = 0
		}
		s.mu.Unlock()

		s.out <- ev
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	// Unblock a pump stuck sending to a consumer that went away.
	go func() {
		for range s.out {
		}
	}()
}
