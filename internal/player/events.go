package player

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wavecast/wavecast/internal/pcm"
)

// Event is the closed set of notifications the engine publishes. Every
// variant is a struct in this file; consumers type-switch over them and the
// compiler keeps the set exhaustive.
type Event interface {
	isEvent()
}

// ChunkLoaded reports that a chunk's decoded audio is available.
type ChunkLoaded struct {
	Index   int
	Payload *pcm.Payload
}

// ChunkError reports a failed load attempt for a chunk.
type ChunkError struct {
	Index int
	Err   error
}

// QueueError reports that the load queue itself could not make progress,
// e.g. the audio output never became ready.
type QueueError struct {
	Err error
}

// Underrun reports a render callback that wanted more samples than the
// buffer held. Wanted and Got count interleaved samples.
type Underrun struct {
	Wanted int
	Got    int
}

// SamplesPlayed reports one render callback's consumption: how many
// interleaved samples it drained and how many remain buffered.
type SamplesPlayed struct {
	Count     int
	Available int
}

// TimeUpdate carries the current playback position on each timing tick.
type TimeUpdate struct {
	Position time.Duration
}

func (ChunkLoaded) isEvent()   {}
func (ChunkError) isEvent()    {}
func (QueueError) isEvent()    {}
func (Underrun) isEvent()      {}
func (SamplesPlayed) isEvent() {}
func (TimeUpdate) isEvent()    {}

// eventBufferSize is the per-subscriber channel depth. A subscriber that
// falls further behind than this starts losing events.
const eventBufferSize = 64

// Subscription is one listener's view of the event stream. Events arrive
// on C; Done is signalled when the subscription is cancelled or the
// dispatcher closes. C itself is never closed, so a consumer loop must
// select on both.
type Subscription struct {
	C    chan Event
	done chan struct{}

	once    sync.Once
	dropped atomic.Int64
}

// Done is signalled when no further events will arrive.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many events were discarded because this subscriber's
// channel was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) cancel() {
	s.once.Do(func() { close(s.done) })
}

// Dispatcher fans events out to subscribers. Delivery is fire-and-forget:
// a full subscriber channel drops the event rather than stalling the
// publisher, so the render callback and the timing tick can publish from
// latency-sensitive paths. Publish takes no lock; the subscriber list is
// swapped wholesale on subscribe/unsubscribe.
type Dispatcher struct {
	mu     sync.Mutex
	subs   atomic.Value // []*Subscription
	closed bool
}

// NewDispatcher returns a dispatcher with no subscribers.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{}
	d.subs.Store([]*Subscription(nil))
	return d
}

// Subscribe registers a new listener. Subscribing to a closed dispatcher
// returns a subscription that is already done.
func (d *Dispatcher) Subscribe() *Subscription {
	s := &Subscription{
		C:    make(chan Event, eventBufferSize),
		done: make(chan struct{}),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		s.cancel()
		return s
	}

	cur := d.subs.Load().([]*Subscription)
	next := make([]*Subscription, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, s)
	d.subs.Store(next)
	return s
}

// Unsubscribe removes a listener and signals its Done channel.
func (d *Dispatcher) Unsubscribe(s *Subscription) {
	d.mu.Lock()
	cur := d.subs.Load().([]*Subscription)
	next := make([]*Subscription, 0, len(cur))
	for _, sub := range cur {
		if sub != s {
			next = append(next, sub)
		}
	}
	d.subs.Store(next)
	d.mu.Unlock()

	s.cancel()
}

// Publish delivers an event to every subscriber that has room for it.
func (d *Dispatcher) Publish(ev Event) {
	subs, _ := d.subs.Load().([]*Subscription)
	for _, s := range subs {
		select {
		case s.C <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (d *Dispatcher) Subscribers() int {
	subs, _ := d.subs.Load().([]*Subscription)
	return len(subs)
}

// Close cancels all subscriptions and rejects new ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true

	subs, _ := d.subs.Load().([]*Subscription)
	for _, s := range subs {
		s.cancel()
	}
	d.subs.Store([]*Subscription(nil))
}
