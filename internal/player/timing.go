package player

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is the position-update cadence. It bounds how stale
// the displayed position can appear, not the position itself: subscribers
// always receive a value derived from the audio clock.
const DefaultTickInterval = 50 * time.Millisecond

// Clock is a monotonically advancing audio clock. Production uses the
// renderer's cumulative frame count; tests substitute a fake.
type Clock interface {
	Now() time.Duration
}

// Timing derives the authoritative playback position by extrapolating from
// a pinned (clock time, track time) pair. The pin is refreshed on every
// discontinuity: start, resume, seek, and chunk-boundary corrections. While
// paused the position is frozen rather than extrapolated.
type Timing struct {
	clock      Clock
	dispatcher *Dispatcher
	interval   time.Duration

	mu         sync.Mutex
	clockAtPin time.Duration
	trackAtPin time.Duration
	paused     bool
	frozen     time.Duration
	ticker     *time.Ticker
	stopTick   chan struct{}
}

// NewTiming returns a timing engine publishing TimeUpdate events on the
// given dispatcher every interval once the ticker is started.
func NewTiming(clock Clock, dispatcher *Dispatcher, interval time.Duration) *Timing {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Timing{
		clock:      clock,
		dispatcher: dispatcher,
		interval:   interval,
	}
}

// UpdateReference re-pins the clock-to-track correspondence. While paused
// the frozen position snaps to the new track time as well, so a paused
// seek reports its target immediately.
func (t *Timing) UpdateReference(clockNow, trackTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clockAtPin = clockNow
	t.trackAtPin = trackTime
	if t.paused {
		t.frozen = trackTime
	}
	log.Debug().Dur("clock", clockNow).Dur("track", trackTime).Msg("Timing reference pinned")
}

// Position returns the current track time: the pinned track time plus the
// clock movement since the pin, or the frozen value while paused.
func (t *Timing) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused {
		return t.frozen
	}
	return t.trackAtPin + (t.clock.Now() - t.clockAtPin)
}

// SetPaused freezes the position at its current value, or re-pins from the
// frozen value when unfreezing. Redundant calls are no-ops.
func (t *Timing) SetPaused(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if paused == t.paused {
		return
	}
	if paused {
		t.frozen = t.trackAtPin + (t.clock.Now() - t.clockAtPin)
	} else {
		t.clockAtPin = t.clock.Now()
		t.trackAtPin = t.frozen
	}
	t.paused = paused
}

// Paused reports whether the position is currently frozen.
func (t *Timing) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// StartTicker begins periodic TimeUpdate publication. Calling it while the
// ticker runs is a no-op; the cadence never doubles.
func (t *Timing) StartTicker() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil {
		return
	}
	t.ticker = time.NewTicker(t.interval)
	t.stopTick = make(chan struct{})
	go t.run(t.ticker, t.stopTick)
	log.Debug().Dur("interval", t.interval).Msg("Started time updates")
}

// StopTicker halts periodic publication. Safe to call when not running.
func (t *Timing) StopTicker() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker == nil {
		return
	}
	close(t.stopTick)
	t.ticker = nil
	t.stopTick = nil
	log.Debug().Msg("Stopped time updates")
}

func (t *Timing) run(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			// Publication never blocks, so a slow subscriber cannot
			// stall the tick.
			t.dispatcher.Publish(TimeUpdate{Position: t.Position()})
		case <-stop:
			ticker.Stop()
			return
		}
	}
}
