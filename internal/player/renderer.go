package player

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wavecast/wavecast/internal/pcm"
)

// State is the renderer's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Renderer is the realtime render callback: a beep.Streamer the speaker
// pulls on its own schedule. Each invocation drains exactly the samples
// the output frame needs from the ring buffer, maps source channels onto
// the stereo output, and zero-fills whatever the buffer could not supply.
// It never blocks and never waits for data; a starved callback emits
// silence and an Underrun event, and playback recovers on its own once
// appends catch up.
//
// The only shared state it touches on the audio path is the ring buffer's
// read cursor; event publication is non-blocking and counters are atomics.
// Gain is deliberately not applied here; the facade wraps the renderer in
// an effects.Volume stage so volume changes never touch buffered samples.
type Renderer struct {
	buf        *pcm.Buffer
	dispatcher *Dispatcher

	state atomic.Int32

	errMu sync.Mutex
	err   error

	// scratch grows to the largest callback seen and is then reused, so
	// the steady-state audio path performs no allocation.
	scratch []float32

	framesRendered atomic.Int64
	underruns      atomic.Int64
}

// NewRenderer returns an idle renderer draining the given buffer. A fresh
// renderer is built for every playback session; stopped and errored
// renderers are discarded, not restarted.
func NewRenderer(buf *pcm.Buffer, dispatcher *Dispatcher) *Renderer {
	r := &Renderer{buf: buf, dispatcher: dispatcher}
	r.state.Store(int32(StateIdle))
	return r
}

// State returns the current lifecycle state.
func (r *Renderer) State() State {
	return State(r.state.Load())
}

func (r *Renderer) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	if old != s {
		log.Debug().Msgf("Renderer state: %s -> %s", old, s)
	}
}

// Start moves an idle renderer to playing.
func (r *Renderer) Start() {
	if r.State() == StateIdle {
		r.setState(StatePlaying)
	}
}

// Pause suspends output. The renderer keeps its place in the speaker
// chain and emits silence if pulled while paused.
func (r *Renderer) Pause() {
	if r.State() == StatePlaying {
		r.setState(StatePaused)
	}
}

// Resume continues output after Pause.
func (r *Renderer) Resume() {
	if r.State() == StatePaused {
		r.setState(StatePlaying)
	}
}

// Stop ends the stream permanently. The next pull tells the speaker the
// stream is finished.
func (r *Renderer) Stop() {
	if r.State() != StateError {
		r.setState(StateStopped)
	}
}

func (r *Renderer) fail(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
	r.setState(StateError)
	log.Error().Err(err).Msg("Renderer entered error state")
}

// Stream fills the output frame slice from the ring buffer. It implements
// beep.Streamer and runs under the speaker's callback.
func (r *Renderer) Stream(samples [][2]float64) (int, bool) {
	switch r.State() {
	case StateStopped, StateError:
		return 0, false
	case StateIdle, StatePaused:
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}

	channels := r.buf.Channels()
	if channels <= 0 {
		r.fail(pcm.ErrBufferUninitialized)
		return 0, false
	}

	needed := len(samples) * channels
	if cap(r.scratch) < needed {
		r.scratch = make([]float32, needed)
	}
	scratch := r.scratch[:needed]

	got, err := r.buf.Read(scratch)
	if err != nil {
		r.fail(err)
		return 0, false
	}

	var frames int
	switch channels {
	case 1:
		frames = got
		for i := 0; i < got; i++ {
			v := float64(scratch[i])
			samples[i][0], samples[i][1] = v, v
		}
	case 2:
		frames = got / 2
		for i := 0; i < frames; i++ {
			samples[i][0] = float64(scratch[2*i])
			samples[i][1] = float64(scratch[2*i+1])
		}
	default:
		// Wider layouts: best effort, the first two channels of each
		// frame drive the stereo output and the rest are dropped.
		frames = got / channels
		for i := 0; i < frames; i++ {
			base := i * channels
			samples[i][0] = float64(scratch[base])
			samples[i][1] = float64(scratch[base+1])
		}
	}

	for i := frames; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	if got < needed {
		r.underruns.Add(1)
		r.dispatcher.Publish(Underrun{Wanted: needed, Got: got})
	}

	// Silence counts toward the clock: the speaker consumed a full frame
	// of output time whether or not audio backed it.
	r.framesRendered.Add(int64(len(samples)))
	r.dispatcher.Publish(SamplesPlayed{Count: got, Available: r.buf.Available()})
	return len(samples), true
}

// Err reports the failure that moved the renderer to the error state.
func (r *Renderer) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// Now converts cumulative frames rendered into clock time. It is the
// production Clock for the timing engine.
func (r *Renderer) Now() time.Duration {
	rate := r.buf.SampleRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(r.framesRendered.Load()) * time.Second / time.Duration(rate)
}

// FramesRendered returns the cumulative output frames produced, silence
// included.
func (r *Renderer) FramesRendered() int64 {
	return r.framesRendered.Load()
}

// Underruns returns how many callbacks were starved.
func (r *Renderer) Underruns() int64 {
	return r.underruns.Load()
}
