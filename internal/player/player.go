// Package player contains the playback engine: the preload orchestrator,
// the realtime render callback, the timing engine, the event dispatcher,
// and the Player facade that ties them to the speaker.
package player

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"

	"github.com/wavecast/wavecast/internal/api"
	"github.com/wavecast/wavecast/internal/chunk"
	"github.com/wavecast/wavecast/internal/pcm"
	"github.com/wavecast/wavecast/internal/track"
)

const (
	// SpeakerBufferSize is the speaker's own output latency buffer.
	SpeakerBufferSize = 250 * time.Millisecond

	// VolumeCurveExponent and MinVolumeDB shape the loudness curve: the
	// linear [0,1] control value maps onto an exponential gain so equal
	// slider steps sound like equal loudness steps.
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0

	// DefaultBufferBytes sizes the ring when the config leaves it unset.
	DefaultBufferBytes = 1 << 20
)

// Config carries the engine's tuning knobs. The zero value gets sensible
// defaults applied by New.
type Config struct {
	BufferBytes  int
	CrossfadeMs  int
	PreloadAhead int
	MaxAttempts  int
	RetryBase    time.Duration
	CacheSlots   int
	TickInterval time.Duration
	OutputWait   time.Duration
	Volume       float64
}

func (c Config) withDefaults() Config {
	if c.BufferBytes <= 0 {
		c.BufferBytes = DefaultBufferBytes
	}
	if c.CrossfadeMs < 0 {
		c.CrossfadeMs = 0
	}
	if c.Volume < 0 {
		c.Volume = 0
	}
	if c.Volume > 1 {
		c.Volume = 1
	}
	return c
}

// speakerOnce guards the process-wide speaker device. beep's speaker is a
// single output; each Player still carries its own buffer, orchestrator,
// and dispatcher, so engine instances stay independent everywhere else.
var (
	speakerMu   sync.Mutex
	speakerRate beep.SampleRate
)

func initSpeaker(rate beep.SampleRate) error {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if speakerRate == rate {
		return nil
	}
	if err := speaker.Init(rate, rate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	speakerRate = rate
	log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", rate, SpeakerBufferSize)
	return nil
}

// Player is the engine facade. It owns the ring buffer, the preload
// orchestrator, the renderer, the timing engine, and the gain stage, and
// exposes the control surface: Load, Play, Pause, Resume, Stop, Seek,
// SetVolume, QueueChunk.
//
// Chunk loads complete in any order; the facade appends them into the ring
// strictly sequentially, holding out-of-order payloads in the orchestrator
// until their predecessors arrive, so the buffer only ever contains
// contiguous audio.
type Player struct {
	cfg        Config
	dispatcher *Dispatcher
	buf        *pcm.Buffer
	orch       *Orchestrator

	mu         sync.Mutex
	track      track.Track
	loaded     bool
	renderer   *Renderer
	timing     *Timing
	volume     *effects.Volume
	ctrl       *beep.Ctrl
	level      float64
	crossfade  int // interleaved samples per chunk boundary
	nextAppend int
	trimNext   int // interleaved samples to drop from the front of the next append

	sub      *Subscription
	loopDone chan struct{}
	closed   bool
}

// New builds a player around the given chunk client. A nil dispatcher gets
// a fresh one; Events exposes it either way.
func New(cfg Config, client *api.Client, dispatcher *Dispatcher) *Player {
	cfg = cfg.withDefaults()
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}

	p := &Player{
		cfg:        cfg,
		dispatcher: dispatcher,
		buf:        pcm.NewBuffer(),
		level:      cfg.Volume,
		loopDone:   make(chan struct{}),
	}
	p.orch = NewOrchestrator(OrchestratorConfig{
		PreloadAhead: cfg.PreloadAhead,
		MaxAttempts:  cfg.MaxAttempts,
		RetryBase:    cfg.RetryBase,
		OutputWait:   cfg.OutputWait,
	}, client, chunk.NewCache(cfg.CacheSlots), dispatcher)

	p.sub = dispatcher.Subscribe()
	go p.eventLoop()
	return p
}

// Events returns the dispatcher carrying the engine's notifications.
func (p *Player) Events() *Dispatcher {
	return p.dispatcher
}

// Load prepares a track for playback: sizes the ring for its format,
// resets chunk descriptors and the append cursor, and queues the opening
// chunks at top urgency.
func (p *Player) Load(t track.Track, v track.Variant) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("cannot load track: %w", err)
	}

	p.mu.Lock()
	if p.loaded {
		// Retire the previous session before touching the ring: Init
		// reallocates storage out from under a live consumer, and a stale
		// ctrl chain left on the mixer would drain the new ring twice.
		p.stopLocked()
	}
	if err := p.buf.Init(t.SampleRate, t.Channels, p.cfg.BufferBytes); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("cannot load track %s: %w", t.ID, err)
	}
	p.track = t
	p.loaded = true
	p.nextAppend = 0
	p.trimNext = 0
	p.crossfade = p.cfg.CrossfadeMs * t.SampleRate / 1000 * t.Channels
	p.renderer = NewRenderer(p.buf, p.dispatcher)
	p.timing = NewTiming(p.renderer, p.dispatcher, p.cfg.TickInterval)
	p.mu.Unlock()

	p.orch.InitChunks(t, v)
	p.orch.SetOutputReady()
	p.orch.QueueChunk(0, chunk.PriorityCurrent)
	if t.TotalChunks > 1 {
		p.orch.QueueChunk(1, chunk.PriorityNext)
	}

	log.Debug().Str("track", t.ID).Dur("duration", t.Duration()).Msg("Track loaded")
	return nil
}

// Play opens the speaker and starts the render chain. The chain is
// renderer → volume → ctrl: gain and pause act on the stream without ever
// touching buffered samples.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return fmt.Errorf("no track loaded")
	}
	if p.renderer.State() == StatePlaying {
		return nil
	}

	if err := initSpeaker(beep.SampleRate(p.track.SampleRate)); err != nil {
		return err
	}

	p.volume = &effects.Volume{
		Streamer: p.renderer,
		Base:     2,
		Volume:   levelToExponent(p.level),
		Silent:   p.level == 0,
	}
	p.ctrl = &beep.Ctrl{Streamer: p.volume}

	p.renderer.Start()
	speaker.Play(p.ctrl)

	// Pin from the current position so a seek made before Play survives.
	p.timing.UpdateReference(p.renderer.Now(), p.timing.Position())
	p.timing.SetPaused(false)
	p.timing.StartTicker()

	log.Debug().Str("track", p.track.ID).Msg("Playback started")
	return nil
}

// Pause gates the stream and freezes the reported position. The renderer
// keeps its place in the speaker chain.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil || p.renderer.State() != StatePlaying {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
	p.renderer.Pause()
	p.timing.SetPaused(true)
	log.Debug().Msg("Playback paused")
}

// Resume reopens the gate and re-pins timing from the frozen position.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil || p.renderer.State() != StatePaused {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
	p.renderer.Resume()
	p.timing.SetPaused(false)
	log.Debug().Msg("Playback resumed")
}

// Stop ends the session: the speaker chain is cleared, the ticker stops,
// and all queued preload work is discarded. Loads already in flight settle
// on their own and are ignored.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return
	}
	p.stopLocked()
	log.Debug().Msg("Playback stopped")
}

func (p *Player) stopLocked() {
	speaker.Clear()
	if p.timing != nil {
		p.timing.StopTicker()
	}
	p.orch.ClearQueue()
	p.renderer.Stop()
	p.ctrl = nil
	p.volume = nil
}

// Seek moves playback to the given position. Before returning it discards
// queued work less urgent than the seek, resets the ring under the speaker
// lock, re-pins timing to the target, and queues the target chunk at seek
// urgency, so nothing races stale background loads.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return fmt.Errorf("no track loaded")
	}
	pos = p.track.ClampTime(pos)
	target := p.track.ChunkForTime(pos)

	p.orch.ClearLowerPriority(chunk.PrioritySeek)

	speaker.Lock()
	p.buf.Reset()
	speaker.Unlock()

	p.timing.UpdateReference(p.renderer.Now(), pos)
	p.nextAppend = target
	// A mid-chunk target: the samples before pos are trimmed off the chunk
	// at append time so the clock and the audio line up exactly.
	offset := pos - p.track.ChunkStart(target)
	p.trimNext = int(offset*time.Duration(p.track.SampleRate)/time.Second) * p.track.Channels
	p.orch.QueueChunk(target, chunk.PrioritySeek)

	log.Debug().Dur("pos", pos).Int("chunk", target).Msg("Seek")

	// The target may already be held by the orchestrator, in which case no
	// new load event will fire for it.
	p.appendContiguousLocked()
	return nil
}

// SetVolume sets the gain as a linear [0,1] control value, clamped at the
// boundary and mapped through the loudness curve. Takes effect immediately
// when playing, otherwise at the next Play.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.level = v
	if p.volume == nil {
		log.Debug().Float64("volume", v).Msg("Volume stored, applied at next play")
		return
	}

	speaker.Lock()
	p.volume.Volume = levelToExponent(v)
	p.volume.Silent = v == 0
	speaker.Unlock()
	log.Debug().Float64("volume", v).Msg("Volume set")
}

// Volume returns the current [0,1] control value.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// QueueChunk requests a chunk load at an explicit priority.
func (p *Player) QueueChunk(index int, pr chunk.Priority) {
	p.orch.QueueChunk(index, pr)
}

// Position returns the current playback position derived from the audio
// clock, or zero before a track is loaded.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timing == nil {
		return 0
	}
	return p.timing.Position()
}

// State returns the renderer's lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer == nil {
		return StateIdle
	}
	return p.renderer.State()
}

// Track returns the loaded track, if any.
func (p *Player) Track() (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track, p.loaded
}

// BufferHealth returns the ring's fill level as 0-100.
func (p *Player) BufferHealth() float64 {
	return p.buf.FillPercent()
}

// ChunkStatus exposes one chunk descriptor's state.
func (p *Player) ChunkStatus(index int) (ChunkStatus, bool) {
	return p.orch.ChunkStatus(index)
}

// Close releases the engine: playback stops, the orchestrator shuts down,
// and the internal event loop exits. The dispatcher is left open for its
// owner when one was passed in.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.Stop()
	p.orch.Close()
	p.dispatcher.Unsubscribe(p.sub)
	<-p.loopDone
	p.buf.Dispose()
}

// eventLoop is the producer side of the ring: it reacts to finished loads
// by appending whatever has become contiguous, and to consumption by
// topping the ring back up with payloads that previously did not fit.
func (p *Player) eventLoop() {
	defer close(p.loopDone)
	for {
		select {
		case <-p.sub.Done():
			return
		case ev := <-p.sub.C:
			switch ev.(type) {
			case ChunkLoaded, SamplesPlayed:
				p.mu.Lock()
				if p.loaded {
					p.appendContiguousLocked()
				}
				p.mu.Unlock()
			}
		}
	}
}

// appendContiguousLocked feeds the ring every loaded chunk starting at the
// append cursor, stopping at the first gap or when a chunk no longer fits.
// A chunk that overflows is retried untouched on a later pass; partial
// appends never happen. Once past the final chunk every pass lands on the
// tail flush, so the closing crossfade samples go out as soon as playback
// frees room for them.
func (p *Player) appendContiguousLocked() {
	for p.nextAppend < p.track.TotalChunks {
		payload := p.orch.Payload(p.nextAppend)
		if payload == nil {
			return
		}
		samples := payload.Samples
		if trim := p.trimNext; trim > 0 {
			if trim > len(samples) {
				trim = len(samples)
			}
			samples = samples[trim:]
		}
		if err := p.buf.Append(samples, p.crossfade); err != nil {
			// Overflow: the ring is healthily full. The cursor stays put
			// and the next SamplesPlayed event retries.
			return
		}
		p.trimNext = 0
		log.Debug().Int("chunk", p.nextAppend).Int("samples", len(samples)).Msg("Chunk appended")
		p.nextAppend++

		if p.nextAppend < p.track.TotalChunks {
			p.orch.QueueChunk(p.nextAppend, chunk.PriorityNext)
		}
	}
	if err := p.buf.FlushTail(); err != nil && err != pcm.ErrBufferOverflow {
		log.Warn().Err(err).Msg("Could not flush crossfade tail")
	}
}

// levelToExponent maps the linear [0,1] control value onto effects.Volume's
// base-2 exponent. Zero is fully silent (handled by the Silent flag), one
// is unity gain.
func levelToExponent(v float64) float64 {
	if v <= 0 {
		return MinVolumeDB
	}
	if v >= 1 {
		return 0
	}
	return (1.0 - math.Pow(v, VolumeCurveExponent)) * MinVolumeDB
}
