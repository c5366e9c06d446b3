package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wavecast/wavecast/internal/api"
	"github.com/wavecast/wavecast/internal/chunk"
	"github.com/wavecast/wavecast/internal/pcm"
	"github.com/wavecast/wavecast/internal/track"
)

const (
	// DefaultOutputWait bounds how long the processing loop waits for the
	// audio output to come up before reporting a queue error. Startup order
	// between the UI and the audio side is not guaranteed, so the loop
	// waits instead of failing on the first dequeue.
	DefaultOutputWait = 5 * time.Second

	// DefaultRetryBase is the first retry delay after a failed load; each
	// further attempt doubles it.
	DefaultRetryBase = 500 * time.Millisecond

	// DefaultMaxAttempts bounds automatic retries per chunk. An exhausted
	// chunk stays errored until something re-queues it.
	DefaultMaxAttempts = 3
)

// ErrOutputNotReady is published as a QueueError when the audio output does
// not become available within the configured wait.
var ErrOutputNotReady = errors.New("player: audio output not ready")

// LoadState tracks one chunk's progress through the load pipeline.
type LoadState int

const (
	LoadUnloaded LoadState = iota
	LoadLoading
	LoadLoaded
	LoadErrored
)

func (s LoadState) String() string {
	switch s {
	case LoadUnloaded:
		return "unloaded"
	case LoadLoading:
		return "loading"
	case LoadLoaded:
		return "loaded"
	case LoadErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ChunkStatus is a point-in-time copy of one chunk descriptor, safe to hand
// out to callers.
type ChunkStatus struct {
	Index       int
	State       LoadState
	Attempts    int
	LastAttempt time.Time
}

// chunkRecord is the orchestrator-owned descriptor of one chunk. All
// mutation happens under the orchestrator's mutex; load results are applied
// only by the collector goroutine, so there is a single writer for the load
// pipeline and no torn reads through the accessors.
type chunkRecord struct {
	state       LoadState
	payload     *pcm.Payload
	attempts    int
	lastAttempt time.Time
}

// OrchestratorConfig carries the orchestrator's tuning knobs.
type OrchestratorConfig struct {
	PreloadAhead int
	MaxAttempts  int
	RetryBase    time.Duration
	OutputWait   time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.PreloadAhead < 0 {
		c.PreloadAhead = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.OutputWait <= 0 {
		c.OutputWait = DefaultOutputWait
	}
	return c
}

// loadResult is one settled fetch-decode-cache attempt, sent by a load
// goroutine to the collector.
type loadResult struct {
	handle    *chunk.LoadHandle
	trackID   string
	variant   track.Variant
	priority  chunk.Priority
	payload   *pcm.Payload
	err       error
	fromCache bool
}

// Orchestrator keeps the sample buffer's supply of decoded chunks ahead of
// playback while minimizing redundant network and decode work. It drains
// the priority queue, runs fetch-decode-cache loads concurrently, retries
// failures with bounded exponential backoff, and re-seeds background
// preloads behind urgent loads.
//
// Chunk descriptors are owned here. Workers never touch them: each load
// reports through the results channel and a single collector goroutine
// applies every descriptor mutation, so listeners can never observe a
// half-applied load.
type Orchestrator struct {
	cfg        OrchestratorConfig
	client     *api.Client
	cache      *chunk.Cache
	queue      *chunk.Queue
	dispatcher *Dispatcher

	mu      sync.Mutex
	track   track.Track
	variant track.Variant
	chunks  []chunkRecord
	timers  map[int]*time.Timer

	ready     chan struct{}
	readyOnce sync.Once

	looping atomic.Bool
	results chan loadResult
	done    chan struct{}
	once    sync.Once
}

// NewOrchestrator wires an orchestrator to its client, cache, and event
// dispatcher. Call InitChunks before queueing anything.
func NewOrchestrator(cfg OrchestratorConfig, client *api.Client, cache *chunk.Cache, dispatcher *Dispatcher) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg.withDefaults(),
		client:     client,
		cache:      cache,
		queue:      chunk.NewQueue(),
		dispatcher: dispatcher,
		timers:     make(map[int]*time.Timer),
		ready:      make(chan struct{}),
		results:    make(chan loadResult, 16),
		done:       make(chan struct{}),
	}
	go o.collect()
	return o
}

// InitChunks resets the per-track descriptors for a new track and variant.
// Queued work and pending retries for the previous track are discarded;
// loads already in flight settle against the new state and are dropped as
// stale.
func (o *Orchestrator) InitChunks(t track.Track, v track.Variant) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.track = t
	o.variant = v
	o.chunks = make([]chunkRecord, t.TotalChunks)
	o.cancelTimersLocked()
	o.queue.Clear()

	log.Debug().Str("track", t.ID).Int("chunks", t.TotalChunks).Msg("Chunk descriptors reset")
}

// SetOutputReady unblocks the processing loop's wait for the audio output.
// Safe to call more than once.
func (o *Orchestrator) SetOutputReady() {
	o.readyOnce.Do(func() { close(o.ready) })
}

// QueueChunk requests a chunk at the given priority. A chunk already loaded
// with a payload is a no-op; re-queueing an errored chunk starts a fresh
// attempt sequence. The processing loop is started if it is idle.
func (o *Orchestrator) QueueChunk(index int, p chunk.Priority) {
	o.mu.Lock()
	if index < 0 || index >= len(o.chunks) {
		o.mu.Unlock()
		log.Warn().Int("chunk", index).Msg("Ignoring request for out-of-range chunk")
		return
	}
	rec := &o.chunks[index]
	if rec.state == LoadLoaded && rec.payload != nil {
		o.mu.Unlock()
		return
	}
	if rec.state == LoadErrored {
		rec.state = LoadUnloaded
		rec.attempts = 0
	}
	o.mu.Unlock()

	o.queue.Enqueue(index, p)
	o.startLoop()
}

// ClearLowerPriority drops queued work less urgent than the threshold.
// In-flight loads are untouched.
func (o *Orchestrator) ClearLowerPriority(threshold chunk.Priority) {
	o.queue.ClearBelow(threshold)
}

// ClearQueue drops all queued work. In-flight loads run to completion and
// settle against current descriptor state.
func (o *Orchestrator) ClearQueue() {
	o.queue.Clear()
}

// ChunkStatus returns a copy of one chunk's descriptor.
func (o *Orchestrator) ChunkStatus(index int) (ChunkStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if index < 0 || index >= len(o.chunks) {
		return ChunkStatus{}, false
	}
	rec := o.chunks[index]
	return ChunkStatus{
		Index:       index,
		State:       rec.state,
		Attempts:    rec.attempts,
		LastAttempt: rec.lastAttempt,
	}, true
}

// Payload returns the decoded audio for a loaded chunk, or nil. Payloads
// are immutable once decoded, so sharing the pointer is safe.
func (o *Orchestrator) Payload(index int) *pcm.Payload {
	o.mu.Lock()
	defer o.mu.Unlock()

	if index < 0 || index >= len(o.chunks) {
		return nil
	}
	if o.chunks[index].state != LoadLoaded {
		return nil
	}
	return o.chunks[index].payload
}

// QueueLen returns the number of queued (not in-flight) requests.
func (o *Orchestrator) QueueLen() int {
	return o.queue.Len()
}

// Close stops the collector and cancels pending retries. In-flight loads
// still settle, into a closed collector, and are dropped.
func (o *Orchestrator) Close() {
	o.once.Do(func() {
		o.mu.Lock()
		o.cancelTimersLocked()
		o.mu.Unlock()
		o.queue.Clear()
		close(o.done)
	})
}

func (o *Orchestrator) cancelTimersLocked() {
	for idx, timer := range o.timers {
		timer.Stop()
		delete(o.timers, idx)
	}
}

// startLoop launches the processing loop unless one is already running.
func (o *Orchestrator) startLoop() {
	if !o.looping.CompareAndSwap(false, true) {
		return
	}
	go o.processLoop()
}

// processLoop drains the queue, launching one goroutine per load. Loads run
// concurrently; the loop never waits for one to finish before dequeuing the
// next. It exits when the queue is empty.
func (o *Orchestrator) processLoop() {
	defer func() {
		o.looping.Store(false)
		// An enqueue that raced the exit saw the loop as running; pick
		// its work up rather than stranding it.
		if o.queue.Len() > 0 {
			o.startLoop()
		}
	}()

	if !o.waitOutputReady() {
		// Dropping the queued work keeps the exit path from respawning
		// the loop; the next QueueChunk starts a fresh bounded wait.
		o.queue.Clear()
		return
	}

	for {
		entry, ok := o.queue.Dequeue()
		if !ok {
			return
		}

		o.mu.Lock()
		if entry.Index >= len(o.chunks) {
			o.mu.Unlock()
			continue
		}
		if o.queue.IsLoading(entry.Index) {
			o.mu.Unlock()
			continue
		}
		rec := &o.chunks[entry.Index]
		if rec.state == LoadLoaded && rec.payload != nil {
			o.mu.Unlock()
			continue
		}
		rec.state = LoadLoading
		rec.attempts++
		rec.lastAttempt = time.Now()
		t, v := o.track, o.variant
		o.mu.Unlock()

		handle := chunk.NewLoadHandle(entry.Index)
		o.queue.MarkActive(entry.Index, handle)
		log.Debug().
			Str("load", handle.ID).
			Int("chunk", entry.Index).
			Stringer("priority", entry.Priority).
			Msg("Starting chunk load")

		go o.load(handle, entry.Priority, t, v)
	}
}

// waitOutputReady blocks until the audio output is available, bounded by
// the configured wait. A timeout surfaces as a QueueError event.
func (o *Orchestrator) waitOutputReady() bool {
	select {
	case <-o.ready:
		return true
	case <-o.done:
		return false
	default:
	}

	log.Debug().Dur("wait", o.cfg.OutputWait).Msg("Queue waiting for audio output")
	timer := time.NewTimer(o.cfg.OutputWait)
	defer timer.Stop()

	select {
	case <-o.ready:
		return true
	case <-o.done:
		return false
	case <-timer.C:
		log.Error().Dur("wait", o.cfg.OutputWait).Msg("Audio output never became ready")
		o.dispatcher.Publish(QueueError{Err: ErrOutputNotReady})
		return false
	}
}

// load runs one fetch-decode-cache sequence and reports the outcome to the
// collector. It never touches descriptors directly.
func (o *Orchestrator) load(h *chunk.LoadHandle, p chunk.Priority, t track.Track, v track.Variant) {
	result := loadResult{handle: h, trackID: t.ID, variant: v, priority: p}

	key := chunk.NewKey(t.ID, h.Index, v)
	if payload, ok := o.cache.Get(key); ok {
		result.payload = payload
		result.fromCache = true
		o.send(result)
		return
	}

	data, err := o.client.FetchChunk(context.Background(), t, v, h.Index)
	if err != nil {
		result.err = err
		o.send(result)
		return
	}

	payload, err := pcm.Decode(data.Bytes, data.ContentType)
	if err != nil {
		result.err = fmt.Errorf("chunk %d of %s: %w", h.Index, t.ID, err)
		o.send(result)
		return
	}

	o.cache.Set(key, payload)
	result.payload = payload
	o.send(result)
}

func (o *Orchestrator) send(res loadResult) {
	select {
	case o.results <- res:
	case <-o.done:
	}
}

// collect is the single mutation point for chunk descriptors: every load
// outcome passes through here, one at a time, for the orchestrator's whole
// lifetime.
func (o *Orchestrator) collect() {
	for {
		select {
		case <-o.done:
			return
		case res := <-o.results:
			o.apply(res)
		}
	}
}

func (o *Orchestrator) apply(res loadResult) {
	o.queue.ClearActive(res.handle.Index)

	o.mu.Lock()
	index := res.handle.Index
	if res.trackID != o.track.ID || res.variant != o.variant || index >= len(o.chunks) {
		o.mu.Unlock()
		log.Debug().Str("load", res.handle.ID).Int("chunk", index).Msg("Discarding stale load result")
		return
	}
	rec := &o.chunks[index]

	if res.err != nil {
		rec.state = LoadErrored
		rec.payload = nil
		attempts := rec.attempts
		retry := attempts < o.cfg.MaxAttempts
		if retry {
			delay := o.cfg.RetryBase << (attempts - 1)
			priority := res.priority
			o.timers[index] = time.AfterFunc(delay, func() {
				o.mu.Lock()
				delete(o.timers, index)
				o.mu.Unlock()
				o.queue.Enqueue(index, priority)
				o.startLoop()
			})
			log.Warn().
				Err(res.err).
				Int("chunk", index).
				Int("attempt", attempts).
				Dur("retry_in", delay).
				Msg("Chunk load failed, will retry")
		} else {
			log.Error().
				Err(res.err).
				Int("chunk", index).
				Int("attempts", attempts).
				Msg("Chunk load failed, giving up")
		}
		o.mu.Unlock()

		o.dispatcher.Publish(ChunkError{Index: index, Err: res.err})
		return
	}

	rec.state = LoadLoaded
	rec.payload = res.payload

	// An urgent load finishing means the playhead is (or is about to be)
	// here; seed the next few chunks as background work.
	var seeded []int
	if res.priority <= chunk.PrioritySeek {
		for i := 1; i <= o.cfg.PreloadAhead; i++ {
			next := index + i
			if next >= len(o.chunks) {
				break
			}
			if o.chunks[next].state == LoadLoaded || o.queue.IsQueued(next) {
				continue
			}
			seeded = append(seeded, next)
		}
	}
	o.mu.Unlock()

	log.Debug().
		Str("load", res.handle.ID).
		Int("chunk", index).
		Bool("cached", res.fromCache).
		Dur("took", time.Since(res.handle.Started)).
		Msg("Chunk loaded")

	o.dispatcher.Publish(ChunkLoaded{Index: index, Payload: res.payload})

	for _, next := range seeded {
		o.queue.Enqueue(next, chunk.PriorityBackground)
	}
	if len(seeded) > 0 {
		o.startLoop()
	}
}
