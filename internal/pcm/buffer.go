// Package pcm holds the decoded-audio building blocks of the engine: the
// circular sample buffer the render callback drains, the decoded payload
// type, and the chunk decoder.
package pcm

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const bytesPerSample = 4 // float32

var (
	// ErrBufferUninitialized is returned by buffer operations before Init
	// (or after Dispose). Accessors like Available return zero instead.
	ErrBufferUninitialized = errors.New("pcm: buffer not initialized")

	// ErrBufferOverflow is returned when an append does not fit in free
	// space. The buffer keeps its existing content; the incoming chunk is
	// dropped whole.
	ErrBufferOverflow = errors.New("pcm: append exceeds free space")
)

// Buffer is a fixed-capacity ring of interleaved float32 samples with one
// producer and one consumer. The producer appends decoded chunks and owns
// the write cursor; the audio callback reads and owns the read cursor. One
// guard slot keeps a full ring distinguishable from an empty one, so the
// cursors alone synchronize the two sides and the read path takes no locks.
//
// Crossfade state (the retained tail) belongs to the producer side: the
// final samples of each appended chunk are withheld from the readable
// region until the next append blends them with its opening samples, or
// FlushTail writes them out verbatim.
type Buffer struct {
	storage []float32
	size    int64 // len(storage) = capacity + 1 guard slot

	writePos atomic.Int64
	readPos  atomic.Int64

	totalAppended atomic.Int64
	totalRead     atomic.Int64

	sampleRate int
	channels   int

	tail []float32
	mix  []float32 // scratch for composing one append, reused across calls
}

// NewBuffer returns an empty buffer. Init must be called before use.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Init allocates backing storage for capacityBytes/4 sample slots plus the
// guard slot, and resets cursors, counters, and crossfade state. Calling
// Init on a live buffer reallocates; the caller must ensure the consumer is
// quiescent.
func (b *Buffer) Init(sampleRate, channels, capacityBytes int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("pcm: invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("pcm: invalid channel count %d", channels)
	}
	slots := capacityBytes / bytesPerSample
	if slots <= 0 {
		return fmt.Errorf("pcm: capacity %d bytes holds no samples", capacityBytes)
	}

	b.storage = make([]float32, slots+1)
	b.size = int64(slots + 1)
	b.sampleRate = sampleRate
	b.channels = channels
	b.writePos.Store(0)
	b.readPos.Store(0)
	b.totalAppended.Store(0)
	b.totalRead.Store(0)
	b.tail = nil

	log.Debug().Int("slots", slots).Int("rate", sampleRate).Int("channels", channels).Msg("PCM buffer initialized")
	return nil
}

// Append writes one decoded chunk into the ring. When crossfade > 0 and a
// tail from the previous chunk is retained, the opening samples of the
// incoming chunk are blended with that tail over a linear ramp whose
// weights stay strictly inside (0,1): for overlap width n, the incoming
// sample at step i carries weight (i+1)/(n+1), so a width-1 overlap averages
// the two boundary samples. Samples past the overlap are copied unchanged,
// and the last crossfade samples of the original incoming chunk become the
// new retained tail.
//
// If the write does not fit in free space the entire chunk is dropped and
// ErrBufferOverflow returned; nothing about the buffer changes. Non-finite
// samples pass through untouched.
func (b *Buffer) Append(samples []float32, crossfade int) error {
	if b.storage == nil {
		return ErrBufferUninitialized
	}
	if crossfade < 0 {
		crossfade = 0
	}

	// The overlap can never exceed what both sides actually have.
	blend := crossfade
	if blend > len(b.tail) {
		blend = len(b.tail)
	}
	if blend > len(samples) {
		blend = len(samples)
	}
	// Tail samples with no incoming partner (crossfade shrank between
	// appends) are flushed verbatim ahead of the blended region.
	lead := len(b.tail) - blend
	// How much of the incoming chunk to withhold as the next tail.
	hold := crossfade
	if hold > len(samples)-blend {
		hold = len(samples) - blend
	}
	if hold < 0 {
		hold = 0
	}

	writeLen := lead + len(samples) - hold
	if int64(writeLen) > b.free() {
		log.Warn().
			Int("incoming", len(samples)).
			Int64("free", b.free()).
			Msg("PCM buffer full, dropping chunk")
		return ErrBufferOverflow
	}

	mix := b.mix[:0]
	mix = append(mix, b.tail[:lead]...)
	for i := 0; i < blend; i++ {
		in := float32(i+1) / float32(blend+1)
		mix = append(mix, b.tail[lead+i]*(1-in)+samples[i]*in)
	}
	mix = append(mix, samples[blend:len(samples)-hold]...)
	b.mix = mix

	b.write(mix)
	b.tail = append(b.tail[:0], samples[len(samples)-hold:]...)
	return nil
}

// FlushTail writes any retained crossfade tail unblended and clears it.
// Called after the final chunk of a track so its closing samples are not
// lost waiting for a successor.
func (b *Buffer) FlushTail() error {
	if b.storage == nil {
		return ErrBufferUninitialized
	}
	if len(b.tail) == 0 {
		return nil
	}
	if int64(len(b.tail)) > b.free() {
		log.Warn().Int("tail", len(b.tail)).Msg("PCM buffer full, dropping crossfade tail")
		return ErrBufferOverflow
	}
	b.write(b.tail)
	b.tail = b.tail[:0]
	return nil
}

// write copies src into the ring in at most two segments and publishes the
// new write cursor once all of it is in place.
func (b *Buffer) write(src []float32) {
	w := b.writePos.Load()
	n := int64(len(src))
	first := b.size - w
	if first > n {
		first = n
	}
	copy(b.storage[w:w+first], src[:first])
	copy(b.storage[:n-first], src[first:])
	b.writePos.Store((w + n) % b.size)
	b.totalAppended.Add(n)
}

// Read copies up to len(dst) available samples in FIFO order and advances
// the read cursor. It returns fewer than requested (possibly zero) when the
// ring is under-filled; it never blocks and never pads.
func (b *Buffer) Read(dst []float32) (int, error) {
	if b.storage == nil {
		return 0, ErrBufferUninitialized
	}
	r := b.readPos.Load()
	w := b.writePos.Load()
	n := (w - r + b.size) % b.size
	if n > int64(len(dst)) {
		n = int64(len(dst))
	}
	if n == 0 {
		return 0, nil
	}
	first := b.size - r
	if first > n {
		first = n
	}
	copy(dst[:first], b.storage[r:r+first])
	copy(dst[first:n], b.storage[:n-first])
	b.readPos.Store((r + n) % b.size)
	b.totalRead.Add(n)
	return int(n), nil
}

// Available returns the number of samples ready to read.
func (b *Buffer) Available() int {
	if b.storage == nil {
		return 0
	}
	w := b.writePos.Load()
	r := b.readPos.Load()
	return int((w - r + b.size) % b.size)
}

// Capacity returns the number of samples the ring can hold.
func (b *Buffer) Capacity() int {
	if b.storage == nil {
		return 0
	}
	return int(b.size - 1)
}

// FillPercent returns the readable fraction of capacity as 0-100.
func (b *Buffer) FillPercent() float64 {
	cap := b.Capacity()
	if cap == 0 {
		return 0
	}
	return float64(b.Available()) / float64(cap) * 100
}

func (b *Buffer) free() int64 {
	w := b.writePos.Load()
	r := b.readPos.Load()
	return b.size - 1 - (w-r+b.size)%b.size
}

// TotalAppended returns the cumulative count of samples written to storage.
func (b *Buffer) TotalAppended() int64 {
	return b.totalAppended.Load()
}

// TotalRead returns the cumulative count of samples handed to the consumer.
func (b *Buffer) TotalRead() int64 {
	return b.totalRead.Load()
}

// SampleRate returns the rate set by Init, or zero before it.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// Channels returns the interleaved channel count set by Init.
func (b *Buffer) Channels() int {
	return b.channels
}

// Reset zeroes cursors, counters, storage, and crossfade state without
// deallocating. The caller must ensure the consumer is quiescent, the same
// as for Init.
func (b *Buffer) Reset() {
	if b.storage == nil {
		return
	}
	for i := range b.storage {
		b.storage[i] = 0
	}
	b.writePos.Store(0)
	b.readPos.Store(0)
	b.totalAppended.Store(0)
	b.totalRead.Store(0)
	b.tail = b.tail[:0]
}

// Dispose releases backing storage. The buffer returns to the uninitialized
// state and Init may be called again.
func (b *Buffer) Dispose() {
	b.storage = nil
	b.size = 0
	b.tail = nil
	b.mix = nil
	b.writePos.Store(0)
	b.readPos.Store(0)
}
