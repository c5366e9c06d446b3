package pcm

import "time"

// Payload is one chunk's decoded audio: interleaved float32 samples at a
// known rate and channel count. Once decoded a payload is never mutated, so
// it may be shared between the cache and chunk records.
type Payload struct {
	Samples  []float32
	Rate     int
	Channels int
}

// SampleCount returns the number of interleaved samples.
func (p *Payload) SampleCount() int {
	return len(p.Samples)
}

// Frames returns the number of per-channel frames.
func (p *Payload) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the playback length of the payload.
func (p *Payload) Duration() time.Duration {
	if p.Rate == 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.Rate)
}
