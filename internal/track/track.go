// Package track defines the data structures for streamable tracks and their
// chunk layout.
package track

import (
	"fmt"
	"time"
)

// Variant selects a server-side rendering of a track's chunks. The same
// chunk index fetched with different variant parameters yields different
// audio bytes.
type Variant struct {
	Enhanced  bool    `json:"enhanced"`
	Preset    string  `json:"preset"`
	Intensity float64 `json:"intensity"`
}

// Track describes one playable track as served by the chunk endpoint. Audio
// is split into TotalChunks contiguous chunks of ChunkMs milliseconds each,
// all sharing one sample rate and channel count.
type Track struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	TotalChunks int    `json:"totalChunks"`
	ChunkMs     int    `json:"chunkMs"`
	SampleRate  int    `json:"sampleRate"`
	Channels    int    `json:"channels"`
}

// Validate reports whether the track metadata is complete enough to play.
func (t Track) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("track has no ID")
	}
	if t.TotalChunks <= 0 {
		return fmt.Errorf("track %s has invalid chunk count %d", t.ID, t.TotalChunks)
	}
	if t.ChunkMs <= 0 {
		return fmt.Errorf("track %s has invalid chunk duration %dms", t.ID, t.ChunkMs)
	}
	if t.SampleRate <= 0 {
		return fmt.Errorf("track %s has invalid sample rate %d", t.ID, t.SampleRate)
	}
	if t.Channels <= 0 {
		return fmt.Errorf("track %s has invalid channel count %d", t.ID, t.Channels)
	}
	return nil
}

// ChunkDuration returns the playback length of a single chunk.
func (t Track) ChunkDuration() time.Duration {
	return time.Duration(t.ChunkMs) * time.Millisecond
}

// Duration returns the playback length of the whole track.
func (t Track) Duration() time.Duration {
	return time.Duration(t.TotalChunks) * t.ChunkDuration()
}

// ChunkForTime maps a playback position to the chunk covering it, clamped to
// the track's chunk range.
func (t Track) ChunkForTime(pos time.Duration) int {
	if pos <= 0 || t.ChunkMs <= 0 {
		return 0
	}
	idx := int(pos / t.ChunkDuration())
	if idx >= t.TotalChunks {
		idx = t.TotalChunks - 1
	}
	return idx
}

// ChunkStart returns the playback position at which a chunk begins.
func (t Track) ChunkStart(index int) time.Duration {
	return time.Duration(index) * t.ChunkDuration()
}

// ClampTime limits a position to the track's playable range.
func (t Track) ClampTime(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if d := t.Duration(); pos > d {
		return d
	}
	return pos
}

// ValidChunk reports whether index addresses a chunk of this track.
func (t Track) ValidChunk(index int) bool {
	return index >= 0 && index < t.TotalChunks
}
