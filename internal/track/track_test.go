package track

import (
	"testing"
	"time"
)

func validTrack() Track {
	return Track{
		ID:          "ambient-drift",
		Title:       "Ambient Drift",
		TotalChunks: 12,
		ChunkMs:     5000,
		SampleRate:  48000,
		Channels:    2,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Track)
		wantErr bool
	}{
		{"valid track", func(tr *Track) {}, false},
		{"missing ID", func(tr *Track) { tr.ID = "" }, true},
		{"zero chunks", func(tr *Track) { tr.TotalChunks = 0 }, true},
		{"negative chunks", func(tr *Track) { tr.TotalChunks = -1 }, true},
		{"zero chunk duration", func(tr *Track) { tr.ChunkMs = 0 }, true},
		{"zero sample rate", func(tr *Track) { tr.SampleRate = 0 }, true},
		{"zero channels", func(tr *Track) { tr.Channels = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTrack()
			tt.mutate(&tr)
			err := tr.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	tr := validTrack()

	if got := tr.ChunkDuration(); got != 5*time.Second {
		t.Errorf("ChunkDuration() = %v, want 5s", got)
	}
	if got := tr.Duration(); got != 60*time.Second {
		t.Errorf("Duration() = %v, want 60s", got)
	}
}

func TestChunkForTime(t *testing.T) {
	tr := validTrack()

	tests := []struct {
		name string
		pos  time.Duration
		want int
	}{
		{"start", 0, 0},
		{"negative clamps to first", -3 * time.Second, 0},
		{"inside first chunk", 4 * time.Second, 0},
		{"exact boundary", 5 * time.Second, 1},
		{"mid track", 27 * time.Second, 5},
		{"last sample", 59 * time.Second, 11},
		{"past end clamps to last", 2 * time.Minute, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.ChunkForTime(tt.pos); got != tt.want {
				t.Errorf("ChunkForTime(%v) = %d, want %d", tt.pos, got, tt.want)
			}
		})
	}
}

func TestChunkStart(t *testing.T) {
	tr := validTrack()

	if got := tr.ChunkStart(0); got != 0 {
		t.Errorf("ChunkStart(0) = %v, want 0", got)
	}
	if got := tr.ChunkStart(7); got != 35*time.Second {
		t.Errorf("ChunkStart(7) = %v, want 35s", got)
	}
}

func TestClampTime(t *testing.T) {
	tr := validTrack()

	if got := tr.ClampTime(-time.Second); got != 0 {
		t.Errorf("ClampTime(-1s) = %v, want 0", got)
	}
	if got := tr.ClampTime(30 * time.Second); got != 30*time.Second {
		t.Errorf("ClampTime(30s) = %v, want 30s", got)
	}
	if got := tr.ClampTime(5 * time.Minute); got != tr.Duration() {
		t.Errorf("ClampTime(5m) = %v, want %v", got, tr.Duration())
	}
}

func TestValidChunk(t *testing.T) {
	tr := validTrack()

	if tr.ValidChunk(-1) {
		t.Error("ValidChunk(-1) = true, want false")
	}
	if !tr.ValidChunk(0) {
		t.Error("ValidChunk(0) = false, want true")
	}
	if !tr.ValidChunk(11) {
		t.Error("ValidChunk(11) = false, want true")
	}
	if tr.ValidChunk(12) {
		t.Error("ValidChunk(12) = true, want false")
	}
}
