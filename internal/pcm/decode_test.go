package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// makeWAV builds a minimal PCM16 WAV file in memory.
func makeWAV(t *testing.T, rate, channels int, samples []int16) []byte {
	t.Helper()

	var buf bytes.Buffer
	dataLen := len(samples) * 2
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		_ = binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestDecodeWAVMono(t *testing.T) {
	pcm16 := []int16{0, 8192, 16384, -16384}
	data := makeWAV(t, 8000, 1, pcm16)

	payload, err := Decode(data, "audio/wav")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if payload.Rate != 8000 {
		t.Errorf("Rate = %d, want 8000", payload.Rate)
	}
	if payload.Channels != 1 {
		t.Errorf("Channels = %d, want 1", payload.Channels)
	}
	if payload.SampleCount() != len(pcm16) {
		t.Fatalf("SampleCount() = %d, want %d", payload.SampleCount(), len(pcm16))
	}
	for i, s := range pcm16 {
		want := float64(s) / 32768
		if math.Abs(float64(payload.Samples[i])-want) > 1e-3 {
			t.Errorf("sample %d = %v, want %v", i, payload.Samples[i], want)
		}
	}
}

func TestDecodeWAVStereoInterleaved(t *testing.T) {
	// L/R pairs with distinct values per side.
	pcm16 := []int16{1000, -1000, 2000, -2000, 3000, -3000}
	data := makeWAV(t, 44100, 2, pcm16)

	payload, err := Decode(data, "audio/wav")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if payload.Channels != 2 {
		t.Errorf("Channels = %d, want 2", payload.Channels)
	}
	if payload.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", payload.Frames())
	}
	for i := 0; i < payload.SampleCount(); i += 2 {
		if payload.Samples[i] <= 0 {
			t.Errorf("left sample %d = %v, want positive", i/2, payload.Samples[i])
		}
		if payload.Samples[i+1] >= 0 {
			t.Errorf("right sample %d = %v, want negative", i/2, payload.Samples[i+1])
		}
	}
}

func TestDecodeSniffsFormatWithoutContentType(t *testing.T) {
	data := makeWAV(t, 8000, 1, []int16{100, 200, 300})

	payload, err := Decode(data, "")
	if err != nil {
		t.Fatalf("Decode() with no content type error = %v", err)
	}
	if payload.SampleCount() != 3 {
		t.Errorf("SampleCount() = %d, want 3", payload.SampleCount())
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, err := Decode([]byte("not audio at all"), "text/plain")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Decode() error = %v, want ErrUnknownFormat", err)
	}
}

func TestDecodeCorruptData(t *testing.T) {
	// Valid magic, garbage body.
	data := append([]byte("RIFF"), bytes.Repeat([]byte{0xAB}, 32)...)
	if _, err := Decode(data, "audio/wav"); err == nil {
		t.Error("Decode() of corrupt WAV succeeded, want error")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		contentType string
		want        string
	}{
		{"mp3 by content type", nil, "audio/mpeg", "mp3"},
		{"mp3 alias", nil, "audio/mp3", "mp3"},
		{"wav by content type", nil, "audio/wav", "wav"},
		{"wave alias", nil, "audio/x-wave", "wav"},
		{"flac by content type", nil, "audio/flac", "flac"},
		{"ogg by content type", nil, "audio/ogg", "ogg"},
		{"vorbis alias", nil, "audio/vorbis", "ogg"},
		{"riff magic", []byte("RIFFxxxx"), "", "wav"},
		{"flac magic", []byte("fLaCxxxx"), "", "flac"},
		{"ogg magic", []byte("OggSxxxx"), "", "ogg"},
		{"id3 magic", []byte("ID3\x04\x00"), "", "mp3"},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90}, "", "mp3"},
		{"unknown", []byte("????"), "application/octet-stream", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectFormat(tt.data, tt.contentType); got != tt.want {
				t.Errorf("detectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}
