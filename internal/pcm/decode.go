package pcm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyPayload is returned when a chunk decodes to zero samples.
	ErrEmptyPayload = errors.New("pcm: decoded chunk is empty")

	// ErrUnknownFormat is returned when neither the content type nor the
	// leading bytes identify a supported codec.
	ErrUnknownFormat = errors.New("pcm: unrecognized audio format")
)

const decodeBatchFrames = 512

// chunkReader adapts an in-memory chunk to the reader interfaces the beep
// decoders expect.
type chunkReader struct {
	*bytes.Reader
}

func (chunkReader) Close() error { return nil }

// Decode turns one fetched chunk into a Payload. The codec is picked from
// the declared content type, falling back to magic-byte sniffing when the
// server sends none.
func Decode(data []byte, contentType string) (*Payload, error) {
	format := detectFormat(data, contentType)

	reader := chunkReader{bytes.NewReader(data)}
	var (
		stream beep.StreamSeekCloser
		bf     beep.Format
		err    error
	)
	switch format {
	case "mp3":
		stream, bf, err = mp3.Decode(reader)
	case "wav":
		stream, bf, err = wav.Decode(reader)
	case "flac":
		stream, bf, err = flac.Decode(reader)
	case "ogg":
		stream, bf, err = vorbis.Decode(reader)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, fmt.Errorf("pcm: decode %s chunk: %w", format, err)
	}
	defer stream.Close()

	// beep streams stereo frames regardless of the source layout; a mono
	// source arrives duplicated on both sides, so keep just the left.
	channels := 2
	if bf.NumChannels == 1 {
		channels = 1
	}

	samples := make([]float32, 0, decodeBatchFrames*channels)
	frames := make([][2]float64, decodeBatchFrames)
	for {
		n, ok := stream.Stream(frames)
		for _, frame := range frames[:n] {
			if channels == 1 {
				samples = append(samples, float32(frame[0]))
			} else {
				samples = append(samples, float32(frame[0]), float32(frame[1]))
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("pcm: decode %s chunk: %w", format, err)
	}
	if len(samples) == 0 {
		return nil, ErrEmptyPayload
	}

	log.Debug().
		Str("format", format).
		Int("samples", len(samples)).
		Int("rate", int(bf.SampleRate)).
		Int("channels", channels).
		Msg("Chunk decoded")

	return &Payload{Samples: samples, Rate: int(bf.SampleRate), Channels: channels}, nil
}

// detectFormat returns "mp3", "wav", "flac", "ogg", or "" when unknown.
func detectFormat(data []byte, contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return "mp3"
	case strings.Contains(ct, "wav"), strings.Contains(ct, "wave"):
		return "wav"
	case strings.Contains(ct, "flac"):
		return "flac"
	case strings.Contains(ct, "ogg"), strings.Contains(ct, "vorbis"):
		return "ogg"
	}

	switch {
	case len(data) >= 4 && string(data[:4]) == "RIFF":
		return "wav"
	case len(data) >= 4 && string(data[:4]) == "fLaC":
		return "flac"
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return "ogg"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}
