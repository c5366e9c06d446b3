// Package api implements the HTTP client for the chunk server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/wavecast/wavecast/internal/track"
)

const (
	// RequestTimeout bounds a single chunk or metadata request. Retries are
	// the orchestrator's job, so the client itself never retries.
	RequestTimeout = 15 * time.Second
)

// ErrEmptyChunk is returned when the server answers success with a
// zero-length body. Callers treat it like any other load failure.
var ErrEmptyChunk = errors.New("api: empty chunk body")

// StatusError reports a non-success response from the chunk server.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: chunk server returned %s", e.Status)
}

// ChunkData is one fetched chunk: the raw encoded bytes plus the content
// type the server declared, which selects the decoder.
type ChunkData struct {
	Bytes       []byte
	ContentType string
}

// Client talks to a chunk server.
type Client struct {
	client *resty.Client
}

// NewClient returns a client rooted at the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(RequestTimeout),
	}
}

// GetTrack fetches track metadata.
func (c *Client) GetTrack(ctx context.Context, id string) (track.Track, error) {
	log.Debug().Str("track", id).Msg("Fetching track metadata")

	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/tracks/%s", id))
	if err != nil {
		return track.Track{}, fmt.Errorf("failed to fetch track %s: %w", id, err)
	}
	if !resp.IsSuccess() {
		return track.Track{}, &StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}

	var t track.Track
	if err := json.Unmarshal(resp.Body(), &t); err != nil {
		return track.Track{}, fmt.Errorf("failed to parse track %s: %w", id, err)
	}
	if err := t.Validate(); err != nil {
		return track.Track{}, fmt.Errorf("track %s metadata invalid: %w", id, err)
	}

	log.Debug().Str("track", t.ID).Int("chunks", t.TotalChunks).Msg("Fetched track metadata")
	return t, nil
}

// FetchChunk downloads the encoded bytes of one chunk in the requested
// variant. A non-success status or an empty body is an error; both are
// retry-eligible upstream.
func (c *Client) FetchChunk(ctx context.Context, t track.Track, v track.Variant, index int) (ChunkData, error) {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("enhanced", strconv.FormatBool(v.Enhanced))
	if v.Preset != "" {
		req.SetQueryParam("preset", v.Preset)
	}
	if v.Intensity != 0 {
		req.SetQueryParam("intensity", strconv.FormatFloat(v.Intensity, 'f', -1, 64))
	}

	resp, err := req.Get(fmt.Sprintf("/tracks/%s/chunks/%d", t.ID, index))
	if err != nil {
		return ChunkData{}, fmt.Errorf("failed to fetch chunk %d of %s: %w", index, t.ID, err)
	}
	if !resp.IsSuccess() {
		return ChunkData{}, &StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}

	body := resp.Body()
	if len(body) == 0 {
		return ChunkData{}, ErrEmptyChunk
	}

	log.Debug().Int("chunk", index).Int("bytes", len(body)).Msg("Fetched chunk")
	return ChunkData{Bytes: body, ContentType: resp.Header().Get("Content-Type")}, nil
}
