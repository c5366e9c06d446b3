package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"

	"github.com/wavecast/wavecast/internal/track"
)

func setupTestServer(handler http.HandlerFunc) (*httptest.Server, *Client) {
	server := httptest.NewServer(handler)
	client := &Client{
		client: resty.New().SetBaseURL(server.URL),
	}
	return server, client
}

func testTrack() track.Track {
	return track.Track{
		ID:          "ambient-drift",
		Title:       "Ambient Drift",
		TotalChunks: 10,
		ChunkMs:     5000,
		SampleRate:  48000,
		Channels:    2,
	}
}

func TestGetTrack(t *testing.T) {
	want := testTrack()

	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracks/ambient-drift" {
			t.Errorf("Expected path /tracks/ambient-drift, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	})
	defer server.Close()

	got, err := client.GetTrack(context.Background(), "ambient-drift")
	if err != nil {
		t.Fatalf("GetTrack() error = %v", err)
	}
	if got != want {
		t.Errorf("GetTrack() = %+v, want %+v", got, want)
	}
}

func TestGetTrackHTTPError(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer server.Close()

	_, err := client.GetTrack(context.Background(), "missing")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("GetTrack() error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("StatusError.Code = %d, want 404", statusErr.Code)
	}
}

func TestGetTrackInvalidJSON(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	})
	defer server.Close()

	if _, err := client.GetTrack(context.Background(), "bad"); err == nil {
		t.Error("GetTrack() with invalid JSON succeeded, want error")
	}
}

func TestGetTrackInvalidMetadata(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(track.Track{ID: "broken"}) // no chunks
	})
	defer server.Close()

	if _, err := client.GetTrack(context.Background(), "broken"); err == nil {
		t.Error("GetTrack() with incomplete metadata succeeded, want error")
	}
}

func TestFetchChunk(t *testing.T) {
	wantBody := []byte{0x01, 0x02, 0x03, 0x04}

	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracks/ambient-drift/chunks/7" {
			t.Errorf("Expected path /tracks/ambient-drift/chunks/7, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("enhanced"); got != "false" {
			t.Errorf("Expected enhanced=false, got %q", got)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(wantBody)
	})
	defer server.Close()

	data, err := client.FetchChunk(context.Background(), testTrack(), track.Variant{}, 7)
	if err != nil {
		t.Fatalf("FetchChunk() error = %v", err)
	}
	if string(data.Bytes) != string(wantBody) {
		t.Errorf("FetchChunk() bytes = %v, want %v", data.Bytes, wantBody)
	}
	if data.ContentType != "audio/mpeg" {
		t.Errorf("FetchChunk() content type = %q, want audio/mpeg", data.ContentType)
	}
}

func TestFetchChunkVariantParams(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("enhanced"); got != "true" {
			t.Errorf("Expected enhanced=true, got %q", got)
		}
		if got := q.Get("preset"); got != "warm" {
			t.Errorf("Expected preset=warm, got %q", got)
		}
		if got := q.Get("intensity"); got != "0.7" {
			t.Errorf("Expected intensity=0.7, got %q", got)
		}
		_, _ = w.Write([]byte{0xFF})
	})
	defer server.Close()

	v := track.Variant{Enhanced: true, Preset: "warm", Intensity: 0.7}
	if _, err := client.FetchChunk(context.Background(), testTrack(), v, 0); err != nil {
		t.Fatalf("FetchChunk() error = %v", err)
	}
}

func TestFetchChunkHTTPError(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	defer server.Close()

	_, err := client.FetchChunk(context.Background(), testTrack(), track.Variant{}, 0)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("FetchChunk() error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusInternalServerError {
		t.Errorf("StatusError.Code = %d, want 500", statusErr.Code)
	}
}

func TestFetchChunkEmptyBody(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	_, err := client.FetchChunk(context.Background(), testTrack(), track.Variant{}, 0)
	if !errors.Is(err, ErrEmptyChunk) {
		t.Errorf("FetchChunk() error = %v, want ErrEmptyChunk", err)
	}
}
