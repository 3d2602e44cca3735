package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dialer-platform/internal/config"
)

func newTestSynth(t *testing.T, handler http.HandlerFunc) *HTTPSynthesizer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := NewHTTPSynthesizer(config.SpeechConfig{
		BaseURL:      srv.URL,
		APIKey:       "key-1",
		DefaultVoice: "en-US-1",
	})
	if err != nil {
		t.Fatalf("new synthesizer: %v", err)
	}
	return s
}

func TestSynthesizeSendsTextAndDefaultVoice(t *testing.T) {
	var got synthesizeRequest
	s := newTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/synthesize" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(synthesizeResponse{AudioURL: "https://cdn.example.com/a.mp3"})
	})

	url, err := s.Synthesize(context.Background(), "appointment reminder", "")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if url != "https://cdn.example.com/a.mp3" {
		t.Fatalf("audio url = %s", url)
	}
	if got.Text != "appointment reminder" || got.VoiceID != "en-US-1" {
		t.Fatalf("request = %+v, want default voice filled in", got)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	s := newTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider should not be called")
	})
	if _, err := s.Synthesize(context.Background(), "   ", ""); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestSynthesizeSurfacesProviderError(t *testing.T) {
	s := newTestSynth(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(synthesizeResponse{Error: "quota exceeded"})
	})
	_, err := s.Synthesize(context.Background(), "hello", "v2")
	if !errors.Is(err, ErrBadGateway) {
		t.Fatalf("expected ErrBadGateway, got %v", err)
	}
}
