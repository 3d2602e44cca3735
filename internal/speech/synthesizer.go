// Package speech turns broadcast message text into hosted audio via an
// external synthesis provider.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dialer-platform/internal/config"
)

var (
	ErrEmptyText  = errors.New("speech: message text is empty")
	ErrBadGateway = errors.New("speech: provider request failed")
)

// Synthesizer produces a playable audio URL for the given text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (string, error)
}

// HTTPSynthesizer calls a JSON speech API: POST {base}/v1/synthesize
// with {text, voice_id}, expecting {audio_url} back.
type HTTPSynthesizer struct {
	baseURL      string
	apiKey       string
	defaultVoice string

	httpClient *http.Client
}

func NewHTTPSynthesizer(cfg config.SpeechConfig) (*HTTPSynthesizer, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("speech: base url is required")
	}
	return &HTTPSynthesizer{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		defaultVoice: cfg.DefaultVoice,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

type synthesizeResponse struct {
	AudioURL string `json:"audio_url"`
	Error    string `json:"error,omitempty"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if voiceID == "" {
		voiceID = s.defaultVoice
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, VoiceID: voiceID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadGateway, err)
	}
	var out synthesizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: bad response body", ErrBadGateway)
	}
	if resp.StatusCode >= 400 {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", ErrBadGateway, msg)
	}
	if out.AudioURL == "" {
		return "", fmt.Errorf("%w: response missing audio url", ErrBadGateway)
	}
	return out.AudioURL, nil
}
