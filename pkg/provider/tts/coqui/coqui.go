// Package coqui provides a tts.Speaker backed by a standard Coqui TTS server
// (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
// URL query parameters; the returned audio is forwarded to a configurable
// sink (by default it is discarded, which suits deployments where the
// gateway performs its own playback).
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithAudioSink(func(wav []byte) { gateway.Play(wav) }),
//	)
//	err = p.Speak(ctx, "Stay on the line.")
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guardline/guardline/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Speaker = (*Speaker)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"
)

// Option is a functional option for configuring a Speaker.
type Option func(*Speaker)

// WithLanguage sets the BCP-47 language code sent to the TTS server
// (e.g. "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Speaker) { s.language = lang }
}

// WithSpeakerID selects a specific speaker voice on multi-speaker models.
func WithSpeakerID(id string) Option {
	return func(s *Speaker) { s.speakerID = id }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Speaker) { s.httpClient.Timeout = d }
}

// WithAudioSink sets the destination for synthesised audio. When nil, the
// audio is read and discarded.
func WithAudioSink(sink func(wav []byte)) Option {
	return func(s *Speaker) { s.sink = sink }
}

// Speaker implements tts.Speaker against a standard Coqui TTS server.
type Speaker struct {
	serverURL  string
	language   string
	speakerID  string
	sink       func([]byte)
	httpClient *http.Client
}

// New creates a Speaker targeting the Coqui server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Speaker, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	s := &Speaker{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Speak implements tts.Speaker.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	q := url.Values{}
	q.Set("text", text)
	if s.language != "" {
		q.Set("language_id", s.language)
	}
	if s.speakerID != "" {
		q.Set("speaker_id", s.speakerID)
	}

	endpoint := s.serverURL + apiTTSEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: server returned HTTP %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("coqui: read audio: %w", err)
	}
	if s.sink != nil {
		s.sink(wav)
	}
	return nil
}
