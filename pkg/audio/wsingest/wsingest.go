// Package wsingest implements [audio.CaptureSource] over a websocket carrying
// a single caller's audio stream, as delivered by a telephony or browser
// intake gateway.
//
// The gateway sends one binary websocket message per audio frame. Two wire
// codecs are supported:
//
//   - CodecPCM (default): raw 16 kHz mono 16-bit little-endian PCM.
//   - CodecOpus: Opus packets at 16 kHz mono, 20 ms frame size, decoded
//     in-process before delivery.
//
// Text messages are ignored. The read loop runs on its own goroutine and
// pushes decoded chunks into the sink supplied to Start; a socket error or
// remote close ends the loop silently (the pipeline's stop path handles
// session teardown).
package wsingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/guardline/guardline/pkg/audio"
)

// Compile-time interface check.
var _ audio.CaptureSource = (*Source)(nil)

// Caller audio is 16 kHz mono with 20 ms Opus frames.
const (
	sampleRate  = 16000
	channels    = 1
	frameSizeMs = 20
	// frameSize is the number of samples per channel per 20 ms frame.
	frameSize = sampleRate * frameSizeMs / 1000 // 320
)

// Codec selects the wire format of incoming binary messages.
type Codec string

const (
	// CodecPCM expects raw 16-bit little-endian PCM.
	CodecPCM Codec = "pcm"

	// CodecOpus expects Opus packets and decodes them in-process.
	CodecOpus Codec = "opus"
)

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithCodec sets the expected wire codec. Default: CodecPCM.
func WithCodec(c Codec) Option {
	return func(s *Source) { s.codec = c }
}

// Source connects to an intake gateway websocket and delivers the caller's
// audio chunks to the pipeline. One Source corresponds to one caller stream.
//
// All methods are safe for concurrent use.
type Source struct {
	url   string
	codec Codec

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a Source that will dial the given gateway URL on Start.
func New(url string, opts ...Option) (*Source, error) {
	if url == "" {
		return nil, errors.New("wsingest: url must not be empty")
	}
	s := &Source{url: url, codec: CodecPCM}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start dials the gateway and begins delivering chunks to sink from a
// background goroutine. Returns an error if the websocket cannot be
// established; no goroutine is spawned in that case.
func (s *Source) Start(ctx context.Context, sink func(chunk []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("wsingest: already started")
	}

	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("wsingest: dial %q: %w", s.url, err)
	}

	var dec *gopus.Decoder
	if s.codec == CodecOpus {
		dec, err = gopus.NewDecoder(sampleRate, channels)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "decoder setup failed")
			return fmt.Errorf("wsingest: create opus decoder: %w", err)
		}
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.readLoop(readCtx, conn, dec, sink)
	return nil
}

// readLoop reads binary messages until the socket closes or Stop cancels the
// context, decoding and forwarding each frame to sink.
func (s *Source) readLoop(ctx context.Context, conn *websocket.Conn, dec *gopus.Decoder, sink func([]byte)) {
	defer close(s.done)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Debug("wsingest: read ended", "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary || len(data) == 0 {
			continue
		}

		chunk := data
		if dec != nil {
			pcm, err := dec.Decode(data, frameSize, false)
			if err != nil {
				slog.Warn("wsingest: opus decode failed, frame dropped", "err", err)
				continue
			}
			chunk = audio.Int16sToBytes(pcm)
		}
		sink(chunk)
	}
}

// Stop closes the websocket and waits for the read loop to exit.
// Safe to call more than once.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	conn := s.conn
	cancel := s.cancel
	done := s.done
	s.conn = nil
	s.mu.Unlock()

	cancel()
	if err := conn.Close(websocket.StatusNormalClosure, "capture stopped"); err != nil && !errors.Is(err, net.ErrClosed) {
		// The peer may have closed first; teardown errors are not actionable.
		slog.Debug("wsingest: close", "err", err)
	}
	<-done
	return nil
}
