package wsingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/guardline/guardline/pkg/audio"
)

// Compile-time interface check.
var _ audio.FrameSource = (*FrameSource)(nil)

// FrameSource implements [audio.FrameSource] over a websocket carrying a
// single caller's video stream. The gateway sends one binary message per
// encoded frame (JPEG); text messages are ignored.
//
// Unlike [Source], frames are pulled: Read blocks on the socket directly,
// because the video worker consumes frames at its own pace and the sampler
// discards excess frames anyway.
type FrameSource struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// DialFrames connects to the gateway's video endpoint and returns a
// FrameSource delivering its frames.
func DialFrames(ctx context.Context, url string) (*FrameSource, error) {
	if url == "" {
		return nil, errors.New("wsingest: url must not be empty")
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsingest: dial %q: %w", url, err)
	}
	// Frames can be large; the default read limit is 32 KiB.
	conn.SetReadLimit(8 << 20)
	return &FrameSource{conn: conn}, nil
}

// Read returns the next encoded frame from the gateway. It blocks until a
// binary message arrives, the context is cancelled, or the source is closed.
func (f *FrameSource) Read(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	conn := f.conn
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, errors.New("wsingest: frame source closed")
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("wsingest: read frame: %w", err)
		}
		if typ != websocket.MessageBinary || len(data) == 0 {
			continue
		}
		return data, nil
	}
}

// Close releases the websocket. Safe to call more than once.
func (f *FrameSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.conn.Close(websocket.StatusNormalClosure, "capture stopped")
	return nil
}
