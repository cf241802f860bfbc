// Package audio defines the capture-side audio primitives for Guardline:
// the [Buffer] that decouples a capture callback from the pipeline's polling
// loop, PCM conversion helpers, and the [CaptureSource] contract implemented
// by device and network ingest adapters.
//
// The capture callback (producer) and the polling loop (consumer) communicate
// exclusively through [Buffer]. Adapter packages (e.g. audio/wsingest) push
// raw 16-bit little-endian PCM chunks; the pipeline drains and concatenates
// them into phrases.
package audio

import "context"

// CaptureSource is the contract for an audio capture device or network ingest.
//
// Start begins delivering raw PCM chunks to sink from the source's own
// goroutine. The sink must not block for long; sources are free to drop
// chunks if it does. Stop unsubscribes the callback and releases the
// underlying device or connection. Stop is idempotent.
//
// Implementations must be safe for concurrent use.
type CaptureSource interface {
	// Start begins capture. sink is invoked once per captured chunk of
	// 16 kHz mono 16-bit little-endian PCM. Returns an error if the
	// device or connection cannot be acquired.
	Start(ctx context.Context, sink func(chunk []byte)) error

	// Stop ends capture and releases the source. Safe to call more than once.
	Stop() error
}

// FrameSource is the contract for a video capture device. Read blocks until
// the next frame is available and returns it as an encoded image (JPEG).
//
// Implementations must be safe for concurrent use.
type FrameSource interface {
	// Read returns the next captured frame. Returns an error if the device
	// is closed or the frame cannot be grabbed.
	Read(ctx context.Context) ([]byte, error)

	// Close releases the capture device. Safe to call more than once.
	Close() error
}
