// Package mock provides in-memory test doubles for the audio capture
// interfaces.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/guardline/guardline/pkg/audio"
)

// Compile-time interface checks.
var (
	_ audio.CaptureSource = (*CaptureSource)(nil)
	_ audio.FrameSource   = (*FrameSource)(nil)
)

// CaptureSource is a scriptable audio.CaptureSource. Tests call Emit to
// simulate chunks arriving from the device.
type CaptureSource struct {
	// StartErr, when non-nil, is returned by Start (device unavailable).
	StartErr error

	mu      sync.Mutex
	sink    func([]byte)
	started bool
	stops   int
}

// Start records the sink callback for later Emit calls.
func (s *CaptureSource) Start(_ context.Context, sink func(chunk []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StartErr != nil {
		return s.StartErr
	}
	s.sink = sink
	s.started = true
	return nil
}

// Stop unsubscribes the sink. Safe to call more than once.
func (s *CaptureSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sink = nil
	s.started = false
	s.stops++
	return nil
}

// Emit delivers chunk to the registered sink, simulating the capture callback.
// Emitting before Start or after Stop is a no-op.
func (s *CaptureSource) Emit(chunk []byte) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink(chunk)
	}
}

// Started reports whether the source is currently capturing.
func (s *CaptureSource) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Stops returns how many times Stop has been called.
func (s *CaptureSource) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// FrameSource is a scriptable audio.FrameSource that serves frames from a
// fixed queue and then blocks until closed.
type FrameSource struct {
	mu     sync.Mutex
	frames [][]byte
	closed chan struct{}
	once   sync.Once
}

// NewFrameSource returns a FrameSource that will serve the given frames in
// order. When the queue is exhausted, Read blocks until Close or context
// cancellation.
func NewFrameSource(frames ...[]byte) *FrameSource {
	return &FrameSource{frames: frames, closed: make(chan struct{})}
}

// Push appends another frame to the queue.
func (f *FrameSource) Push(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

// Read returns the next queued frame.
func (f *FrameSource) Read(ctx context.Context) ([]byte, error) {
	for {
		f.mu.Lock()
		if len(f.frames) > 0 {
			frame := f.frames[0]
			f.frames = f.frames[1:]
			f.mu.Unlock()
			return frame, nil
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.closed:
			return nil, errors.New("mock: frame source closed")
		case <-time.After(time.Millisecond):
		}
	}
}

// Close releases the source; pending Read calls return an error.
func (f *FrameSource) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}
