package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/guardline/guardline/pkg/provider/vision"
)

const (
	defaultFrameSaveInterval = time.Second
	defaultCaptionEvery      = 20
	defaultCaptionMinGap     = 5 * time.Second
)

// defaultCaptionPrompt instructs the captioner to flag dangerous scenes with
// the threat marker.
var defaultCaptionPrompt = "Describe this video-call frame in one or two sentences. " +
	"If the scene shows a dangerous or threatening situation (weapons, violence, " +
	"fire, injuries), include the marker " + vision.ThreatMarker + " in your answer."

// Observation is the result of a captioning pass over a saved frame.
type Observation struct {
	// FramePath is the saved frame the caption refers to.
	FramePath string

	// Caption is the captioner's reply verbatim, threat marker included, so
	// tickets carry the model's exact words.
	Caption string

	// Threat reports whether the caption carried the threat marker.
	Threat bool
}

// FrameSampler persists incoming video frames at a bounded rate and
// periodically sends the latest frame to a captioning backend. Frames are
// written as frame_<n>.jpg with a zero-based monotonic counter into a
// directory recreated empty on Reset.
//
// Not safe for concurrent use; the video worker owns one FrameSampler.
type FrameSampler struct {
	dir           string
	captioner     vision.Captioner
	prompt        string
	saveInterval  time.Duration
	captionEvery  int
	captionMinGap time.Duration

	saved         int
	lastSaveAt    time.Time
	lastCaptionAt time.Time
}

// SamplerOption is a functional option for FrameSampler.
type SamplerOption func(*FrameSampler)

// WithSaveInterval sets the minimum time between persisted frames.
// Defaults to 1 s.
func WithSaveInterval(d time.Duration) SamplerOption {
	return func(s *FrameSampler) { s.saveInterval = d }
}

// WithCaptionEvery sets how many saved frames pass between captioning calls.
// Defaults to 20.
func WithCaptionEvery(n int) SamplerOption {
	return func(s *FrameSampler) { s.captionEvery = n }
}

// WithCaptionMinGap sets the minimum time between captioning calls,
// bounding the captioner call rate independently of the frame count.
// Defaults to 5 s.
func WithCaptionMinGap(d time.Duration) SamplerOption {
	return func(s *FrameSampler) { s.captionMinGap = d }
}

// WithCaptionPrompt overrides the instruction prompt sent with each frame.
func WithCaptionPrompt(prompt string) SamplerOption {
	return func(s *FrameSampler) { s.prompt = prompt }
}

// NewFrameSampler creates a FrameSampler writing into dir. A nil captioner
// disables captioning; frames are still persisted.
func NewFrameSampler(dir string, captioner vision.Captioner, opts ...SamplerOption) (*FrameSampler, error) {
	if dir == "" {
		return nil, fmt.Errorf("controller: frame directory must not be empty")
	}
	s := &FrameSampler{
		dir:           dir,
		captioner:     captioner,
		prompt:        defaultCaptionPrompt,
		saveInterval:  defaultFrameSaveInterval,
		captionEvery:  defaultCaptionEvery,
		captionMinGap: defaultCaptionMinGap,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Reset recreates the frame directory empty and zeroes the counters, as at
// session start.
func (s *FrameSampler) Reset() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("controller: clear frame directory: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("controller: create frame directory: %w", err)
	}
	s.saved = 0
	s.lastSaveAt = time.Time{}
	s.lastCaptionAt = time.Time{}
	return nil
}

// Offer hands the sampler one frame read from the capture source at time now.
// The frame is persisted when the save interval has elapsed, and captioned
// when it is the Nth saved frame and the captioning gap has elapsed. The
// returned Observation is nil unless a caption was obtained.
func (s *FrameSampler) Offer(ctx context.Context, frame []byte, now time.Time) (*Observation, error) {
	if !s.lastSaveAt.IsZero() && now.Sub(s.lastSaveAt) < s.saveInterval {
		return nil, nil
	}

	path := filepath.Join(s.dir, fmt.Sprintf("frame_%d.jpg", s.saved))
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return nil, fmt.Errorf("controller: save frame: %w", err)
	}
	s.lastSaveAt = now
	s.saved++

	if s.captioner == nil {
		return nil, nil
	}
	if s.saved%s.captionEvery != 0 {
		return nil, nil
	}
	if !s.lastCaptionAt.IsZero() && now.Sub(s.lastCaptionAt) < s.captionMinGap {
		return nil, nil
	}
	s.lastCaptionAt = now

	raw, err := s.captioner.Caption(ctx, frame, s.prompt)
	if err != nil {
		return nil, fmt.Errorf("controller: caption frame: %w", err)
	}
	return &Observation{FramePath: path, Caption: raw, Threat: vision.HasThreat(raw)}, nil
}

// Saved returns how many frames have been persisted since the last Reset.
func (s *FrameSampler) Saved() int {
	return s.saved
}
