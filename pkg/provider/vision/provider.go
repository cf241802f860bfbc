// Package vision defines the Captioner interface for image-understanding
// backends used to assess sampled video frames.
package vision

import (
	"context"
	"strings"
)

// ThreatMarker is the token a captioning model is instructed to include when
// the described scene shows a dangerous or threatening situation. Detection
// is substring-based and happens at the caller's boundary via HasThreat.
const ThreatMarker = "[THREAT]"

// Captioner is the abstraction over any vision backend that can describe a
// single still image.
type Captioner interface {
	// Caption describes the given encoded image (JPEG or PNG bytes) under
	// the provided instruction prompt and returns the model's text.
	Caption(ctx context.Context, image []byte, prompt string) (string, error)
}

// HasThreat reports whether the caption carries the threat marker anywhere.
// The caption itself is recorded downstream exactly as the model produced it,
// marker included.
func HasThreat(caption string) bool {
	return strings.Contains(caption, ThreatMarker)
}
