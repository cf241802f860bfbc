// Package tts defines the Speaker interface for speech-synthesis backends.
//
// Synthesis is fire-and-forget from the pipeline's point of view: the
// controller dispatches Speak on its own goroutine and never blocks the
// respond/classify cycle on synthesis failures.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Speaker is the abstraction over any text-to-speech backend.
type Speaker interface {
	// Speak synthesises text and forwards the audio to the configured
	// output. Returns an error if synthesis fails; callers log and move on.
	Speak(ctx context.Context, text string) error
}
