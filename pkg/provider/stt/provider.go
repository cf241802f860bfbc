// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Guardline's pipeline works in discrete phrases rather than a continuous
// stream: the polling loop drains the audio buffer, concatenates the pending
// chunks into one sample, and submits the whole sample for transcription.
// The interface is therefore a single blocking call over float32 PCM.
//
// Implementations must be safe for concurrent use and must tolerate silence:
// an input with no recognisable speech yields an empty string, not an error.
package stt

import "context"

// SampleRate is the PCM sample rate (Hz) expected by all transcribers.
const SampleRate = 16000

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts 16 kHz mono float32 PCM (normalised to [-1, 1])
	// into text. Returns the empty string for silence or unintelligible
	// input. Leading and trailing whitespace is trimmed.
	Transcribe(ctx context.Context, samples []float32) (string, error)
}
