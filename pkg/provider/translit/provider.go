// Package translit defines the Transliterator interface applied to responder
// replies before they reach speech synthesis, converting scripts the TTS
// backend cannot voice into a pronounceable form.
package translit

import "context"

// Transliterator converts text into a form the speech-synthesis backend can
// pronounce. Implementations must be safe for concurrent use.
type Transliterator interface {
	Transliterate(ctx context.Context, text string) (string, error)
}

// Passthrough returns its input unchanged. It is the default when no
// transliteration backend is configured.
type Passthrough struct{}

var _ Transliterator = Passthrough{}

// Transliterate implements Transliterator.
func (Passthrough) Transliterate(_ context.Context, text string) (string, error) {
	return text, nil
}
