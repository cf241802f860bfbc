// Package mock provides a scriptable tts.Speaker for tests.
package mock

import (
	"context"
	"sync"

	"github.com/guardline/guardline/pkg/provider/tts"
)

// Compile-time interface check.
var _ tts.Speaker = (*Speaker)(nil)

// Speaker is a recording tts.Speaker. Every Speak call is captured; Err, when
// set, is returned by every call.
type Speaker struct {
	// Err, when non-nil, is returned by every Speak call.
	Err error

	mu     sync.Mutex
	spoken []string
}

// Speak implements tts.Speaker.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	return s.Err
}

// Spoken returns a copy of all texts passed to Speak so far.
func (s *Speaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}
