// Package mock provides a scriptable stt.Transcriber for tests.
package mock

import (
	"context"
	"sync"

	"github.com/guardline/guardline/pkg/provider/stt"
)

// Compile-time interface check.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a scriptable stt.Transcriber. Results are served in order;
// when the script is exhausted the last result repeats. A nil script yields
// empty text (silence).
type Transcriber struct {
	// Results is the scripted sequence of transcriptions.
	Results []string

	// Err, when non-nil, is returned by every Transcribe call.
	Err error

	mu    sync.Mutex
	calls [][]float32
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	t.calls = append(t.calls, samples)
	n := len(t.calls)
	t.mu.Unlock()

	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Results) == 0 {
		return "", nil
	}
	idx := n - 1
	if idx >= len(t.Results) {
		idx = len(t.Results) - 1
	}
	return t.Results[idx], nil
}

// CallCount returns how many times Transcribe has been invoked.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Call returns the samples passed to the i-th Transcribe call.
func (t *Transcriber) Call(i int) []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[i]
}
