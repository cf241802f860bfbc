// Package mock provides a scriptable vision.Captioner for tests.
package mock

import (
	"context"
	"sync"

	"github.com/guardline/guardline/pkg/provider/vision"
)

// Compile-time interface check.
var _ vision.Captioner = (*Captioner)(nil)

// Captioner is a scriptable vision.Captioner. Captions are served in order;
// when the script is exhausted the last caption repeats.
type Captioner struct {
	// Captions is the scripted sequence of caption replies.
	Captions []string

	// Err, when non-nil, is returned by every Caption call.
	Err error

	mu     sync.Mutex
	images [][]byte
}

// Caption implements vision.Captioner.
func (c *Captioner) Caption(ctx context.Context, image []byte, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.images = append(c.images, image)
	n := len(c.images)
	c.mu.Unlock()

	if c.Err != nil {
		return "", c.Err
	}
	if len(c.Captions) == 0 {
		return "", nil
	}
	idx := n - 1
	if idx >= len(c.Captions) {
		idx = len(c.Captions) - 1
	}
	return c.Captions[idx], nil
}

// CallCount returns how many times Caption has been invoked.
func (c *Captioner) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}
