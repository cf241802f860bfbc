// Package mock provides a scriptable llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/guardline/guardline/pkg/provider/llm"
)

// Compile-time interface check.
var _ llm.Provider = (*Provider)(nil)

// Provider is a scriptable llm.Provider. Replies are served in order; when
// the script is exhausted the last reply repeats. A nil script yields empty
// replies.
type Provider struct {
	// Replies is the scripted sequence of reply contents.
	Replies []string

	// Err, when non-nil, is returned by every Complete call.
	Err error

	// ReplyFunc, when non-nil, overrides Replies and computes the reply from
	// the request.
	ReplyFunc func(req llm.CompletionRequest) (string, error)

	mu    sync.Mutex
	calls []llm.CompletionRequest
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if p.ReplyFunc != nil {
		content, err := p.ReplyFunc(req)
		if err != nil {
			return nil, err
		}
		return &llm.CompletionResponse{Content: content}, nil
	}

	var content string
	if len(p.Replies) > 0 {
		idx := n - 1
		if idx >= len(p.Replies) {
			idx = len(p.Replies) - 1
		}
		content = p.Replies[idx]
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// Calls returns a snapshot of all requests received so far.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// LastCall returns the most recent request, or a zero request if none.
func (p *Provider) LastCall() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.calls[len(p.calls)-1]
}
