package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/guardline/guardline/pkg/provider/llm"
	llmmock "github.com/guardline/guardline/pkg/provider/llm/mock"
)

func TestLLMFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{Replies: []string{"hello from primary"}}
	secondary := &llmmock.Provider{Replies: []string{"hello from secondary"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello from primary" {
		t.Errorf("content = %q, want the primary's reply", resp.Content)
	}
	if got := len(secondary.Calls()); got != 0 {
		t.Errorf("secondary called %d times, want 0", got)
	}
}

func TestLLMFallback_FailoverKeepsHistory(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{Err: errors.New("primary down")}
	secondary := &llmmock.Provider{Replies: []string{"hello from secondary"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	req := llm.CompletionRequest{Messages: []llm.Message{
		{Role: llm.RoleUser, Content: "help me"},
		{Role: llm.RoleAssistant, Content: "What is your location?"},
		{Role: llm.RoleUser, Content: "Fifth and Main"},
	}}
	resp, err := fb.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello from secondary" {
		t.Errorf("content = %q, want the secondary's reply", resp.Content)
	}
	if got := len(secondary.LastCall().Messages); got != 3 {
		t.Errorf("secondary received %d messages, want the full history of 3", got)
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{Err: errors.New("primary down")}
	secondary := &llmmock.Provider{Err: errors.New("secondary down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{Err: errors.New("primary down")}
	secondary := &llmmock.Provider{Replies: []string{"ok"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback("secondary", secondary)

	// Two failures trip the primary's breaker.
	for range 2 {
		if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("Complete during trip phase: %v", err)
		}
	}
	callsBefore := len(primary.Calls())

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("Complete with open breaker: %v", err)
	}
	if got := len(primary.Calls()); got != callsBefore {
		t.Errorf("primary called while its breaker is open (%d -> %d calls)", callsBefore, got)
	}
}
