// Package dialog holds the per-session conversation state machines: the
// caller-facing Conversation and the parallel, independent Threat
// classification session. Both wrap a chat backend and grow an ordered
// message history for the lifetime of one session; protocol sentinels are
// parsed here, at the boundary, so callers only see booleans.
package dialog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/guardline/guardline/pkg/provider/llm"
)

// Protocol sentinels embedded in chat content. StartSentinel opens a session
// as the first user turn; EndSentinel in a reply signals the backend wants to
// close. The sentinel text is left in the reply untouched.
const (
	StartSentinel = "**START CALL**"
	EndSentinel   = "**END CALL**"
)

// Default system prompts used when the deployment does not override them.
const (
	DefaultResponderPrompt = "You are an emergency-line operator. A caller has just been " +
		"connected; the first user message " + StartSentinel + " marks the start of the call. " +
		"Greet the caller, find out what is happening, keep them calm, and give short, " +
		"concrete instructions. When the call is resolved and nothing more is needed, " +
		"append " + EndSentinel + " to your final message."

	DefaultThreatPrompt = "You silently monitor an emergency-call transcript for threats to " +
		"life or property: weapons, violence, fire, medical distress, or threatening " +
		"language. For every transcript message, reply with exactly " + EndSentinel + " if it " +
		"contains no threat. If it does contain a threat, reply with a short description " +
		"of the threat instead. Never address the caller."
)

// Conversation is the caller-facing dialog for one session. The history grows
// monotonically from Start until the session ends and is owned exclusively by
// this value. Safe for concurrent use.
type Conversation struct {
	backend      llm.Provider
	systemPrompt string
	temperature  float64

	mu      sync.Mutex
	history []llm.Message
}

// NewConversation creates a Conversation over the given chat backend.
// systemPrompt frames the responder; temperature 0 means backend default.
func NewConversation(backend llm.Provider, systemPrompt string, temperature float64) *Conversation {
	return &Conversation{
		backend:      backend,
		systemPrompt: systemPrompt,
		temperature:  temperature,
	}
}

// Start resets the history and opens the session with the StartSentinel user
// turn. It returns the backend's greeting and whether the session should
// continue (false when the greeting already carries EndSentinel).
func (c *Conversation) Start(ctx context.Context) (bool, string, error) {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
	return c.exchange(ctx, StartSentinel)
}

// Respond appends the caller's text as a user turn, obtains the backend's
// reply over the full history, and appends the reply. The returned reply is
// verbatim, sentinel included; cont is false iff the reply contains
// EndSentinel.
func (c *Conversation) Respond(ctx context.Context, text string) (cont bool, reply string, err error) {
	return c.exchange(ctx, text)
}

// exchange runs one user-turn/reply round trip. The history is only extended
// after a successful completion, so a failed call leaves the session state as
// it was and the turn can be retried.
func (c *Conversation) exchange(ctx context.Context, userText string) (bool, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]llm.Message, 0, len(c.history)+1)
	messages = append(messages, c.history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})

	resp, err := c.backend.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: c.systemPrompt,
		Temperature:  c.temperature,
	})
	if err != nil {
		return false, "", fmt.Errorf("dialog: conversation turn: %w", err)
	}

	c.history = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	return !strings.Contains(resp.Content, EndSentinel), resp.Content, nil
}

// History returns a copy of the message history so far.
func (c *Conversation) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Threat is the parallel classification session. It carries its own history
// over the same transcript as the Conversation but the two never share state;
// the classification backend must not see the responder's framing. Safe for
// concurrent use.
type Threat struct {
	backend      llm.Provider
	systemPrompt string

	mu      sync.Mutex
	history []llm.Message
}

// NewThreat creates a Threat session over the given classification backend.
func NewThreat(backend llm.Provider, systemPrompt string) *Threat {
	return &Threat{backend: backend, systemPrompt: systemPrompt}
}

// Start resets the history and primes the backend with an empty opening turn.
// The opening reply is recorded in the history but carries no verdict.
func (t *Threat) Start(ctx context.Context) error {
	t.mu.Lock()
	t.history = nil
	t.mu.Unlock()

	_, _, err := t.exchange(ctx, "")
	if err != nil {
		return fmt.Errorf("dialog: threat session start: %w", err)
	}
	return nil
}

// Classify sends the transcript text to the classification backend. A reply
// containing EndSentinel means the classifier is closing its side: flagged is
// false and details empty, and the caller's conversation is unaffected. Any
// other reply is a positive verdict with the reply as details.
func (t *Threat) Classify(ctx context.Context, text string) (flagged bool, details string, err error) {
	cont, reply, err := t.exchange(ctx, text)
	if err != nil {
		return false, "", fmt.Errorf("dialog: classify: %w", err)
	}
	if !cont {
		return false, "", nil
	}
	return true, reply, nil
}

func (t *Threat) exchange(ctx context.Context, userText string) (bool, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	messages := make([]llm.Message, 0, len(t.history)+1)
	messages = append(messages, t.history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})

	resp, err := t.backend.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: t.systemPrompt,
	})
	if err != nil {
		return false, "", err
	}

	t.history = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
	return !strings.Contains(resp.Content, EndSentinel), resp.Content, nil
}
