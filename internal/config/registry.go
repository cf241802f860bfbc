package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/guardline/guardline/pkg/audio"
	"github.com/guardline/guardline/pkg/provider/llm"
	"github.com/guardline/guardline/pkg/provider/stt"
	"github.com/guardline/guardline/pkg/provider/translit"
	"github.com/guardline/guardline/pkg/provider/tts"
	"github.com/guardline/guardline/pkg/provider/vision"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	llm      map[string]func(ProviderEntry) (llm.Provider, error)
	stt      map[string]func(ProviderEntry) (stt.Transcriber, error)
	tts      map[string]func(ProviderEntry) (tts.Speaker, error)
	vision   map[string]func(ProviderEntry) (vision.Captioner, error)
	capture  map[string]func(ProviderEntry) (audio.CaptureSource, error)
	translit map[string]func(ProviderEntry) (translit.Transliterator, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:      make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt:      make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		tts:      make(map[string]func(ProviderEntry) (tts.Speaker, error)),
		vision:   make(map[string]func(ProviderEntry) (vision.Captioner, error)),
		capture:  make(map[string]func(ProviderEntry) (audio.CaptureSource, error)),
		translit: make(map[string]func(ProviderEntry) (translit.Transliterator, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a speech synthesis factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Speaker, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVision registers a frame captioner factory under name.
func (r *Registry) RegisterVision(name string, factory func(ProviderEntry) (vision.Captioner, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vision[name] = factory
}

// RegisterCapture registers a capture source factory under name.
func (r *Registry) RegisterCapture(name string, factory func(ProviderEntry) (audio.CaptureSource, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// RegisterTranslit registers a transliterator factory under name.
func (r *Registry) RegisterTranslit(name string, factory func(ProviderEntry) (translit.Transliterator, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translit[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates a transcriber using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a speaker using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Speaker, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVision instantiates a captioner using the factory registered under entry.Name.
func (r *Registry) CreateVision(entry ProviderEntry) (vision.Captioner, error) {
	r.mu.RLock()
	factory, ok := r.vision[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vision/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCapture instantiates a capture source using the factory registered under entry.Name.
func (r *Registry) CreateCapture(entry ProviderEntry) (audio.CaptureSource, error) {
	r.mu.RLock()
	factory, ok := r.capture[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranslit instantiates a transliterator using the factory registered under entry.Name.
func (r *Registry) CreateTranslit(entry ProviderEntry) (translit.Transliterator, error) {
	r.mu.RLock()
	factory, ok := r.translit[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translit/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
