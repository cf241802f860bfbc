package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":      {"whisper", "whisper-native"},
	"tts":      {"coqui"},
	"vision":   {"openai"},
	"capture":  {"wsingest"},
	"translit": {"passthrough"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names, fallback
	// chains included.
	validateProviderEntry("llm", cfg.Providers.Responder)
	validateProviderEntry("llm", cfg.Providers.Classifier)
	validateProviderEntry("stt", cfg.Providers.STT)
	validateProviderEntry("tts", cfg.Providers.TTS)
	validateProviderEntry("vision", cfg.Providers.Vision)
	validateProviderEntry("capture", cfg.Providers.Capture)
	validateProviderEntry("translit", cfg.Providers.Translit)

	channel := cfg.Pipeline.Channel
	if channel == "" {
		channel = ChannelAudio
	}
	if !channel.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.channel %q is invalid; valid values: audio, video, text", cfg.Pipeline.Channel))
	}

	if cfg.Providers.Responder.Name == "" {
		errs = append(errs, errors.New("providers.responder.name is required"))
	}
	if cfg.Providers.Classifier.Name == "" {
		slog.Warn("providers.classifier is not configured; transcripts will not be screened for threats")
	}

	// Channel ↔ provider cross-validation
	if channel == ChannelAudio || channel == ChannelVideo {
		if cfg.Providers.STT.Name == "" {
			errs = append(errs, fmt.Errorf("pipeline.channel %q requires an STT provider but providers.stt is not configured", channel))
		}
		if cfg.Providers.Capture.Name == "" {
			errs = append(errs, fmt.Errorf("pipeline.channel %q requires a capture source but providers.capture is not configured", channel))
		}
	}
	if channel == ChannelVideo {
		if cfg.Providers.Vision.Name == "" {
			slog.Warn("pipeline.channel is video but providers.vision is not configured; frames will be saved without captioning")
		}
		if cfg.Video.FramesDir == "" {
			errs = append(errs, errors.New("video.frames_dir is required when pipeline.channel is video"))
		}
	}
	if cfg.Providers.TTS.Name == "" && channel != ChannelText {
		slog.Warn("providers.tts is not configured; responder replies will not be spoken")
	}

	// Pipeline tuning
	if cfg.Pipeline.PollIntervalMS < 0 {
		errs = append(errs, fmt.Errorf("pipeline.poll_interval_ms %d must not be negative", cfg.Pipeline.PollIntervalMS))
	}
	if cfg.Pipeline.PhraseTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("pipeline.phrase_timeout_ms %d must not be negative", cfg.Pipeline.PhraseTimeoutMS))
	}
	if cfg.Pipeline.JoinTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("pipeline.join_timeout_ms %d must not be negative", cfg.Pipeline.JoinTimeoutMS))
	}
	if cfg.Video.CaptionEvery < 0 {
		errs = append(errs, fmt.Errorf("video.caption_every %d must not be negative", cfg.Video.CaptionEvery))
	}

	// Tickets
	if cfg.Tickets.LedgerPath == "" {
		errs = append(errs, errors.New("tickets.ledger_path is required"))
	}
	if cfg.Tickets.PostgresDSN == "" {
		slog.Warn("tickets.postgres_dsn is empty; tickets will only be kept in the JSON ledger")
	}

	return errors.Join(errs...)
}

// validateProviderEntry warns for unrecognised provider names in entry and
// its fallbacks. Unknown names are not an error: the registry accepts
// externally registered factories.
func validateProviderEntry(kind string, entry ProviderEntry) {
	validateProviderName(kind, entry.Name)
	for _, fb := range entry.Fallbacks {
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known := ValidProviderNames[kind]
	if !slices.Contains(known, name) {
		slog.Warn("unrecognised provider name; make sure a factory is registered for it",
			"kind", kind, "name", name, "known", known)
	}
}
