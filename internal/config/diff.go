package config

import (
	"reflect"
	"slices"
)

// Diff describes which reloadable settings changed between two configs.
// Provider and channel changes are deliberately not diffed: they require a
// process restart, and the watcher callback only applies what can change live.
type Diff struct {
	// LogLevelChanged is true when server.log_level differs.
	LogLevelChanged bool

	// PromptsChanged is true when any prompt or the responder temperature
	// differs. Prompt changes apply to the next session, not the running one.
	PromptsChanged bool

	// KeywordsChanged is true when pipeline.distress_keywords differs.
	KeywordsChanged bool

	// RestartRequired is true when a non-reloadable section (providers,
	// channel, tuning intervals, tickets, video) differs.
	RestartRequired bool
}

// Any reports whether the diff contains any change at all.
func (d Diff) Any() bool {
	return d.LogLevelChanged || d.PromptsChanged || d.KeywordsChanged || d.RestartRequired
}

// Compare computes the [Diff] between two configs. Both arguments must be
// non-nil.
func Compare(old, new *Config) Diff {
	var d Diff

	d.LogLevelChanged = old.Server.LogLevel != new.Server.LogLevel
	d.PromptsChanged = old.Prompts != new.Prompts
	d.KeywordsChanged = !slices.Equal(old.Pipeline.DistressKeywords, new.Pipeline.DistressKeywords)

	d.RestartRequired = !providerEqual(old.Providers.Responder, new.Providers.Responder) ||
		!providerEqual(old.Providers.Classifier, new.Providers.Classifier) ||
		!providerEqual(old.Providers.STT, new.Providers.STT) ||
		!providerEqual(old.Providers.TTS, new.Providers.TTS) ||
		!providerEqual(old.Providers.Vision, new.Providers.Vision) ||
		!providerEqual(old.Providers.Capture, new.Providers.Capture) ||
		!providerEqual(old.Providers.Translit, new.Providers.Translit) ||
		old.Pipeline.Channel != new.Pipeline.Channel ||
		old.Pipeline.PollIntervalMS != new.Pipeline.PollIntervalMS ||
		old.Pipeline.PhraseTimeoutMS != new.Pipeline.PhraseTimeoutMS ||
		old.Pipeline.JoinTimeoutMS != new.Pipeline.JoinTimeoutMS ||
		old.Video != new.Video ||
		old.Tickets != new.Tickets ||
		old.Server.MetricsAddr != new.Server.MetricsAddr

	return d
}

// providerEqual compares two provider entries, fallback chains included.
// Options values may hold nested maps, so the free-form block is compared
// structurally.
func providerEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name ||
		a.APIKey != b.APIKey ||
		a.BaseURL != b.BaseURL ||
		a.Model != b.Model ||
		!reflect.DeepEqual(a.Options, b.Options) {
		return false
	}
	if len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !providerEqual(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}
