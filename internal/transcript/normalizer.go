// Package transcript cleans up noisy speech-to-text output before it reaches
// the threat classifier. Distress keywords that come back phonetically
// mangled ("gunn", "nife") are snapped to their canonical spelling so the
// classifier sees consistent vocabulary; all other words pass through
// unchanged.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const defaultSimilarity = 0.84

// Normalizer rewrites words that sound like one of the configured keywords.
// A word is replaced when its Double Metaphone code matches a keyword's code
// and its Jaro-Winkler similarity to the keyword clears the threshold.
type Normalizer struct {
	keywords   []string
	similarity float64
	codes      map[string]string // metaphone code -> canonical keyword
}

// NormalizerOption is a functional option for Normalizer.
type NormalizerOption func(*Normalizer)

// WithSimilarity sets the minimum Jaro-Winkler similarity (0..1) a word must
// have to a keyword before it is replaced. Defaults to 0.84.
func WithSimilarity(threshold float64) NormalizerOption {
	return func(n *Normalizer) { n.similarity = threshold }
}

// NewNormalizer creates a Normalizer for the given distress keywords. With no
// keywords, Normalize is a passthrough.
func NewNormalizer(keywords []string, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		keywords:   keywords,
		similarity: defaultSimilarity,
		codes:      make(map[string]string, len(keywords)*2),
	}
	for _, o := range opts {
		o(n)
	}
	for _, kw := range keywords {
		primary, secondary := matchr.DoubleMetaphone(strings.ToLower(kw))
		if primary != "" {
			n.codes[primary] = kw
		}
		if secondary != "" {
			n.codes[secondary] = kw
		}
	}
	return n
}

// Normalize returns text with phonetically-close keyword variants replaced by
// their canonical spelling. Punctuation attached to a word is preserved.
func (n *Normalizer) Normalize(text string) string {
	if len(n.keywords) == 0 || text == "" {
		return text
	}

	fields := strings.Fields(text)
	changed := false
	for i, field := range fields {
		prefix, core, suffix := splitWord(field)
		if core == "" {
			continue
		}
		if replacement, ok := n.match(core); ok && replacement != core {
			fields[i] = prefix + replacement + suffix
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// match reports the canonical keyword for word, if any.
func (n *Normalizer) match(word string) (string, bool) {
	lower := strings.ToLower(word)
	primary, secondary := matchr.DoubleMetaphone(lower)

	kw, ok := n.codes[primary]
	if !ok && secondary != "" {
		kw, ok = n.codes[secondary]
	}
	if !ok {
		return "", false
	}
	if matchr.JaroWinkler(lower, strings.ToLower(kw), false) < n.similarity {
		return "", false
	}
	return kw, true
}

// splitWord separates leading and trailing punctuation from the word core.
func splitWord(field string) (prefix, core, suffix string) {
	start := 0
	for start < len(field) && !isWordRune(rune(field[start])) {
		start++
	}
	end := len(field)
	for end > start && !isWordRune(rune(field[end-1])) {
		end--
	}
	return field[:start], field[start:end], field[end:]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}
