package controller

import "time"

// Segmenter decides when a run of captured audio counts as a completed
// phrase. It tracks the time of the last non-empty poll; a poll arriving more
// than the phrase timeout after the previous one closes the phrase that ended
// at that gap. Audio is still transcribed every poll to keep the ASR warm,
// but the respond/classify pipeline only fires on completed phrases.
//
// Not safe for concurrent use; each capture worker owns one Segmenter.
type Segmenter struct {
	timeout      time.Duration
	lastPhraseAt time.Time
}

// NewSegmenter creates a Segmenter with the given phrase timeout.
func NewSegmenter(timeout time.Duration) *Segmenter {
	return &Segmenter{timeout: timeout}
}

// Observe records a non-empty poll at time now and reports whether the
// freshly drained audio closes a phrase: true when a previous poll exists and
// more than the timeout has elapsed since it. The last-poll timestamp is
// updated unconditionally.
func (s *Segmenter) Observe(now time.Time) bool {
	complete := !s.lastPhraseAt.IsZero() && now.Sub(s.lastPhraseAt) > s.timeout
	s.lastPhraseAt = now
	return complete
}

// Reset clears the last-poll timestamp, as at session start.
func (s *Segmenter) Reset() {
	s.lastPhraseAt = time.Time{}
}
