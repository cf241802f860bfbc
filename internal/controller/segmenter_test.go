package controller

import (
	"testing"
	"time"
)

func TestSegmenter_Observe(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		timeout time.Duration
		polls   []time.Duration
		want    []bool
	}{
		{
			name:    "first poll is never complete",
			timeout: 3 * time.Second,
			polls:   []time.Duration{0},
			want:    []bool{false},
		},
		{
			name:    "gap beyond timeout closes the phrase",
			timeout: 3 * time.Second,
			polls:   []time.Duration{0, 4 * time.Second},
			want:    []bool{false, true},
		},
		{
			name:    "gap within timeout keeps the phrase open",
			timeout: 3 * time.Second,
			polls:   []time.Duration{0, 2 * time.Second},
			want:    []bool{false, false},
		},
		{
			name:    "gap exactly at timeout keeps the phrase open",
			timeout: 3 * time.Second,
			polls:   []time.Duration{0, 3 * time.Second},
			want:    []bool{false, false},
		},
		{
			name:    "continuous speech then pause",
			timeout: 3 * time.Second,
			polls:   []time.Duration{0, 250 * time.Millisecond, 500 * time.Millisecond, 5 * time.Second},
			want:    []bool{false, false, false, true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			seg := NewSegmenter(tc.timeout)
			for i, offset := range tc.polls {
				if got := seg.Observe(base.Add(offset)); got != tc.want[i] {
					t.Errorf("poll %d at +%v: complete = %v, want %v", i, offset, got, tc.want[i])
				}
			}
		})
	}
}

func TestSegmenter_Reset(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	seg := NewSegmenter(3 * time.Second)

	seg.Observe(base)
	seg.Reset()
	if seg.Observe(base.Add(10 * time.Second)) {
		t.Error("poll after Reset reported a completed phrase")
	}
}

func TestNewSessionID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	id := newSessionID(now)
	if id != "20260314092653589" {
		t.Errorf("newSessionID = %q, want %q", id, "20260314092653589")
	}
	if len(id) != 17 {
		t.Errorf("session id length = %d, want 17", len(id))
	}
}
