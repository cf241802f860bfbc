package config

import (
	"testing"
	"time"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level LogLevel
		want  bool
	}{
		{LogDebug, true},
		{LogInfo, true},
		{LogWarn, true},
		{LogError, true},
		{LogLevel("verbose"), false},
		{LogLevel(""), false},
	}

	for _, tc := range tests {
		if got := tc.level.IsValid(); got != tc.want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestChannel_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		channel Channel
		want    bool
	}{
		{ChannelAudio, true},
		{ChannelVideo, true},
		{ChannelText, true},
		{Channel("phone"), false},
		{Channel(""), false},
	}

	for _, tc := range tests {
		if got := tc.channel.IsValid(); got != tc.want {
			t.Errorf("Channel(%q).IsValid() = %v, want %v", tc.channel, got, tc.want)
		}
	}
}

func TestPipelineConfig_Durations(t *testing.T) {
	t.Parallel()

	p := PipelineConfig{PollIntervalMS: 250, PhraseTimeoutMS: 3000, JoinTimeoutMS: 5000}
	if got := p.PollInterval(); got != 250*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 250ms", got)
	}
	if got := p.PhraseTimeout(); got != 3*time.Second {
		t.Errorf("PhraseTimeout() = %v, want 3s", got)
	}
	if got := p.JoinTimeout(); got != 5*time.Second {
		t.Errorf("JoinTimeout() = %v, want 5s", got)
	}

	var zero PipelineConfig
	if got := zero.PollInterval(); got != 0 {
		t.Errorf("zero PollInterval() = %v, want 0", got)
	}
}
