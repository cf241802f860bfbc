// Package ticket records structured incident entries per session and persists
// them to a shared JSON ledger file, with an optional secondary archive sink.
package ticket

import "time"

// Type classifies how an incident entered the pipeline.
type Type string

const (
	TypeAudioThreat       Type = "audio_threat"
	TypeChatThreat        Type = "chat_threat"
	TypeVideoAudioThreat  Type = "video_audio_threat"
	TypeVideoVisualThreat Type = "video_visual_threat"
)

// TimestampLayout is the wire format for ticket timestamps,
// microsecond-precision local time.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Entry is one immutable incident record. Entries are append-only within a
// session: exactly one of Message (transcript or chat text) and Frame
// (captured-frame path) is set depending on Type.
type Entry struct {
	Type      Type   `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
	Frame     string `json:"frame,omitempty"`
	Details   string `json:"details"`
}

// Timestamp formats t in the ledger's timestamp layout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
