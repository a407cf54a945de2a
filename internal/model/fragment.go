package model

import (
	"time"
)

// FragmentKind labels a piece of turn output.
type FragmentKind string

const (
	FragmentReplyChunk       FragmentKind = "reply_chunk"
	FragmentSentenceBoundary FragmentKind = "sentence_boundary"
	FragmentTypingStarted    FragmentKind = "typing_started"
	FragmentTurnComplete     FragmentKind = "turn_complete"
	FragmentSessionEnded     FragmentKind = "session_ended"
	FragmentError            FragmentKind = "error"
)

// Fragment is one ordered unit of a turn's output stream. Every stream
// ends with a FragmentTurnComplete.
type Fragment struct {
	Kind  FragmentKind `json:"kind"`
	Index int          `json:"index"`
	Text  string       `json:"text,omitempty"`
	Code  string       `json:"code,omitempty"`
}

// EventType represents the type of session event.
type EventType string

const (
	EventTypeSessionStarted EventType = "session_started"
	EventTypeSessionEnded   EventType = "session_ended"
	EventTypeError          EventType = "error"
	EventTypeTimeout        EventType = "timeout"
)

// SessionEvent represents a lifecycle event in a session.
type SessionEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	TenantID  string         `json:"tenant_id"`
	Type      EventType      `json:"type"`
	Reason    string         `json:"reason"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Sequence  uint64         `json:"sequence,omitempty"`
}
