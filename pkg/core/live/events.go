package live

import (
	"github.com/lingopipe/lingopipe/pkg/core/transcript"
)

// Event is the interface for all live session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StatusChangedEvent is emitted when the session status changes.
type StatusChangedEvent struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (e *StatusChangedEvent) EventType() string { return "status.changed" }

// TranscriptUpdatedEvent is emitted whenever a transcription fragment
// changes the visible conversation.
type TranscriptUpdatedEvent struct {
	Entries []transcript.Entry `json:"entries"`
}

func (e *TranscriptUpdatedEvent) EventType() string { return "transcript.updated" }

// TurnCommittedEvent is emitted when a turn pair completes and its messages
// are final.
type TurnCommittedEvent struct {
	Messages []transcript.Message `json:"messages"`
}

func (e *TurnCommittedEvent) EventType() string { return "turn.committed" }

// SpeakingChangedEvent is emitted when the tutor starts or stops speaking.
type SpeakingChangedEvent struct {
	Speaking bool `json:"speaking"`
}

func (e *SpeakingChangedEvent) EventType() string { return "speaking.changed" }

// InterruptedEvent is emitted when the server cuts the tutor's turn short
// because the user started speaking.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "turn.interrupted" }

// ErrorEvent is emitted for classified session errors, fatal or not.
type ErrorEvent struct {
	Err *SessionError `json:"error"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// SessionClosedEvent is emitted when the session ends.
type SessionClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionClosedEvent) EventType() string { return "session.closed" }
