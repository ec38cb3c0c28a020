package gemini

import "github.com/lingopipe/lingopipe/pkg/core/audio"

// Event is one decoded message from the live stream.
type Event interface {
	isEvent()
}

// AudioEvent carries one downlink audio chunk of synthesized speech.
type AudioEvent struct {
	Chunk audio.Chunk
}

// InputTranscriptionEvent is a fragment of the user's speech transcription.
type InputTranscriptionEvent struct {
	Text string
}

// OutputTranscriptionEvent is a fragment of the model's speech transcription.
type OutputTranscriptionEvent struct {
	Text string
}

// InterruptedEvent signals that the server detected user speech and cut the
// model's turn short. Pending playback should be discarded.
type InterruptedEvent struct{}

// TurnCompleteEvent signals that the model finished its turn.
type TurnCompleteEvent struct{}

// ErrorEvent reports a stream failure. It is the last event before the
// events channel closes.
type ErrorEvent struct {
	Err error
}

func (AudioEvent) isEvent()               {}
func (InputTranscriptionEvent) isEvent()  {}
func (OutputTranscriptionEvent) isEvent() {}
func (InterruptedEvent) isEvent()         {}
func (TurnCompleteEvent) isEvent()        {}
func (ErrorEvent) isEvent()               {}
