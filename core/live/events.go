// Package live implements the bidirectional websocket transport to the
// conversational speech service.
//
// Inbound traffic is decoded exactly once, at the transport boundary,
// into the typed [Event] variants below. A single wire message may
// carry several optional fields at once; the transport emits one event
// per present field in a fixed order: audio first, then transcription
// deltas (assistant before user, matching wire field order), then the
// turn-complete or interrupted marker.
package live

import "github.com/voxfront/voxfront-core/core/audio"

type Kind string

const (
	KindAudioChunk      Kind = "audio_chunk"
	KindTranscriptDelta Kind = "transcript_delta"
	KindTurnComplete    Kind = "turn_complete"
	KindInterrupted     Kind = "interrupted"
	KindClosed          Kind = "closed"
	KindError           Kind = "error"
)

// Role attributes a transcript delta to one side of the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Event interface {
	Kind() Kind
}

// AudioChunkEvent carries one decoded block of synthesized speech.
type AudioChunkEvent struct {
	Payload      []byte
	EncodingInfo audio.EncodingInfo
}

func (e AudioChunkEvent) Kind() Kind { return KindAudioChunk }

// TranscriptDeltaEvent carries one streamed transcription fragment for
// a role. Fragments are append-only in arrival order.
type TranscriptDeltaEvent struct {
	Role Role
	Text string
}

func (e TranscriptDeltaEvent) Kind() Kind { return KindTranscriptDelta }

// TurnCompleteEvent marks a turn boundary for whichever roles
// accumulated speech since the previous boundary.
type TurnCompleteEvent struct{}

func (e TurnCompleteEvent) Kind() Kind { return KindTurnComplete }

// InterruptedEvent signals that the assistant's in-flight turn was cut
// off by the user speaking over it.
type InterruptedEvent struct{}

func (e InterruptedEvent) Kind() Kind { return KindInterrupted }

// ClosedEvent signals the remote end closed the session. Terminal.
type ClosedEvent struct{}

func (e ClosedEvent) Kind() Kind { return KindClosed }

// ErrorEvent signals a transport-level failure. Terminal.
type ErrorEvent struct {
	Err error
}

func (e ErrorEvent) Kind() Kind { return KindError }

func (e ErrorEvent) Error() string {
	if e.Err == nil {
		return "live transport error"
	}
	return e.Err.Error()
}
