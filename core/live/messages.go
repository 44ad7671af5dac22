package live

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/voxfront/voxfront-core/core/audio"
)

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio *inlineData `json:"audio,omitempty"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

// eventsFromMessage maps one inbound wire message onto the typed event
// contract. Any subset of optional fields may be present; present
// fields are emitted in fixed order so a single message can raise
// several events in one dispatch pass.
//
// Malformed audio payloads do not abort the pass: the broken chunk is
// skipped, the remaining fields are still emitted, and the failure is
// reported so the caller can apply its tolerance policy.
func eventsFromMessage(msg serverMessage) (events []Event, decodeFailures []error) {
	sc := msg.ServerContent
	if sc == nil {
		return nil, nil
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}

			payload, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				decodeFailures = append(decodeFailures, fmt.Errorf("failed to decode audio payload: %w", err))
				continue
			}

			events = append(events, AudioChunkEvent{
				Payload: payload,
				EncodingInfo: audio.EncodingInfo{
					SampleRate: sampleRateFromMimeType(p.InlineData.MimeType),
					Format:     audio.EncodingLinear16,
				},
			})
		}
	}

	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, TranscriptDeltaEvent{Role: RoleAssistant, Text: sc.OutputTranscription.Text})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, TranscriptDeltaEvent{Role: RoleUser, Text: sc.InputTranscription.Text})
	}

	if sc.TurnComplete {
		events = append(events, TurnCompleteEvent{})
	}
	if sc.Interrupted {
		events = append(events, InterruptedEvent{})
	}

	return events, decodeFailures
}

// sampleRateFromMimeType parses "audio/pcm;rate=24000" style mime
// types, falling back to the service's fixed playback rate.
func sampleRateFromMimeType(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		param = strings.TrimSpace(param)
		if rate, ok := strings.CutPrefix(param, "rate="); ok {
			if parsed, err := strconv.Atoi(rate); err == nil && parsed > 0 {
				return parsed
			}
		}
	}

	return audio.PlaybackSampleRate
}
