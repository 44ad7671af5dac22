package calls

import (
	"context"

	"github.com/voxfront/voxfront-core/core/audio"
	"github.com/voxfront/voxfront-core/core/live"
)

type SessionOption func(*Session)

// SessionTransport owns the bidirectional connection to the live
// speech service. [live.Client] is the production implementation;
// tests substitute fakes.
type SessionTransport interface {
	Open(ctx context.Context, opts ...live.SessionOption) error
	SendAudio(pcm []byte) error
	IsOpen() bool
	Close(ctx context.Context) error
}

func WithTransport(client SessionTransport) SessionOption {
	return func(s *Session) { s.transport = client }
}

// AudioInput is a microphone client delivering fixed-size blocks of
// PCM16 samples at the driver's cadence.
type AudioInput interface {
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
	EncodingInfo() audio.EncodingInfo
}

// AudioInputFine is implemented by input clients that support explicit
// capture start/stop controls.
type AudioInputFine interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

func WithAudioInput(client AudioInput) SessionOption {
	return func(s *Session) { s.audioInput = client }
}

// audioOutputBase is the minimal playback client contract.
type audioOutputBase interface {
	SendAudio(audio []byte) error
	EncodingInfo() audio.EncodingInfo
}

type AudioOutput interface {
	audioOutputBase
}

// AudioOutputClearable is implemented by playback clients that can
// flush buffered-but-unplayed audio on barge-in.
type AudioOutputClearable interface {
	audioOutputBase
	ClearBuffer()
}

func WithAudioOutput(client AudioOutput) SessionOption {
	return func(s *Session) { s.output.Set(client) }
}

func WithProfile(profile AssistantProfile) SessionOption {
	return func(s *Session) { s.profile = profile }
}

// WithPlaybackClock substitutes the scheduling time base. Tests use
// this to drive the clock by hand.
func WithPlaybackClock(clock PlaybackClock) SessionOption {
	return func(s *Session) { s.clock = clock }
}

// WithLiveSessionOptions appends extra transport options to the ones
// the session derives from its profile, e.g. a model override.
func WithLiveSessionOptions(opts ...live.SessionOption) SessionOption {
	return func(s *Session) { s.liveOptions = append(s.liveOptions, opts...) }
}

type OpenOptions struct {
	onAmplitude  func(source live.Role, level float64)
	onTranscript func(turn TranscriptTurn)
	onClose      func()
	onError      func(err error)
}

type OpenOption func(*OpenOptions)

// WithAmplitudeCallback registers a callback for visualization-ready
// loudness levels: measured RMS for the microphone, a constant
// placeholder while assistant audio is being delivered.
func WithAmplitudeCallback(callback func(source live.Role, level float64)) OpenOption {
	return func(o *OpenOptions) { o.onAmplitude = callback }
}

// WithTranscriptCallback registers a callback invoked for every
// transcript entry change: partial merges and finalizations alike.
// Retracted entries (assistant speech cut off by barge-in) emit
// nothing; read [Session.Transcript] for the authoritative sequence.
func WithTranscriptCallback(callback func(turn TranscriptTurn)) OpenOption {
	return func(o *OpenOptions) { o.onTranscript = callback }
}

// WithCloseCallback registers a callback invoked exactly once when the
// session has fully torn down, whether by explicit stop, remote close
// or fatal error.
func WithCloseCallback(callback func()) OpenOption {
	return func(o *OpenOptions) { o.onClose = callback }
}

// WithErrorCallback registers the single callback through which every
// fatal session failure surfaces, as a human-readable [*SessionError].
func WithErrorCallback(callback func(err error)) OpenOption {
	return func(o *OpenOptions) { o.onError = callback }
}
