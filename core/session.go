// Package calls holds the live call session core: one Session wires
// microphone capture, the live speech transport, gapless playback
// scheduling and transcript reconciliation together, and exposes an
// open/close lifecycle to the caller.
package calls

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxfront/voxfront-core/core/live"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the session lifecycle state. Transitions are one-way.
type State string

const (
	StateIdle      State = "idle"
	StateOpening   State = "opening"
	StateStreaming State = "streaming"
	StateClosing   State = "closing"
	StateClosed    State = "closed"
)

const transportCloseTimeout = 5 * time.Second

// Session is the facade over one live voice conversation. It owns all
// sub-component state; nothing outlives it and there is no ambient
// "current session" anywhere. At most one session should be streaming
// per caller context; open a fresh Session per call.
type Session struct {
	profile     AssistantProfile
	transport   SessionTransport
	audioInput  AudioInput
	output      *audioOutput
	clock       PlaybackClock
	liveOptions []live.SessionOption

	capture    *audioCapture
	scheduler  *playbackScheduler
	reconciler *transcriptReconciler

	state   State
	stateMu sync.Mutex

	openOptions OpenOptions
	baseContext context.Context

	// closed invalidates the session before resources are released,
	// so transport callbacks racing the teardown become no-ops.
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		state:       StateIdle,
		output:      newAudioOutput(nil),
		baseContext: context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.clock == nil {
		s.clock = newMonotonicClock()
	}
	s.scheduler = newPlaybackScheduler(s.clock, s.output)
	s.reconciler = newTranscriptReconciler(func(turn TranscriptTurn) {
		if s.openOptions.onTranscript != nil {
			s.openOptions.onTranscript(turn)
		}
	})

	return s
}

// Open acquires the microphone, performs the live service handshake
// and starts streaming. It may be called at most once per session.
//
// Failure ordering follows the acquisition-first model: a microphone
// failure aborts before anything else is held, and a handshake failure
// releases the already-acquired microphone before surfacing.
func (s *Session) Open(ctx context.Context, opts ...OpenOption) error {
	ctx, span := tracer.Start(ctx, "open call session")
	defer span.End()

	if err := s.transition(StateIdle, StateOpening); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for _, opt := range opts {
		opt(&s.openOptions)
	}
	s.baseContext = ctx

	if s.transport == nil {
		s.abortOpen()
		span.RecordError(ErrNoTransport)
		span.SetStatus(codes.Error, ErrNoTransport.Error())
		return ErrNoTransport
	}

	s.capture = newAudioCapture(s.audioInput, s.transport, func(level float64) {
		s.emitAmplitude(live.RoleUser, level)
	})

	// Capture starts before the handshake; frames produced while the
	// transport is still opening are dropped by the bridge.
	if err := s.capture.Start(ctx); err != nil {
		s.abortOpen()
		sessionErr := &SessionError{Kind: FailureAcquisition, Err: err}
		span.RecordError(sessionErr)
		span.SetStatus(codes.Error, sessionErr.Error())
		return sessionErr
	}

	voice := s.profile.Voice
	if voice == "" {
		voice = live.DefaultVoice
	}
	liveOptions := append([]live.SessionOption{
		live.WithVoice(voice),
		live.WithSystemInstruction(s.profile.SystemInstruction()),
	}, s.liveOptions...)
	liveOptions = append(liveOptions, live.WithEventCallback(s.handleEvent))

	if err := s.transport.Open(ctx, liveOptions...); err != nil {
		s.capture.Detach()
		s.capture.Release()
		s.abortOpen()
		sessionErr := &SessionError{Kind: FailureTransportOpen, Err: err}
		span.RecordError(sessionErr)
		span.SetStatus(codes.Error, sessionErr.Error())
		return sessionErr
	}

	s.scheduler.Seed()
	s.setState(StateStreaming)

	return nil
}

// handleEvent routes one decoded transport event to its consumer.
// Events arriving after teardown began are safe no-ops.
func (s *Session) handleEvent(event live.Event) {
	if s.closed.Load() {
		return
	}

	switch typedEvent := event.(type) {
	case live.AudioChunkEvent:
		s.scheduler.Schedule(typedEvent.Payload, typedEvent.EncodingInfo)
		s.emitAmplitude(live.RoleAssistant, assistantAmplitudePlaceholder)
	case live.TranscriptDeltaEvent:
		s.reconciler.AddDelta(typedEvent.Role, typedEvent.Text)
	case live.TurnCompleteEvent:
		s.reconciler.CompleteTurn()
	case live.InterruptedEvent:
		s.scheduler.Interrupt()
		s.reconciler.Interrupt()
	case live.ClosedEvent:
		s.shutdown(nil)
	case live.ErrorEvent:
		s.shutdown(&SessionError{Kind: FailureTransportRuntime, Err: typedEvent.Err})
	}
}

// Close stops the session. Idempotent; shares the exact teardown path
// with every fatal error.
func (s *Session) Close() {
	s.shutdown(nil)
}

func (s *Session) shutdown(sessionErr *SessionError) {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		s.teardown()
		s.setState(StateClosed)

		if sessionErr != nil {
			span := trace.SpanFromContext(s.baseContext)
			span.RecordError(sessionErr)
			span.SetStatus(codes.Error, sessionErr.Error())

			if s.openOptions.onError != nil {
				s.openOptions.onError(sessionErr)
			}
		}
		if s.openOptions.onClose != nil {
			s.openOptions.onClose()
		}
	})
}

// teardown is order-sensitive: detach the capture callback so no new
// frame is produced, release the microphone, close the transport with
// a bounded wait, then release the playback side. The closed flag is
// raised first so late callbacks from still-releasing resources cannot
// mutate torn-down state.
func (s *Session) teardown() {
	s.closed.Store(true)

	if s.capture != nil {
		s.capture.Detach()
		s.capture.Release()
	}

	if s.transport != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), transportCloseTimeout)
		defer cancel()
		if err := s.transport.Close(closeCtx); err != nil {
			logger.Warn("failed to close live transport cleanly", "error", fmt.Errorf("transport close: %w", err))
		}
	}

	s.output.Close()
}

// Transcript returns the ordered transcript accumulated so far. After
// close, the finalized sequence is what a post-call summarization
// request consumes.
func (s *Session) Transcript() []TranscriptTurn {
	return s.reconciler.Turns()
}

func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) IsStreaming() bool { return s.State() == StateStreaming }

func (s *Session) emitAmplitude(source live.Role, level float64) {
	if s.closed.Load() {
		return
	}
	if s.openOptions.onAmplitude != nil {
		s.openOptions.onAmplitude(source, level)
	}
}

// abortOpen marks a failed open as terminally closed without running
// the full teardown: nothing is held yet beyond what the failing path
// already released.
func (s *Session) abortOpen() {
	s.closed.Store(true)
	s.closeOnce.Do(func() {})
	s.setState(StateClosed)
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

func (s *Session) transition(from, to State) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state != from {
		return ErrAlreadyOpened
	}
	s.state = to
	return nil
}
