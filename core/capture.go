package calls

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// frameSink is the outbound side of the transport as seen by the
// capture path.
type frameSink interface {
	SendAudio(pcm []byte) error
	IsOpen() bool
}

// audioCapture bridges the microphone to the transport. Each
// driver-cadence block is measured for loudness and submitted as one
// wire frame. Submission is fire-and-forget: the capture callback
// never waits on network completion, and frames produced while the
// transport is not open are dropped outright. There is deliberately no
// holding queue; buffering raw audio would let latency grow without
// bound.
type audioCapture struct {
	input AudioInput
	// fine is set when the input client supports explicit capture controls.
	fine AudioInputFine

	sink        frameSink
	onAmplitude func(level float64)

	started  atomic.Bool
	detached atomic.Bool

	releaseOnce sync.Once

	droppedFrames atomic.Int64
}

func newAudioCapture(input AudioInput, sink frameSink, onAmplitude func(level float64)) *audioCapture {
	capture := &audioCapture{
		input:       input,
		sink:        sink,
		onAmplitude: onAmplitude,
	}
	if fine, ok := input.(AudioInputFine); ok {
		capture.fine = fine
	}
	return capture
}

// Start begins pulling blocks from the microphone. Inputs with capture
// controls start synchronously so acquisition failures surface to the
// caller; stream-only inputs run in their own goroutine.
func (a *audioCapture) Start(ctx context.Context) error {
	if a.input == nil {
		return nil
	}
	if !a.started.CompareAndSwap(false, true) {
		return nil
	}

	if a.fine != nil {
		if err := a.fine.StartCapture(ctx, a.onBlock); err != nil {
			a.started.Store(false)
			return fmt.Errorf("failed to start audio capture: %w", err)
		}
		return nil
	}

	go func() {
		if err := a.input.Stream(ctx, a.onBlock); err != nil {
			a.started.Store(false)
			logger.Error("audio capture stream failed", "error", err)
		}
	}()
	return nil
}

func (a *audioCapture) onBlock(pcm []byte) {
	if a.detached.Load() {
		return
	}

	if a.onAmplitude != nil {
		a.onAmplitude(EstimateAmplitude(pcm))
	}

	if !a.sink.IsOpen() {
		a.droppedFrames.Add(1)
		return
	}
	if err := a.sink.SendAudio(pcm); err != nil {
		a.droppedFrames.Add(1)
	}
}

// Detach stops new blocks from being produced or forwarded. Idempotent
// and ordered before device release so no frame escapes mid-teardown.
func (a *audioCapture) Detach() {
	if !a.detached.CompareAndSwap(false, true) {
		return
	}

	if a.fine != nil {
		if err := a.fine.StopCapture(); err != nil {
			logger.Warn("failed to stop audio capture", "error", err)
		}
	}
}

// Release gives the microphone back to the system. Safe to call twice.
func (a *audioCapture) Release() {
	a.releaseOnce.Do(func() {
		if a.input != nil {
			a.input.Close()
		}
	})
}

// DroppedFrames reports how many captured blocks were discarded
// because the transport could not take them. Dropping never raises an
// error.
func (a *audioCapture) DroppedFrames() int64 {
	return a.droppedFrames.Load()
}
