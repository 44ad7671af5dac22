package calls

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/voxfront/voxfront-core/core/audio"
)

func TestCaptureDropsFramesWhileTransportNotOpen(t *testing.T) {
	input := &controllableInputClient{}
	sink := &recordingFrameSink{}
	capture := newAudioCapture(input, sink, nil)

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("expected capture start to succeed, got %v", err)
	}

	input.emit(pcmFromSamples(1, 2, 3, 4))
	input.emit(pcmFromSamples(5, 6, 7, 8))

	if got := sink.sentFrames(); got != 0 {
		t.Fatalf("expected no frames sent while transport is closed, got %d", got)
	}
	if got := capture.DroppedFrames(); got != 2 {
		t.Fatalf("expected both frames counted as dropped, got %d", got)
	}
}

func TestCaptureForwardsFramesWhileTransportOpen(t *testing.T) {
	input := &controllableInputClient{}
	sink := &recordingFrameSink{}
	sink.open.Store(true)
	capture := newAudioCapture(input, sink, nil)

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("expected capture start to succeed, got %v", err)
	}

	input.emit(pcmFromSamples(1, 2, 3, 4))

	if got := sink.sentFrames(); got != 1 {
		t.Fatalf("expected the frame to be forwarded, got %d", got)
	}
	if got := capture.DroppedFrames(); got != 0 {
		t.Fatalf("expected no drops while open, got %d", got)
	}
}

func TestCaptureCountsRejectedFramesAsDropped(t *testing.T) {
	input := &controllableInputClient{}
	sink := &recordingFrameSink{sendErr: errors.New("not open")}
	sink.open.Store(true)
	capture := newAudioCapture(input, sink, nil)

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("expected capture start to succeed, got %v", err)
	}
	input.emit(pcmFromSamples(1, 2))

	if got := capture.DroppedFrames(); got != 1 {
		t.Fatalf("expected rejected frame counted as dropped, got %d", got)
	}
}

func TestCaptureMeasuresAmplitudeForEveryBlock(t *testing.T) {
	input := &controllableInputClient{}
	sink := &recordingFrameSink{}

	var levels []float64
	capture := newAudioCapture(input, sink, func(level float64) {
		levels = append(levels, level)
	})

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("expected capture start to succeed, got %v", err)
	}

	input.emit(pcmFromSamples(0, 0))
	input.emit(pcmFromSamples(8000, -8000))

	if len(levels) != 2 {
		t.Fatalf("expected one amplitude per block even when dropped, got %d", len(levels))
	}
	if levels[0] != 0 {
		t.Fatalf("expected silent block to measure 0, got %v", levels[0])
	}
	if levels[1] <= 0 {
		t.Fatalf("expected loud block to measure above 0, got %v", levels[1])
	}
}

func TestCaptureStartSurfacesAcquisitionFailure(t *testing.T) {
	input := &controllableInputClient{startErr: errors.New("microphone busy")}
	capture := newAudioCapture(input, &recordingFrameSink{}, nil)

	if err := capture.Start(context.Background()); err == nil {
		t.Fatalf("expected acquisition failure to surface from start")
	}
}

func TestCaptureDetachStopsForwarding(t *testing.T) {
	input := &controllableInputClient{}
	sink := &recordingFrameSink{}
	sink.open.Store(true)
	capture := newAudioCapture(input, sink, nil)

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("expected capture start to succeed, got %v", err)
	}
	capture.Detach()
	capture.Detach()

	input.emit(pcmFromSamples(1, 2))

	if got := sink.sentFrames(); got != 0 {
		t.Fatalf("expected no frames after detach, got %d", got)
	}
	if got := input.stopCalls(); got != 1 {
		t.Fatalf("expected exactly one capture stop, got %d", got)
	}
}

func TestCaptureReleaseClosesInputOnce(t *testing.T) {
	input := &controllableInputClient{}
	capture := newAudioCapture(input, &recordingFrameSink{}, nil)

	capture.Release()
	capture.Release()

	if got := input.closeCalls(); got != 1 {
		t.Fatalf("expected input closed exactly once, got %d", got)
	}
}

func TestCaptureStartWithoutInputIsNoOp(t *testing.T) {
	capture := newAudioCapture(nil, &recordingFrameSink{}, nil)

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("expected inputless start to be a no-op, got %v", err)
	}
	capture.Release()
}

type recordingFrameSink struct {
	open atomic.Bool

	mu      sync.Mutex
	frames  int
	sendErr error
}

func (s *recordingFrameSink) SendAudio([]byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	return nil
}

func (s *recordingFrameSink) IsOpen() bool { return s.open.Load() }

func (s *recordingFrameSink) sentFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// controllableInputClient implements both the stream contract and the
// explicit capture controls, and lets tests push blocks by hand.
type controllableInputClient struct {
	mu        sync.Mutex
	onAudio   func([]byte)
	stops     int
	closes    int
	startErr  error
	streamErr error
}

func (c *controllableInputClient) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if c.streamErr != nil {
		return c.streamErr
	}
	c.mu.Lock()
	c.onAudio = onAudio
	c.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (c *controllableInputClient) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	c.onAudio = onAudio
	c.mu.Unlock()
	return nil
}

func (c *controllableInputClient) StopCapture() error {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	return nil
}

func (c *controllableInputClient) Close() {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
}

func (c *controllableInputClient) EncodingInfo() audio.EncodingInfo {
	return audio.GetCaptureEncodingInfo()
}

func (c *controllableInputClient) emit(pcm []byte) {
	c.mu.Lock()
	onAudio := c.onAudio
	c.mu.Unlock()
	if onAudio != nil {
		onAudio(pcm)
	}
}

func (c *controllableInputClient) stopCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *controllableInputClient) closeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}
