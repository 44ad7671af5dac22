package calls

import (
	"sync"
	"time"

	"github.com/voxfront/voxfront-core/core/audio"
)

// PlaybackClock provides the monotonic time base for playback
// scheduling, in seconds. The default implementation measures from
// session construction; tests substitute a fake.
type PlaybackClock interface {
	Now() float64
}

type monotonicClock struct {
	epoch time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{epoch: time.Now()}
}

func (c *monotonicClock) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

// playbackScheduler turns inbound audio chunks into gapless, strictly
// sequential playback. It keeps a single monotonically non-decreasing
// nextStartTime: each chunk is scheduled no earlier than the previous
// chunk's end and never behind real time, so in-order arrival yields
// back-to-back playback even when arrival is bursty.
//
// nextStartTime has a single writer: the event handler consuming
// AudioChunk and Interrupted events.
type playbackScheduler struct {
	mu sync.Mutex

	clock  PlaybackClock
	output *audioOutput

	nextStartTime float64
}

func newPlaybackScheduler(clock PlaybackClock, output *audioOutput) *playbackScheduler {
	return &playbackScheduler{clock: clock, output: output}
}

// Seed resets nextStartTime to the clock's current reading. Called
// once at session open.
func (s *playbackScheduler) Seed() {
	s.mu.Lock()
	s.nextStartTime = s.clock.Now()
	s.mu.Unlock()
}

// Schedule enqueues one decoded chunk and returns its scheduled start
// time. Chunks must be passed in arrival order.
func (s *playbackScheduler) Schedule(payload []byte, encodingInfo audio.EncodingInfo) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduledStart := max(s.nextStartTime, s.clock.Now())
	s.output.SendAudio(payload)
	s.nextStartTime = scheduledStart + encodingInfo.Duration(payload).Seconds()

	return scheduledStart
}

// Interrupt handles barge-in: buffered-but-unplayed output is flushed
// best effort and nextStartTime snaps back to the current clock
// reading, so the next chunk resumes from the interrupt point instead
// of the old, possibly far-future schedule. Audio the device already
// started is not guaranteed to be revocable; the contract only covers
// subsequent scheduling.
func (s *playbackScheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.output.Clear()
	s.nextStartTime = s.clock.Now()
}

func (s *playbackScheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStartTime
}
