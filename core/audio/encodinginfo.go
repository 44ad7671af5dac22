package audio

import "time"

const (
	// CaptureSampleRate is the fixed microphone-side rate sent to the
	// live speech service.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the fixed rate of audio returned by the
	// live speech service.
	PlaybackSampleRate = 24000

	DefaultFormat = "linear16"
)

func GetCaptureEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: CaptureSampleRate, Format: EncodingLinear16}
}

func GetPlaybackEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: PlaybackSampleRate, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// Duration reports how long the given payload plays for, assuming
// mono audio in this encoding.
func (e EncodingInfo) Duration(payload []byte) time.Duration {
	byteSize := e.Format.ByteSize()
	if byteSize <= 0 || e.SampleRate <= 0 {
		return 0
	}

	samples := len(payload) / byteSize
	return time.Duration(float64(samples) / float64(e.SampleRate) * float64(time.Second))
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
