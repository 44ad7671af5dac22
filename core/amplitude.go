package calls

import (
	"encoding/binary"
	"math"
)

// amplitudeGain scales raw RMS values into a range that reads well on
// a level meter.
const amplitudeGain = 4.0

// assistantAmplitudePlaceholder is the constant level reported while
// assistant audio chunks are being delivered. The playback path cannot
// cheaply analyze synthesized output sample-by-sample in lockstep with
// the device, so assistant loudness is approximated rather than
// measured. Replacing this requires a real output-domain analysis end
// to end, not a per-chunk RMS at delivery time.
const assistantAmplitudePlaceholder = 0.3

// EstimateAmplitude computes the root-mean-square loudness of one
// block of little-endian PCM16 samples, scaled by a fixed gain for
// visualization. Pure function, no state.
func EstimateAmplitude(pcm []byte) float64 {
	sampleCount := len(pcm) / 2
	if sampleCount == 0 {
		return 0
	}

	var sumOfSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / math.MaxInt16
		sumOfSquares += sample * sample
	}

	return math.Sqrt(sumOfSquares/float64(sampleCount)) * amplitudeGain
}
