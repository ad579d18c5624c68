// Package audio owns the microphone and speaker hardware for a voice
// session: a capture bridge that hands PCM chunks from the realtime
// callback thread to the rest of the pipeline, and a playback buffer
// drained by the speaker callback.
package audio

import "math"

// Config specifies the PCM audio format used end to end.
type Config struct {
	// SampleRate in Hz. The realtime session and TTS both use 24000.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int
}

// DefaultConfig returns the standard session audio configuration:
// 24 kHz mono PCM16.
func DefaultConfig() Config {
	return Config{
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c Config) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDuration returns the byte count for the given duration in
// milliseconds, rounded down to a whole sample.
func (c Config) BytesForDuration(ms int) int {
	n := (c.BytesPerSecond() * ms) / 1000
	sample := c.Channels * (c.BitsPerSample / 8)
	if sample > 0 {
		n -= n % sample
	}
	return n
}

// Silence returns n bytes of PCM silence.
func Silence(n int) []byte {
	if n < 0 {
		n = 0
	}
	return make([]byte, n)
}

// RMSEnergy computes the root-mean-square energy of 16-bit signed
// little-endian PCM. Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute amplitude in the PCM data,
// between 0.0 and 1.0.
func PeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// float64 avoids overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}
